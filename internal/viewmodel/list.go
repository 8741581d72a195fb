// Package viewmodel derives form and list state from the user cache and turns
// user actions into mutations.
package viewmodel

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/99minutos/userdesk/internal/core/domain"
	"github.com/99minutos/userdesk/internal/core/store"
)

// ListUsers is what the list needs from the user queries.
type ListUsers interface {
	WatchList(fn func(store.Result[[]domain.User])) (store.Result[[]domain.User], func())
	Delete(ctx context.Context, id string) error
}

// ListView is what a list renderer displays.
type ListView struct {
	Users     []domain.User
	Search    string
	Loading   bool // first load, nothing to show yet
	Fetching  bool // any fetch, including background refreshes
	Err       error
	Empty     bool // loaded, but no user matches the search
	EditingID string
}

// List holds the search term and the latest list data.
type List struct {
	users    ListUsers
	log      zerolog.Logger
	onChange func(ListView)
	onEdit   func(id string)

	mu          sync.Mutex
	search      string
	current     store.Result[[]domain.User]
	received    bool
	editingID   string
	unsubscribe func()
}

// ListOption customises a List.
type ListOption func(*List)

// OnListChange is called with the new view whenever data, search or the
// editing marker change.
func OnListChange(fn func(ListView)) ListOption {
	return func(l *List) { l.onChange = fn }
}

// OnEdit is called with the user id when Edit is requested from the list.
func OnEdit(fn func(id string)) ListOption {
	return func(l *List) { l.onEdit = fn }
}

func NewList(users ListUsers, log zerolog.Logger, opts ...ListOption) *List {
	l := &List{users: users, log: log}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start subscribes to the list key. It is a no-op when already started.
func (l *List) Start() {
	l.mu.Lock()
	if l.unsubscribe != nil {
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()

	initial, unsubscribe := l.users.WatchList(l.apply)

	l.mu.Lock()
	l.unsubscribe = unsubscribe
	if !l.received {
		l.current = initial
	}
	l.unlockAndEmit()
}

// Close drops the subscription.
func (l *List) Close() {
	l.mu.Lock()
	unsubscribe := l.unsubscribe
	l.unsubscribe = nil
	l.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

func (l *List) apply(r store.Result[[]domain.User]) {
	l.mu.Lock()
	l.current = r
	l.received = true
	l.unlockAndEmit()
}

// SetSearch replaces the search term.
func (l *List) SetSearch(term string) {
	l.mu.Lock()
	l.search = term
	l.unlockAndEmit()
}

// Edit marks id as the user being edited and forwards it to the edit hook.
func (l *List) Edit(id string) {
	l.mu.Lock()
	l.editingID = id
	l.unlockAndEmit()

	if l.onEdit != nil {
		l.onEdit(id)
	}
}

// EditFinished clears the editing marker.
func (l *List) EditFinished() {
	l.mu.Lock()
	l.editingID = ""
	l.unlockAndEmit()
}

// Delete removes the user; the list refreshes through invalidation.
func (l *List) Delete(ctx context.Context, id string) error {
	if err := l.users.Delete(ctx, id); err != nil {
		return err
	}
	l.log.Debug().Str("user_id", id).Msg("user removed from list")
	return nil
}

// View computes the current view.
func (l *List) View() ListView {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.viewLocked()
}

func (l *List) viewLocked() ListView {
	r := l.current
	filtered := Filter(r.Data, l.search)
	v := ListView{
		Users:     filtered,
		Search:    l.search,
		Loading:   r.IsLoading(),
		Fetching:  r.IsFetching(),
		Empty:     r.HasData && len(filtered) == 0,
		EditingID: l.editingID,
	}
	if r.IsError() {
		v.Err = r.Err
	}
	return v
}

func (l *List) unlockAndEmit() {
	v := l.viewLocked()
	l.mu.Unlock()
	if l.onChange != nil {
		l.onChange(v)
	}
}

// Filter returns the users whose name contains term, ignoring case.
// An empty term matches everyone. The input slice is never modified.
func Filter(users []domain.User, term string) []domain.User {
	needle := strings.ToLower(term)
	out := make([]domain.User, 0, len(users))
	for _, u := range users {
		if strings.Contains(strings.ToLower(u.Name), needle) {
			out = append(out, u)
		}
	}
	return out
}
