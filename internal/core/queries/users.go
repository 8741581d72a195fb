// Package queries binds the user resource to the synchronized cache: it owns
// the query keys and the mutation wrappers that invalidate them.
package queries

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/99minutos/userdesk/internal/core/domain"
	"github.com/99minutos/userdesk/internal/core/ports"
	"github.com/99minutos/userdesk/internal/core/store"
	"github.com/99minutos/userdesk/internal/infrastructure/metrics"
)

const resource = "users"

// ListKey identifies the "all users" entry.
func ListKey() store.Key { return store.Key{Resource: resource} }

// UserKey identifies the entry of a single user.
func UserKey(id string) store.Key { return store.Key{Resource: resource, ID: id} }

// ErrNoUserID is returned when a per-user query is made without an id.
var ErrNoUserID = errors.New("user id is required")

// Users reads users through the cache and writes them through the service,
// invalidating the affected keys after every successful write.
type Users struct {
	store   *store.Store
	service ports.UserService
	log     zerolog.Logger
}

func NewUsers(st *store.Store, service ports.UserService, log zerolog.Logger) *Users {
	return &Users{store: st, service: service, log: log}
}

func (u *Users) fetchList(ctx context.Context) (any, error) {
	return u.service.List(ctx)
}

func (u *Users) fetchUser(id string) store.FetchFunc {
	return func(ctx context.Context) (any, error) {
		return u.service.Get(ctx, id)
	}
}

// List returns the cached list, starting a fetch when needed.
func (u *Users) List() store.Result[[]domain.User] {
	return store.As[[]domain.User](u.store.Query(ListKey(), u.fetchList))
}

// WatchList subscribes fn to the list entry.
func (u *Users) WatchList(fn func(store.Result[[]domain.User])) (store.Result[[]domain.User], func()) {
	snap, unsubscribe := u.store.Subscribe(ListKey(), u.fetchList, func(s store.Snapshot) {
		fn(store.As[[]domain.User](s))
	})
	return store.As[[]domain.User](snap), unsubscribe
}

// User returns the cached user with id, starting a fetch when needed.
// An empty id disables the query and yields an idle result.
func (u *Users) User(id string) store.Result[domain.User] {
	if id == "" {
		return store.Result[domain.User]{Status: store.StatusIdle}
	}
	return store.As[domain.User](u.store.Query(UserKey(id), u.fetchUser(id)))
}

// LoadUser returns the user with id, reading through to the API when the
// entry is missing or stale.
func (u *Users) LoadUser(ctx context.Context, id string) (domain.User, error) {
	if id == "" {
		return domain.User{}, ErrNoUserID
	}
	snap, err := u.store.Await(ctx, UserKey(id), u.fetchUser(id))
	if err != nil {
		return domain.User{}, err
	}
	return store.As[domain.User](snap).Data, nil
}

// Create adds a user and invalidates the list.
func (u *Users) Create(ctx context.Context, input domain.UserInput) (domain.User, error) {
	created, err := store.Mutate(ctx, u.store, func(ctx context.Context) (domain.User, error) {
		return u.service.Create(ctx, input)
	}, ListKey())
	metrics.MutationsTotal.WithLabelValues("create", metrics.Result(err)).Inc()
	return created, err
}

// Update replaces the editable fields of id and invalidates both the list
// and that user's entry.
func (u *Users) Update(ctx context.Context, id string, input domain.UserInput) (domain.User, error) {
	updated, err := store.Mutate(ctx, u.store, func(ctx context.Context) (domain.User, error) {
		return u.service.Update(ctx, id, input)
	}, ListKey(), UserKey(id))
	metrics.MutationsTotal.WithLabelValues("update", metrics.Result(err)).Inc()
	return updated, err
}

// Delete removes id and invalidates the list.
func (u *Users) Delete(ctx context.Context, id string) error {
	_, err := store.Mutate(ctx, u.store, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, u.service.Remove(ctx, id)
	}, ListKey())
	metrics.MutationsTotal.WithLabelValues("delete", metrics.Result(err)).Inc()
	if err != nil {
		u.log.Warn().Err(err).Str("user_id", id).Msg("delete failed, cache left untouched")
	}
	return err
}
