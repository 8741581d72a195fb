// Package testutil holds fakes and helpers shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/99minutos/userdesk/internal/core/domain"
	"github.com/99minutos/userdesk/internal/core/store"
	"github.com/99minutos/userdesk/internal/infrastructure/queue"
)

// Operation names used by FakeUserService.
const (
	OpList   = "list"
	OpGet    = "get"
	OpCreate = "create"
	OpUpdate = "update"
	OpRemove = "remove"
)

// FakeUserService is an in-memory ports.UserService that counts calls and can
// be told to fail individual operations.
type FakeUserService struct {
	mu     sync.Mutex
	users  map[string]domain.User
	order  []string
	nextID int
	calls  map[string]int
	errs   map[string]error
}

// NewFakeUserService returns a fake seeded with users (ids are kept).
func NewFakeUserService(users ...domain.User) *FakeUserService {
	f := &FakeUserService{
		users: make(map[string]domain.User),
		calls: make(map[string]int),
		errs:  make(map[string]error),
	}
	for _, u := range users {
		f.users[u.ID] = u
		f.order = append(f.order, u.ID)
	}
	return f
}

// Fail makes op return err until Fail(op, nil) is called.
func (f *FakeUserService) Fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errs, op)
		return
	}
	f.errs[op] = err
}

// Calls reports how many times op was invoked.
func (f *FakeUserService) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// TotalCalls reports how many calls reached the fake, across all operations.
func (f *FakeUserService) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

func (f *FakeUserService) begin(op string) error {
	f.calls[op]++
	return f.errs[op]
}

func (f *FakeUserService) List(context.Context) ([]domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(OpList); err != nil {
		return nil, err
	}
	out := make([]domain.User, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.users[id])
	}
	return out, nil
}

func (f *FakeUserService) Get(_ context.Context, id string) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(OpGet); err != nil {
		return domain.User{}, err
	}
	u, ok := f.users[id]
	if !ok {
		return domain.User{}, fmt.Errorf("get user %s: %w: %w", id, domain.ErrUserNotFound,
			&domain.TransportError{Status: http.StatusNotFound, Message: "user not found"})
	}
	return u, nil
}

func (f *FakeUserService) Create(_ context.Context, input domain.UserInput) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(OpCreate); err != nil {
		return domain.User{}, err
	}
	f.nextID++
	id := fmt.Sprintf("u%d", f.nextID)
	u := domain.User{
		ID:        id,
		Name:      input.Name,
		Email:     input.Email,
		Address:   input.Address,
		Birthdate: input.Birthdate,
		Image:     "https://images.test/" + id,
	}
	f.users[id] = u
	f.order = append(f.order, id)
	return u, nil
}

func (f *FakeUserService) Update(_ context.Context, id string, input domain.UserInput) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(OpUpdate); err != nil {
		return domain.User{}, err
	}
	u, ok := f.users[id]
	if !ok {
		return domain.User{}, &domain.TransportError{Status: http.StatusNotFound, Message: "user not found"}
	}
	u.Name, u.Email, u.Address, u.Birthdate = input.Name, input.Email, input.Address, input.Birthdate
	f.users[id] = u
	return u, nil
}

func (f *FakeUserService) Remove(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(OpRemove); err != nil {
		return err
	}
	if _, ok := f.users[id]; !ok {
		return &domain.TransportError{Status: http.StatusNotFound, Message: "user not found"}
	}
	delete(f.users, id)
	for i, existing := range f.order {
		if existing == id {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	return nil
}

// NewStore returns a Store backed by a running dispatcher; both stop when the
// test ends.
func NewStore(t testing.TB) *store.Store {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	d := queue.NewDispatcher(2, zerolog.Nop())
	d.Start(ctx)
	return store.New(ctx, d, zerolog.Nop())
}
