// Package memory is an in-process implementation of ports.UserRepository used
// by the mock users API.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/99minutos/userdesk/internal/core/domain"
)

const defaultImageBase = "https://i.pravatar.cc/300?u="

type UserRepository struct {
	imageBase string
	newID     func() string

	mu    sync.RWMutex
	users map[string]domain.User
	order []string
}

type Option func(*UserRepository)

// WithImageBase sets the prefix the user id is appended to when building the
// image URL.
func WithImageBase(base string) Option {
	return func(r *UserRepository) { r.imageBase = base }
}

// WithIDGenerator replaces uuid.NewString, mainly for deterministic tests.
func WithIDGenerator(fn func() string) Option {
	return func(r *UserRepository) { r.newID = fn }
}

func NewUserRepository(opts ...Option) *UserRepository {
	r := &UserRepository{
		imageBase: defaultImageBase,
		newID:     uuid.NewString,
		users:     make(map[string]domain.User),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Seed inserts a few sample users.
func (r *UserRepository) Seed(ctx context.Context) error {
	for _, in := range sampleUsers {
		if _, err := r.Create(ctx, in); err != nil {
			return err
		}
	}
	return nil
}

var sampleUsers = []domain.UserInput{
	{Name: "Ada Lovelace", Email: "ada@example.com", Address: "12 St James's Square, London", Birthdate: "1815-12-10"},
	{Name: "Alan Turing", Email: "alan@example.com", Address: "Bletchley Park, Milton Keynes", Birthdate: "1912-06-23"},
	{Name: "Grace Hopper", Email: "grace@example.com", Address: "Arlington, Virginia", Birthdate: "1906-12-09"},
}

// List returns every user in insertion order.
func (r *UserRepository) List(_ context.Context) ([]domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.User, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.users[id])
	}
	return out, nil
}

func (r *UserRepository) FindByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &u, nil
}

// Create stores a new user with a server-assigned id and image.
func (r *UserRepository) Create(_ context.Context, input domain.UserInput) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.newID()
	u := domain.User{
		ID:        id,
		Name:      input.Name,
		Email:     input.Email,
		Address:   input.Address,
		Birthdate: input.Birthdate,
		Image:     r.imageBase + id,
	}
	r.users[id] = u
	r.order = append(r.order, id)
	return &u, nil
}

// Update replaces the editable fields; id and image never change.
func (r *UserRepository) Update(_ context.Context, id string, input domain.UserInput) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	u.Name = input.Name
	u.Email = input.Email
	u.Address = input.Address
	u.Birthdate = input.Birthdate
	r.users[id] = u
	return &u, nil
}

func (r *UserRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[id]; !ok {
		return domain.ErrUserNotFound
	}
	delete(r.users, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}
