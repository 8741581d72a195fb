package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/99minutos/userdesk/internal/core/domain"
	"github.com/99minutos/userdesk/internal/core/ports"
)

const usersPath = "/users"

// UserService maps user operations onto the remote API. It performs no local
// validation; callers validate input before invoking it.
type UserService struct {
	transport ports.Transport
	logger    zerolog.Logger
}

func NewUserService(transport ports.Transport, logger zerolog.Logger) *UserService {
	return &UserService{transport: transport, logger: logger}
}

// List returns every user.
func (s *UserService) List(ctx context.Context) ([]domain.User, error) {
	var users []domain.User
	if err := s.transport.Do(ctx, http.MethodGet, usersPath, nil, &users); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	if users == nil {
		users = []domain.User{}
	}
	return users, nil
}

// Get returns the user with id, or an error matching domain.ErrUserNotFound.
func (s *UserService) Get(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	if err := s.transport.Do(ctx, http.MethodGet, userPath(id), nil, &u); err != nil {
		if isNotFound(err) {
			return domain.User{}, fmt.Errorf("get user %s: %w: %w", id, domain.ErrUserNotFound, err)
		}
		return domain.User{}, fmt.Errorf("get user %s: %w", id, err)
	}
	return u, nil
}

// Create sends input to the server, which assigns id and image.
func (s *UserService) Create(ctx context.Context, input domain.UserInput) (domain.User, error) {
	var u domain.User
	if err := s.transport.Do(ctx, http.MethodPost, usersPath, input, &u); err != nil {
		s.logger.Error().Err(err).Msg("failed to create user")
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	s.logger.Info().Str("user_id", u.ID).Msg("user created")
	return u, nil
}

// Update replaces the editable fields of the user with id.
func (s *UserService) Update(ctx context.Context, id string, input domain.UserInput) (domain.User, error) {
	var u domain.User
	if err := s.transport.Do(ctx, http.MethodPut, userPath(id), input, &u); err != nil {
		s.logger.Error().Err(err).Str("user_id", id).Msg("failed to update user")
		return domain.User{}, fmt.Errorf("update user %s: %w", id, err)
	}
	s.logger.Info().Str("user_id", id).Msg("user updated")
	return u, nil
}

// Remove deletes the user with id.
func (s *UserService) Remove(ctx context.Context, id string) error {
	if err := s.transport.Do(ctx, http.MethodDelete, userPath(id), nil, nil); err != nil {
		s.logger.Error().Err(err).Str("user_id", id).Msg("failed to delete user")
		return fmt.Errorf("delete user %s: %w", id, err)
	}
	s.logger.Info().Str("user_id", id).Msg("user deleted")
	return nil
}

func userPath(id string) string {
	return usersPath + "/" + url.PathEscape(id)
}

func isNotFound(err error) bool {
	var te *domain.TransportError
	return errors.As(err, &te) && te.Status == http.StatusNotFound
}
