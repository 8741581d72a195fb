package ports

import (
	"context"

	"github.com/99minutos/userdesk/internal/core/domain"
)

// UserService maps the user resource operations onto the remote API.
type UserService interface {
	List(ctx context.Context) ([]domain.User, error)
	// Get returns an error matching domain.ErrUserNotFound when the server answers 404.
	Get(ctx context.Context, id string) (domain.User, error)
	Create(ctx context.Context, input domain.UserInput) (domain.User, error)
	// Update replaces all editable fields of the user.
	Update(ctx context.Context, id string, input domain.UserInput) (domain.User, error)
	Remove(ctx context.Context, id string) error
}
