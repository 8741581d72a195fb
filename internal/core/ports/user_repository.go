package ports

import (
	"context"

	"github.com/99minutos/userdesk/internal/core/domain"
)

// UserRepository is the persistence port behind the mock users API.
type UserRepository interface {
	List(ctx context.Context) ([]domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	Create(ctx context.Context, input domain.UserInput) (*domain.User, error)
	Update(ctx context.Context, id string, input domain.UserInput) (*domain.User, error)
	Delete(ctx context.Context, id string) error
}
