package users

import (
	"context"

	"github.com/dmitrijs2005/auditrack/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetUserByLogin(ctx context.Context, login string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context) ([]*models.User, error)
	LockAdmins(ctx context.Context) (int, error)
	Delete(ctx context.Context, id string) error
}
