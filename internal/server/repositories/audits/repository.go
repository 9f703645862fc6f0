package audits

import (
	"context"

	"github.com/dmitrijs2005/auditrack/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, audit *models.Audit) (*models.Audit, error)
	FindBySlot(ctx context.Context, auditor, sector string, day models.Day) (*models.Audit, error)
	GetByID(ctx context.Context, id string) (*models.Audit, error)
	GetByIDForUpdate(ctx context.Context, id string) (*models.Audit, error)
	List(ctx context.Context, auditor string) ([]*models.Audit, error)
	Update(ctx context.Context, audit *models.Audit) error
	Delete(ctx context.Context, id string) error
}
