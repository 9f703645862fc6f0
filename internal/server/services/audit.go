package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/auditrack/internal/common"
	"github.com/dmitrijs2005/auditrack/internal/dbx"
	"github.com/dmitrijs2005/auditrack/internal/server/models"
	"github.com/dmitrijs2005/auditrack/internal/server/policy"
	"github.com/dmitrijs2005/auditrack/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// Snapshot describes an export written to the snapshot store.
type Snapshot struct {
	Key   string `json:"key"`
	URL   string `json:"url"`
	Count int    `json:"count"`
}

// AuditService applies the audit lifecycle rules on top of the repositories.
// "Today" is the current date in loc.
type AuditService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	loc         *time.Location
	snapshots   SnapshotStore
	now         func() time.Time
}

// NewAuditService builds the service. snapshots may be nil, in which case
// Snapshot fails with common.ErrExportDisabled.
func NewAuditService(db *sql.DB, m repomanager.RepositoryManager, loc *time.Location, snapshots SnapshotStore) *AuditService {
	if loc == nil {
		loc = time.Local
	}
	return &AuditService{
		db:          db,
		repomanager: m,
		loc:         loc,
		snapshots:   snapshots,
		now:         time.Now,
	}
}

func (s *AuditService) today() models.Day {
	return models.DayOf(s.now(), s.loc)
}

// Create files a new audit for caller today. The owner and date are always
// taken from the caller and the clock. A second audit for the same sector
// and day fails with *common.AuditConflictError naming the first one.
func (s *AuditService) Create(ctx context.Context, caller *models.User, in *models.AuditInput) (*models.Audit, error) {
	if err := policy.CanCreateAudit(caller); err != nil {
		return nil, err
	}
	if in == nil || in.Sector == nil {
		return nil, fmt.Errorf("%w: %s is required", common.ErrValidation, models.FieldSector)
	}

	audit := &models.Audit{
		ID:      uuid.NewString(),
		Sector:  *in.Sector,
		Date:    s.today(),
		Auditor: caller.Name,
		Fields:  in.Fields,
	}

	var created *models.Audit
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Audits(tx)

		existing, err := repo.FindBySlot(ctx, audit.Auditor, audit.Sector, audit.Date)
		if err == nil {
			return &common.AuditConflictError{ExistingID: existing.ID}
		}
		if !errors.Is(err, common.ErrorNotFound) {
			return err
		}

		created, err = repo.Create(ctx, audit)
		return err
	})
	if err != nil {
		return nil, s.resolveConflict(ctx, err, audit)
	}
	return created, nil
}

// resolveConflict turns a bare unique violation (a concurrent write won the
// race for audit's slot) into an AuditConflictError carrying the winner's id.
func (s *AuditService) resolveConflict(ctx context.Context, err error, audit *models.Audit) error {
	var conflict *common.AuditConflictError
	if errors.As(err, &conflict) || !errors.Is(err, common.ErrAuditConflict) {
		return err
	}
	existing, findErr := s.repomanager.Audits(s.db).FindBySlot(ctx, audit.Auditor, audit.Sector, audit.Date)
	if findErr != nil {
		return err
	}
	return &common.AuditConflictError{ExistingID: existing.ID}
}

// List returns the audits caller may see in wire form. Auditors get only
// their own, without the auditor key.
func (s *AuditService) List(ctx context.Context, caller *models.User) ([]map[string]any, error) {
	owner, withAuditor := policy.ListScope(caller)

	audits, err := s.repomanager.Audits(s.db).List(ctx, owner)
	if err != nil {
		return nil, err
	}
	return documents(audits, withAuditor), nil
}

// Update merges in over the stored audit. Client fields overwrite stored ones
// key by key, the sector may change, the owner and date never do.
func (s *AuditService) Update(ctx context.Context, caller *models.User, id string, in *models.AuditInput) error {
	if _, err := uuid.Parse(id); err != nil {
		return common.ErrorNotFound
	}
	if in == nil {
		return fmt.Errorf("%w: empty update", common.ErrValidation)
	}
	today := s.today()

	var moved *models.Audit
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Audits(tx)

		audit, err := repo.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := policy.CanMutateAudit(caller, audit, today); err != nil {
			return err
		}

		if in.Sector != nil && *in.Sector != audit.Sector {
			other, err := repo.FindBySlot(ctx, audit.Auditor, *in.Sector, audit.Date)
			if err == nil && other.ID != audit.ID {
				return &common.AuditConflictError{ExistingID: other.ID}
			}
			if err != nil && !errors.Is(err, common.ErrorNotFound) {
				return err
			}
			audit.Sector = *in.Sector
			moved = audit
		}

		if audit.Fields == nil {
			audit.Fields = make(map[string]any, len(in.Fields))
		}
		for k, v := range in.Fields {
			audit.Fields[k] = v
		}

		return repo.Update(ctx, audit)
	})
	if err != nil && moved != nil {
		return s.resolveConflict(ctx, err, moved)
	}
	return err
}

// Delete removes an audit under the same rules as Update.
func (s *AuditService) Delete(ctx context.Context, caller *models.User, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return common.ErrorNotFound
	}
	today := s.today()

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Audits(tx)

		audit, err := repo.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := policy.CanMutateAudit(caller, audit, today); err != nil {
			return err
		}
		return repo.Delete(ctx, id)
	})
}

// Export dumps every audit, owner included. Admin only.
func (s *AuditService) Export(ctx context.Context, caller *models.User) ([]map[string]any, error) {
	if err := policy.RequireAdmin(caller); err != nil {
		return nil, err
	}

	audits, err := s.repomanager.Audits(s.db).List(ctx, "")
	if err != nil {
		return nil, err
	}
	return documents(audits, true), nil
}

// Snapshot writes the full export to the snapshot store and returns where
// it can be downloaded from.
func (s *AuditService) Snapshot(ctx context.Context, caller *models.User) (*Snapshot, error) {
	if err := policy.RequireAdmin(caller); err != nil {
		return nil, err
	}
	if s.snapshots == nil {
		return nil, common.ErrExportDisabled
	}

	docs, err := s.Export(ctx, caller)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(docs)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}

	key := SnapshotKey(s.now().In(s.loc))
	url, err := s.snapshots.Save(ctx, key, body)
	if err != nil {
		return nil, err
	}

	return &Snapshot{Key: key, URL: url, Count: len(docs)}, nil
}

func documents(audits []*models.Audit, withAuditor bool) []map[string]any {
	result := make([]map[string]any, 0, len(audits))
	for _, a := range audits {
		result = append(result, a.Document(withAuditor))
	}
	return result
}
