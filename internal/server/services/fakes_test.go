package services

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/auditrack/internal/common"
	"github.com/dmitrijs2005/auditrack/internal/dbx"
	"github.com/dmitrijs2005/auditrack/internal/server/models"
	auditsrepo "github.com/dmitrijs2005/auditrack/internal/server/repositories/audits"
	usersrepo "github.com/dmitrijs2005/auditrack/internal/server/repositories/users"
)

// --- helpers ---

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

type fakeUsersRepo struct {
	byID     map[string]*models.User
	err      error
	locked   bool
	createFn func(*models.User) (*models.User, error)
}

func newFakeUsersRepo(users ...*models.User) *fakeUsersRepo {
	f := &fakeUsersRepo{byID: map[string]*models.User{}}
	for _, u := range users {
		f.byID[u.ID] = u
	}
	return f
}

func (f *fakeUsersRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	if f.createFn != nil {
		return f.createFn(u)
	}
	for _, existing := range f.byID {
		if existing.UserName == u.UserName {
			return nil, common.ErrUserAlreadyExists
		}
	}
	u.CreatedAt = time.Now()
	f.byID[u.ID] = u
	return u, nil
}

func (f *fakeUsersRepo) GetUserByLogin(ctx context.Context, login string) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, u := range f.byID {
		if u.UserName == login {
			return u, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsersRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return u, nil
}

func (f *fakeUsersRepo) List(ctx context.Context) ([]*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]*models.User, 0, len(f.byID))
	for _, u := range f.byID {
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeUsersRepo) LockAdmins(ctx context.Context) (int, error) {
	f.locked = true
	n := 0
	for _, u := range f.byID {
		if u.Role == models.RoleAdmin {
			n++
		}
	}
	return n, nil
}

func (f *fakeUsersRepo) Delete(ctx context.Context, id string) error {
	if _, ok := f.byID[id]; !ok {
		return common.ErrorNotFound
	}
	delete(f.byID, id)
	return nil
}

type fakeAuditsRepo struct {
	byID      map[string]*models.Audit
	order     []string
	createErr error
	onUpdate  func(a *models.Audit) error
}

func newFakeAuditsRepo() *fakeAuditsRepo {
	return &fakeAuditsRepo{byID: map[string]*models.Audit{}}
}

func (f *fakeAuditsRepo) put(a *models.Audit) {
	f.byID[a.ID] = a
	f.order = append(f.order, a.ID)
}

func (f *fakeAuditsRepo) Create(ctx context.Context, a *models.Audit) (*models.Audit, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	if _, err := f.FindBySlot(ctx, a.Auditor, a.Sector, a.Date); err == nil {
		return nil, common.ErrAuditConflict
	}
	cp := *a
	cp.Fields = copyFields(a.Fields)
	f.put(&cp)
	return a, nil
}

func (f *fakeAuditsRepo) FindBySlot(ctx context.Context, auditor, sector string, day models.Day) (*models.Audit, error) {
	for _, id := range f.order {
		a, ok := f.byID[id]
		if ok && a.Auditor == auditor && a.Sector == sector && a.Date == day {
			return a, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeAuditsRepo) GetByID(ctx context.Context, id string) (*models.Audit, error) {
	a, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *a
	cp.Fields = copyFields(a.Fields)
	return &cp, nil
}

func (f *fakeAuditsRepo) GetByIDForUpdate(ctx context.Context, id string) (*models.Audit, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeAuditsRepo) List(ctx context.Context, auditor string) ([]*models.Audit, error) {
	out := make([]*models.Audit, 0)
	for _, id := range f.order {
		a, ok := f.byID[id]
		if ok && (auditor == "" || a.Auditor == auditor) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAuditsRepo) Update(ctx context.Context, a *models.Audit) error {
	if f.onUpdate != nil {
		if err := f.onUpdate(a); err != nil {
			return err
		}
	}
	if _, ok := f.byID[a.ID]; !ok {
		return common.ErrorNotFound
	}
	cp := *a
	cp.Fields = copyFields(a.Fields)
	f.byID[a.ID] = &cp
	return nil
}

func (f *fakeAuditsRepo) Delete(ctx context.Context, id string) error {
	if _, ok := f.byID[id]; !ok {
		return common.ErrorNotFound
	}
	delete(f.byID, id)
	return nil
}

func copyFields(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

type fakeRepoManager struct {
	u *fakeUsersRepo
	a *fakeAuditsRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) usersrepo.Repository      { return m.u }
func (m *fakeRepoManager) Audits(db dbx.DBTX) auditsrepo.Repository    { return m.a }

type errBoom struct{}

func (errBoom) Error() string { return "boom" }
