package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/auditrack/internal/dbx"
	"github.com/dmitrijs2005/auditrack/internal/server/repositories/audits"
	"github.com/dmitrijs2005/auditrack/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Audits(db dbx.DBTX) audits.Repository
}
