// Package server wires configuration, storage, services and transports into
// a runnable application and handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/auditrack/internal/logging"
	"github.com/dmitrijs2005/auditrack/internal/shared"
	"github.com/dmitrijs2005/auditrack/internal/server/config"
	"github.com/dmitrijs2005/auditrack/internal/server/metrics"
	"github.com/dmitrijs2005/auditrack/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/auditrack/internal/server/services"
	_ "github.com/jackc/pgx/v5/stdlib"

	gs "github.com/dmitrijs2005/auditrack/internal/server/grpc"
	hs "github.com/dmitrijs2005/auditrack/internal/server/http"
)

const defaultSecretKey = "your-secret-key-here"

type App struct {
	config       *config.Config
	logger       logging.Logger
	db           *sql.DB
	userService  *services.UserService
	auditService *services.AuditService
	metrics      *metrics.Metrics
}

// openDB is a seam for tests.
var openDB = func(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger, err := logging.New(c.LogBackend, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}

	loc, err := c.Location()
	if err != nil {
		return nil, err
	}

	if err := ensureSecretKey(ctx, c, logger); err != nil {
		return nil, err
	}

	db, err := openDB(c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm, err := repomanager.NewPostgresRepositoryManager(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("db init error: %w", err)
	}

	if err := rm.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	var snapshots services.SnapshotStore
	if c.SnapshotsEnabled() {
		store, err := services.NewS3SnapshotStore(ctx, c)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("snapshot store init error: %w", err)
		}
		snapshots = store
	}

	return &App{
		config:       c,
		logger:       logger,
		db:           db,
		userService:  services.NewUserService(db, rm, c),
		auditService: services.NewAuditService(db, rm, loc, snapshots),
		metrics:      metrics.New(),
	}, nil
}

// ensureSecretKey keeps the published default key only at debug level.
// Otherwise it is replaced with a random per-process key, so sessions do not
// survive a restart until a real key is configured.
func ensureSecretKey(ctx context.Context, c *config.Config, logger logging.Logger) error {
	if c.SecretKey != defaultSecretKey {
		return nil
	}
	if strings.EqualFold(c.LogLevel, "debug") {
		logger.Warn(ctx, "using the default secret key, set AUDITRACK_SECRET_KEY outside development")
		return nil
	}
	key, err := shared.MakeRandHexString(32)
	if err != nil {
		return fmt.Errorf("secret key error: %w", err)
	}
	c.SecretKey = key
	logger.Warn(ctx, "no secret key configured, using a random one for this process")
	return nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := hs.NewServer(app.config, app.userService, app.auditService, app.db, app.logger, app.metrics)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.db)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run blocks until a termination signal arrives, ctx is cancelled or a
// server fails, then closes the database.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	if app.config.EndpointAddrGRPC != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.startGRPCServer(ctx, cancelFunc)
		}()
	}

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
