// Package http exposes the audit API over JSON/HTTP using chi.
package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/auditrack/internal/logging"
	"github.com/dmitrijs2005/auditrack/internal/server/config"
	"github.com/dmitrijs2005/auditrack/internal/server/metrics"
	"github.com/dmitrijs2005/auditrack/internal/server/models"
	"github.com/dmitrijs2005/auditrack/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

const (
	maxBodyBytes     = 1 << 20
	limiterSweepFreq = time.Minute
	limiterIdle      = 30 * time.Minute
)

type UserService interface {
	Login(ctx context.Context, username string, password []byte) (*services.LoginResult, error)
	Authenticate(ctx context.Context, token string) (*models.User, error)
	Register(ctx context.Context, caller *models.User, in services.RegisterInput) (*models.User, error)
	ListUsers(ctx context.Context, caller *models.User) ([]models.PublicUser, error)
	DeleteUser(ctx context.Context, caller *models.User, id string) error
}

type AuditService interface {
	Create(ctx context.Context, caller *models.User, in *models.AuditInput) (*models.Audit, error)
	List(ctx context.Context, caller *models.User) ([]map[string]any, error)
	Update(ctx context.Context, caller *models.User, id string, in *models.AuditInput) error
	Delete(ctx context.Context, caller *models.User, id string) error
	Export(ctx context.Context, caller *models.User) ([]map[string]any, error)
	Snapshot(ctx context.Context, caller *models.User) (*services.Snapshot, error)
}

// Pinger reports database reachability for /health.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Server struct {
	addr            string
	shutdownTimeout time.Duration
	allowedOrigins  []string
	users           UserService
	audits          AuditService
	db              Pinger
	logger          logging.Logger
	metrics         *metrics.Metrics
	limiter         *loginLimiter
}

func NewServer(cfg *config.Config, users UserService, audits AuditService, db Pinger, logger logging.Logger, m *metrics.Metrics) *Server {
	return &Server{
		addr:            cfg.EndpointAddrHTTP,
		shutdownTimeout: cfg.ShutdownTimeout,
		allowedOrigins:  cfg.CORSAllowedOrigins,
		users:           users,
		audits:          audits,
		db:              db,
		logger:          logger.With("module", "http"),
		metrics:         m,
		limiter:         newLoginLimiter(cfg.LoginRatePerMinute, cfg.LoginBurst),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", s.metrics.Handler())

	r.Post("/login", s.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.With(s.requireRole(models.RoleAdmin)).Post("/register", s.handleRegister)

		r.With(s.requireRole(models.RoleAuditor)).Post("/submit-audit", s.handleSubmitAudit)
		r.Get("/audits", s.handleListAudits)
		r.Put("/audits/{id}", s.handleUpdateAudit)
		r.Delete("/audits/{id}", s.handleDeleteAudit)

		r.With(s.requireRole(models.RoleAdmin)).Get("/export", s.handleExport)
		r.With(s.requireRole(models.RoleAdmin)).Post("/export/snapshot", s.handleSnapshot)

		r.With(s.requireRole(models.RoleAdmin)).Get("/users", s.handleListUsers)
		r.With(s.requireRole(models.RoleAdmin)).Delete("/users/{id}", s.handleDeleteUser)
	})

	return r
}

// Run serves until ctx is cancelled, then drains in-flight requests for at
// most the configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.serve(ctx, lis)
}

func (s *Server) serve(ctx context.Context, lis net.Listener) error {
	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go s.sweepLimiter(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "http server listening", "addr", lis.Addr().String())
		errCh <- srv.Serve(lis)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	s.logger.Info(ctx, "shutting down http server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) sweepLimiter(ctx context.Context) {
	t := time.NewTicker(limiterSweepFreq)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.limiter.Sweep(limiterIdle)
		}
	}
}
