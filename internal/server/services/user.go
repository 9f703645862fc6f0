// Package services contains server-side business logic. This file implements
// UserService: login, session verification and account management.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/auditrack/internal/common"
	"github.com/dmitrijs2005/auditrack/internal/dbx"
	"github.com/dmitrijs2005/auditrack/internal/server/auth"
	"github.com/dmitrijs2005/auditrack/internal/server/config"
	"github.com/dmitrijs2005/auditrack/internal/server/models"
	"github.com/dmitrijs2005/auditrack/internal/server/policy"
	"github.com/dmitrijs2005/auditrack/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// LoginResult is what a successful login hands back to the client.
type LoginResult struct {
	Token string            `json:"token"`
	User  models.PublicUser `json:"user"`
}

// RegisterInput describes a new account.
type RegisterInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Name     string `json:"name"`
}

type UserService struct {
	db                      *sql.DB
	repomanager             repomanager.RepositoryManager
	jwtSecret               []byte
	sessionValidityDuration time.Duration
	now                     func() time.Time
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *UserService {
	return &UserService{
		db:                      db,
		repomanager:             m,
		jwtSecret:               []byte(cfg.SecretKey),
		sessionValidityDuration: cfg.SessionValidityDuration,
		now:                     time.Now,
	}
}

// Login checks username/password and issues a session token. Unknown users
// and wrong passwords fail the same way, with common.ErrAuthentication.
func (s *UserService) Login(ctx context.Context, username string, password []byte) (*LoginResult, error) {
	repo := s.repomanager.Users(s.db)

	user, err := repo.GetUserByLogin(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			auth.BurnCompare(password)
			return nil, common.ErrAuthentication
		}
		return nil, fmt.Errorf("login lookup: %w", err)
	}

	if !auth.CheckPassword(user.PasswordHash, password) {
		return nil, common.ErrAuthentication
	}

	token, err := auth.GenerateToken(user.UserName, user.Role, s.jwtSecret, s.now(), s.sessionValidityDuration)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	pub := user.Public()
	pub.ID = ""
	return &LoginResult{Token: token, User: pub}, nil
}

// Authenticate resolves a bearer token to the current user record.
func (s *UserService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, common.ErrMissingCredential
	}

	claims, err := auth.ParseToken(token, s.jwtSecret)
	if err != nil {
		return nil, err
	}

	user, err := s.repomanager.Users(s.db).GetUserByLogin(ctx, claims.Username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidCredential
		}
		return nil, err
	}
	return user, nil
}

// Register creates an account. Only admins may do so.
func (s *UserService) Register(ctx context.Context, caller *models.User, in RegisterInput) (*models.User, error) {
	if err := policy.RequireAdmin(caller); err != nil {
		return nil, err
	}

	user, err := newUser(in)
	if err != nil {
		return nil, err
	}
	return s.repomanager.Users(s.db).Create(ctx, user)
}

// CreateInitialAdmin seeds the first administrator. It refuses once any
// admin exists, so it cannot be used to mint extra admins.
func (s *UserService) CreateInitialAdmin(ctx context.Context, username, name string, password []byte) (*models.User, error) {
	user, err := newUser(RegisterInput{
		Username: username,
		Password: string(password),
		Role:     string(models.RoleAdmin),
		Name:     name,
	})
	if err != nil {
		return nil, err
	}

	var created *models.User
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)

		admins, err := repo.LockAdmins(ctx)
		if err != nil {
			return err
		}
		if admins > 0 {
			return fmt.Errorf("%w: an administrator already exists", common.ErrForbidden)
		}

		created, err = repo.Create(ctx, user)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// newUser validates in and hashes the password.
func newUser(in RegisterInput) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Name = strings.TrimSpace(in.Name)
	if in.Username == "" || in.Password == "" || in.Name == "" {
		return nil, fmt.Errorf("%w: username, password and name are required", common.ErrValidation)
	}
	role := models.Role(in.Role)
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", common.ErrValidation, in.Role)
	}
	if err := auth.ValidatePassword([]byte(in.Password)); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
	}

	hash, err := auth.HashPassword([]byte(in.Password))
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	return &models.User{
		ID:           uuid.NewString(),
		UserName:     in.Username,
		PasswordHash: hash,
		Role:         role,
		Name:         in.Name,
	}, nil
}

// ListUsers returns every account without its password hash.
func (s *UserService) ListUsers(ctx context.Context, caller *models.User) ([]models.PublicUser, error) {
	if err := policy.RequireAdmin(caller); err != nil {
		return nil, err
	}

	users, err := s.repomanager.Users(s.db).List(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]models.PublicUser, 0, len(users))
	for _, u := range users {
		result = append(result, u.Public())
	}
	return result, nil
}

// DeleteUser removes the account with id. The admin rows stay locked while
// counting so two concurrent deletions cannot both remove an admin.
func (s *UserService) DeleteUser(ctx context.Context, caller *models.User, id string) error {
	if err := policy.RequireAdmin(caller); err != nil {
		return err
	}
	if _, err := uuid.Parse(id); err != nil {
		return common.ErrorNotFound
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)

		admins, err := repo.LockAdmins(ctx)
		if err != nil {
			return err
		}

		target, err := repo.GetByID(ctx, id)
		if err != nil {
			return err
		}

		if err := policy.CanDeleteUser(target, admins); err != nil {
			return err
		}

		return repo.Delete(ctx, id)
	})
}
