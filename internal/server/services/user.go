package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/dbx"
	"github.com/dmitrijs2005/gophchat/internal/server/config"
	"github.com/dmitrijs2005/gophchat/internal/server/models"
	"github.com/dmitrijs2005/gophchat/internal/server/repositories/repomanager"
)

// UserService keeps the user directory in step with the identity provider
// and answers lookups.
type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	retry       dbx.RetryPolicy
	now         func() time.Time
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *UserService {
	return &UserService{
		db:          db,
		repomanager: m,
		retry:       retryPolicy(cfg),
		now:         utcNow,
	}
}

// SignIn records the claims of a verified identity. Claims that are absent
// leave stored values untouched.
func (s *UserService) SignIn(ctx context.Context, identity models.Identity) (*models.User, error) {
	if identity.UID == "" {
		return nil, common.ErrorValidation
	}
	identity.Email = strings.TrimSpace(identity.Email)
	identity.Username = strings.TrimSpace(identity.Username)

	u, err := s.repomanager.Users(s.db).Upsert(ctx, identity, s.now())
	if err != nil {
		if errors.Is(err, common.ErrAlreadyExists) {
			return nil, fmt.Errorf("username %q is taken: %w", identity.Username, err)
		}
		return nil, fmt.Errorf("error saving user: %w", err)
	}
	return u, nil
}

func (s *UserService) Get(ctx context.Context, uid string) (*models.User, error) {
	return dbx.RetryValue(ctx, s.retry, func(ctx context.Context) (*models.User, error) {
		return s.repomanager.Users(s.db).GetByID(ctx, uid)
	})
}

// FindByEmailOrUsername looks term up as an exact email first and as a
// username second.
func (s *UserService) FindByEmailOrUsername(ctx context.Context, term string) (*models.User, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, common.ErrorValidation
	}

	repo := s.repomanager.Users(s.db)

	u, err := dbx.RetryValue(ctx, s.retry, func(ctx context.Context) (*models.User, error) {
		return repo.GetByEmail(ctx, term)
	})
	if !errors.Is(err, common.ErrorNotFound) {
		return u, err
	}

	return dbx.RetryValue(ctx, s.retry, func(ctx context.Context) (*models.User, error) {
		return repo.GetByUsername(ctx, term)
	})
}

// Search returns users whose username or email starts with prefix.
// An empty prefix yields no results.
func (s *UserService) Search(ctx context.Context, prefix string, limit int) ([]models.User, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return []models.User{}, nil
	}
	limit = clampLimit(limit, defaultSearchLimit, maxSearchLimit)

	return dbx.RetryValue(ctx, s.retry, func(ctx context.Context) ([]models.User, error) {
		return s.repomanager.Users(s.db).SearchPrefix(ctx, prefix, limit)
	})
}
