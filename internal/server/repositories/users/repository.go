package users

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/server/models"
)

type Repository interface {
	Upsert(ctx context.Context, identity models.Identity, now time.Time) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	SearchPrefix(ctx context.Context, prefix string, limit int) ([]models.User, error)
	Touch(ctx context.Context, id string, now time.Time) error
}
