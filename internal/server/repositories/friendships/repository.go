package friendships

import (
	"context"

	"github.com/dmitrijs2005/gophchat/internal/server/models"
)

type Repository interface {
	Get(ctx context.Context, pairID string) (*models.Friendship, error)
	GetForUpdate(ctx context.Context, pairID string) (*models.Friendship, error)
	Insert(ctx context.Context, f *models.Friendship) (bool, error)
	Update(ctx context.Context, f *models.Friendship) error
	ListAccepted(ctx context.Context, uid string) ([]models.User, error)
	ListIncomingPending(ctx context.Context, uid string) ([]models.FriendRequest, error)
}
