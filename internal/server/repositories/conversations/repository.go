package conversations

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/server/models"
)

type Repository interface {
	InsertIfAbsent(ctx context.Context, c *models.Conversation) error
	GetByPairKey(ctx context.Context, pairKey string) (*models.Conversation, error)
	GetByID(ctx context.Context, id string) (*models.Conversation, error)
	GetByIDForUpdate(ctx context.Context, id string) (*models.Conversation, error)
	UpdateLastMessage(ctx context.Context, id, cipherText, iv, senderID string, at time.Time) error
	ListForUser(ctx context.Context, uid string) ([]models.ConversationView, error)
}
