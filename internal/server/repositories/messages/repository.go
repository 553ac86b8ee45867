package messages

import (
	"context"

	"github.com/dmitrijs2005/gophchat/internal/server/models"
)

type Repository interface {
	Insert(ctx context.Context, m *models.Message) error
	ListLatest(ctx context.Context, conversationID string, limit int) ([]models.Message, error)
	ListAfter(ctx context.Context, conversationID string, afterSeq int64, limit int) ([]models.Message, error)
	ListBefore(ctx context.Context, conversationID string, beforeSeq int64, limit int) ([]models.Message, error)
}
