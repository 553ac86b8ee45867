package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/cryptox"
	"github.com/dmitrijs2005/gophchat/internal/dbx"
	"github.com/dmitrijs2005/gophchat/internal/server/config"
	"github.com/dmitrijs2005/gophchat/internal/server/models"
	"github.com/dmitrijs2005/gophchat/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// ConversationService maps unordered user pairs to their single
// one-on-one conversation.
type ConversationService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	codec       *cryptox.Codec
	retry       dbx.RetryPolicy
	now         func() time.Time
}

func NewConversationService(db *sql.DB, m repomanager.RepositoryManager, codec *cryptox.Codec, cfg *config.Config) *ConversationService {
	return &ConversationService{
		db:          db,
		repomanager: m,
		codec:       codec,
		retry:       retryPolicy(cfg),
		now:         utcNow,
	}
}

// FindOneOnOne returns the conversation between a and b, or nil when there
// is none yet.
func (s *ConversationService) FindOneOnOne(ctx context.Context, a, b string) (*models.Conversation, error) {
	if err := validPair(a, b); err != nil {
		return nil, err
	}
	return notFoundAsNil(dbx.RetryValue(ctx, s.retry, func(ctx context.Context) (*models.Conversation, error) {
		return s.repomanager.Conversations(s.db).GetByPairKey(ctx, models.CanonicalPair(a, b))
	}))
}

// GetOrCreate returns the id of the conversation between a and b, creating
// it if needed. Concurrent callers for the same pair get the same id.
// Only friends can have a conversation.
func (s *ConversationService) GetOrCreate(ctx context.Context, a, b string) (string, error) {
	if err := validPair(a, b); err != nil {
		return "", err
	}

	ok, err := areFriends(ctx, s.retry, s.repomanager.Friendships(s.db), a, b)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", common.ErrNotFriends
	}

	c := models.NewConversation(a, b, s.now())
	repo := s.repomanager.Conversations(s.db)

	if err := repo.InsertIfAbsent(ctx, c); err != nil {
		return "", fmt.Errorf("error creating conversation: %w", err)
	}

	stored, err := dbx.RetryValue(ctx, s.retry, func(ctx context.Context) (*models.Conversation, error) {
		return repo.GetByPairKey(ctx, c.PairKey)
	})
	if err != nil {
		return "", err
	}
	return stored.ID, nil
}

// ListForUser returns uid's conversations, most recently active first.
func (s *ConversationService) ListForUser(ctx context.Context, uid string) ([]models.ConversationView, error) {
	views, err := dbx.RetryValue(ctx, s.retry, func(ctx context.Context) ([]models.ConversationView, error) {
		return s.repomanager.Conversations(s.db).ListForUser(ctx, uid)
	})
	if err != nil {
		return nil, err
	}
	for i := range views {
		s.fillLastMessage(&views[i])
	}
	return views, nil
}

// Get returns one conversation as seen by uid.
func (s *ConversationService) Get(ctx context.Context, id, uid string) (*models.ConversationView, error) {
	c, err := participantConversation(ctx, s.retry, s.repomanager, s.db, id, uid)
	if err != nil {
		return nil, err
	}

	friend, err := dbx.RetryValue(ctx, s.retry, func(ctx context.Context) (*models.User, error) {
		return s.repomanager.Users(s.db).GetByID(ctx, c.Other(uid))
	})
	if err != nil {
		return nil, err
	}

	v := &models.ConversationView{Conversation: *c, Friend: *friend}
	s.fillLastMessage(v)
	return v, nil
}

func (s *ConversationService) fillLastMessage(v *models.ConversationView) {
	if v.LastCipherText != "" || v.LastIV != "" {
		v.LastMessageText = s.codec.Decrypt(v.LastCipherText, v.LastIV)
	}
}

// participantConversation loads a conversation and checks uid belongs to it.
func participantConversation(ctx context.Context, p dbx.RetryPolicy, m repomanager.RepositoryManager, db dbx.DBTX, id, uid string) (*models.Conversation, error) {
	if err := validConversationID(id); err != nil {
		return nil, err
	}
	c, err := dbx.RetryValue(ctx, p, func(ctx context.Context) (*models.Conversation, error) {
		return m.Conversations(db).GetByID(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	if !c.HasParticipant(uid) {
		return nil, common.ErrNotParticipant
	}
	return c, nil
}

// validConversationID rejects ids that cannot name a conversation, so they
// are reported as not found instead of reaching the database.
func validConversationID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return common.ErrorNotFound
	}
	return nil
}
