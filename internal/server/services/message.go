package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/cryptox"
	"github.com/dmitrijs2005/gophchat/internal/dbx"
	"github.com/dmitrijs2005/gophchat/internal/logging"
	"github.com/dmitrijs2005/gophchat/internal/server/config"
	"github.com/dmitrijs2005/gophchat/internal/server/feed"
	"github.com/dmitrijs2005/gophchat/internal/server/models"
	"github.com/dmitrijs2005/gophchat/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// deltaBatch bounds how many new messages one delta read fetches.
const deltaBatch = 500

// Update is one delivery to a subscriber. The first delivery carries the
// latest page of history; later ones carry only messages newer than
// everything delivered before, in order.
type Update struct {
	Messages []models.Message
	Initial  bool
}

// Unsubscribe stops a subscription. Calling it more than once is safe.
type Unsubscribe func()

// MessageService appends encrypted messages and streams them to
// participants.
type MessageService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	codec       *cryptox.Codec
	feed        feed.Feed
	urls        URLResolver
	log         logging.Logger
	retry       dbx.RetryPolicy
	pageSize    int
	now         func() time.Time
}

func NewMessageService(db *sql.DB, m repomanager.RepositoryManager, codec *cryptox.Codec, f feed.Feed, urls URLResolver, log logging.Logger, cfg *config.Config) *MessageService {
	return &MessageService{
		db:          db,
		repomanager: m,
		codec:       codec,
		feed:        f,
		urls:        urls,
		log:         log.With("module", "messages"),
		retry:       retryPolicy(cfg),
		pageSize:    cfg.HistoryPageSize,
		now:         utcNow,
	}
}

// Append encrypts text and stores it as a new message from senderID. The
// message and the conversation's last-message projection are written in one
// transaction. A message needs text, an attachment, or both. Only friends
// can post to their conversation.
func (s *MessageService) Append(ctx context.Context, conversationID, senderID, text string, attachment *models.Attachment) (*models.Message, error) {
	if strings.TrimSpace(text) == "" {
		text = ""
		if attachment == nil {
			return nil, common.ErrorValidation
		}
	}
	if err := validConversationID(conversationID); err != nil {
		return nil, err
	}

	m := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
	}
	if attachment != nil {
		a := *attachment
		if a.Key != "" {
			// Uploaded files must belong to this conversation; their URL is
			// resolved on read.
			if !strings.HasPrefix(a.Key, attachmentPrefix(conversationID)) {
				return nil, common.ErrorValidation
			}
			a.FileURL = ""
		}
		m.Attachment = &a
	}
	if text != "" {
		ct, iv, err := s.codec.Encrypt(text)
		if err != nil {
			return nil, fmt.Errorf("error encrypting message: %w", err)
		}
		m.CipherText, m.IV = ct, iv
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		conv, err := s.repomanager.Conversations(tx).GetByIDForUpdate(ctx, conversationID)
		if err != nil {
			return err
		}
		if !conv.HasParticipant(senderID) {
			return common.ErrNotParticipant
		}
		f, err := s.repomanager.Friendships(tx).Get(ctx, models.CanonicalPair(senderID, conv.Other(senderID)))
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrNotFriends
		}
		if err != nil {
			return err
		}
		if f.Status != models.FriendshipAccepted {
			return common.ErrNotFriends
		}
		if err := s.repomanager.Messages(tx).Insert(ctx, m); err != nil {
			return err
		}
		return s.repomanager.Conversations(tx).UpdateLastMessage(ctx, conversationID, m.CipherText, m.IV, senderID, m.CreatedAt)
	})
	if err != nil {
		return nil, err
	}

	if err := s.feed.Publish(ctx, conversationID); err != nil {
		s.log.Warn(ctx, "feed publish failed", "conversation_id", conversationID, "error", err)
	}

	m.Text = text
	s.resolveURL(ctx, m.Attachment)
	return m, nil
}

// History returns up to limit messages older than beforeSeq, oldest first.
// A beforeSeq of zero or less returns the latest page.
func (s *MessageService) History(ctx context.Context, conversationID, uid string, beforeSeq int64, limit int) ([]models.Message, error) {
	if _, err := participantConversation(ctx, s.retry, s.repomanager, s.db, conversationID, uid); err != nil {
		return nil, err
	}
	limit = clampLimit(limit, s.pageSize, maxHistoryLimit)

	msgs, err := dbx.RetryValue(ctx, s.retry, func(ctx context.Context) ([]models.Message, error) {
		repo := s.repomanager.Messages(s.db)
		if beforeSeq <= 0 {
			return repo.ListLatest(ctx, conversationID, limit)
		}
		return repo.ListBefore(ctx, conversationID, beforeSeq, limit)
	})
	if err != nil {
		return nil, err
	}
	s.prepare(ctx, msgs)
	return msgs, nil
}

// prepare decrypts msgs and resolves their attachment URLs for delivery.
func (s *MessageService) prepare(ctx context.Context, msgs []models.Message) {
	for i := range msgs {
		decryptMessage(s.codec, &msgs[i])
		s.resolveURL(ctx, msgs[i].Attachment)
	}
}

func (s *MessageService) resolveURL(ctx context.Context, a *models.Attachment) {
	if a == nil || a.Key == "" || s.urls == nil {
		return
	}
	u, err := s.urls.URL(ctx, a.Key)
	if err != nil {
		s.log.Warn(ctx, "attachment url not resolved", "key", a.Key, "error", err)
		return
	}
	a.FileURL = u
}

// Subscribe delivers the latest page of the conversation to onUpdate and
// then every message appended afterwards, each exactly once and in order.
// onUpdate is called from a single goroutine. The subscription ends when
// the returned Unsubscribe is called or ctx is done.
func (s *MessageService) Subscribe(ctx context.Context, conversationID, uid string, onUpdate func(Update)) (Unsubscribe, error) {
	if _, err := participantConversation(ctx, s.retry, s.repomanager, s.db, conversationID, uid); err != nil {
		return nil, err
	}

	// Subscribe before reading so that nothing appended in between is missed.
	signals, cancelFeed := s.feed.Subscribe(conversationID)

	page, err := dbx.RetryValue(ctx, s.retry, func(ctx context.Context) ([]models.Message, error) {
		return s.repomanager.Messages(s.db).ListLatest(ctx, conversationID, s.pageSize)
	})
	if err != nil {
		cancelFeed()
		return nil, err
	}

	stop := make(chan struct{})
	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			close(stop)
			cancelFeed()
		})
	}

	go s.deliver(ctx, conversationID, page, signals, stop, onUpdate)

	return unsubscribe, nil
}

func (s *MessageService) deliver(ctx context.Context, conversationID string, page []models.Message, signals <-chan struct{}, stop <-chan struct{}, onUpdate func(Update)) {
	stopped := func() bool {
		select {
		case <-stop:
			return true
		case <-ctx.Done():
			return true
		default:
			return false
		}
	}

	var cursor int64
	for _, m := range page {
		if m.Seq > cursor {
			cursor = m.Seq
		}
	}
	s.prepare(ctx, page)
	if stopped() {
		return
	}
	onUpdate(Update{Messages: page, Initial: true})

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case _, ok := <-signals:
			if !ok {
				return
			}
		}

		for {
			batch, err := dbx.RetryValue(ctx, s.retry, func(ctx context.Context) ([]models.Message, error) {
				return s.repomanager.Messages(s.db).ListAfter(ctx, conversationID, cursor, deltaBatch)
			})
			if err != nil {
				if !stopped() {
					s.log.Error(ctx, "subscription read failed", "conversation_id", conversationID, "error", err)
				}
				break
			}
			if len(batch) == 0 || stopped() {
				break
			}
			cursor = batch[len(batch)-1].Seq
			s.prepare(ctx, batch)
			onUpdate(Update{Messages: batch})
			if len(batch) < deltaBatch {
				break
			}
		}
	}
}
