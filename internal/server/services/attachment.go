package services

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/dbx"
	"github.com/dmitrijs2005/gophchat/internal/server/config"
	"github.com/dmitrijs2005/gophchat/internal/server/models"
	"github.com/dmitrijs2005/gophchat/internal/server/repositories/repomanager"
)

// URLResolver turns an object key into a download URL.
type URLResolver interface {
	URL(ctx context.Context, key string) (string, error)
}

// BlobStore is the object storage used for attachments.
type BlobStore interface {
	URLResolver
	Put(ctx context.Context, key, contentType string, r io.Reader, progress func(int64)) error
}

// AttachmentService uploads files shared in a conversation.
type AttachmentService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	store       BlobStore
	retry       dbx.RetryPolicy
	now         func() time.Time
}

func NewAttachmentService(db *sql.DB, m repomanager.RepositoryManager, store BlobStore, cfg *config.Config) *AttachmentService {
	return &AttachmentService{
		db:          db,
		repomanager: m,
		store:       store,
		retry:       retryPolicy(cfg),
		now:         utcNow,
	}
}

// AttachmentKey is the object key a file is stored under.
func AttachmentKey(conversationID string, at time.Time, fileName string) string {
	return fmt.Sprintf("%s%d_%s", attachmentPrefix(conversationID), at.UnixMilli(), fileName)
}

func attachmentPrefix(conversationID string) string {
	return "chatFiles/" + conversationID + "/"
}

func cleanFileName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = path.Base(strings.TrimSpace(name))
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return name
}

// Upload streams r into storage for a participant of the conversation and
// returns the attachment to reference from a message.
func (s *AttachmentService) Upload(ctx context.Context, conversationID, uid, fileName, fileType string, r io.Reader, progress func(int64)) (*models.Attachment, error) {
	name := cleanFileName(fileName)
	if name == "" {
		return nil, common.ErrorValidation
	}

	conv, err := participantConversation(ctx, s.retry, s.repomanager, s.db, conversationID, uid)
	if err != nil {
		return nil, err
	}
	ok, err := areFriends(ctx, s.retry, s.repomanager.Friendships(s.db), uid, conv.Other(uid))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.ErrNotFriends
	}

	key := AttachmentKey(conversationID, s.now(), name)
	if err := s.store.Put(ctx, key, fileType, r, progress); err != nil {
		return nil, fmt.Errorf("error uploading attachment: %w", err)
	}

	url, err := s.store.URL(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("error resolving attachment url: %w", err)
	}

	return &models.Attachment{Key: key, FileURL: url, FileName: name, FileType: fileType}, nil
}
