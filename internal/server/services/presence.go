package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/dbx"
	"github.com/dmitrijs2005/gophchat/internal/server/config"
	"github.com/dmitrijs2005/gophchat/internal/server/models"
	"github.com/dmitrijs2005/gophchat/internal/server/repositories/repomanager"
)

// PresenceService records heartbeats and derives liveness at read time.
// A user is online while their last heartbeat is younger than the threshold;
// the stored status alone is never trusted.
type PresenceService struct {
	db                *sql.DB
	repomanager       repomanager.RepositoryManager
	retry             dbx.RetryPolicy
	threshold         time.Duration
	heartbeatInterval time.Duration
	now               func() time.Time
}

func NewPresenceService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *PresenceService {
	return &PresenceService{
		db:                db,
		repomanager:       m,
		retry:             retryPolicy(cfg),
		threshold:         cfg.PresenceThreshold,
		heartbeatInterval: cfg.HeartbeatInterval,
		now:               utcNow,
	}
}

func (s *PresenceService) Heartbeat(ctx context.Context, uid string) error {
	return s.repomanager.Users(s.db).Touch(ctx, uid, s.now())
}

func (s *PresenceService) Status(ctx context.Context, uid string) (*models.Presence, error) {
	u, err := dbx.RetryValue(ctx, s.retry, func(ctx context.Context) (*models.User, error) {
		return s.repomanager.Users(s.db).GetByID(ctx, uid)
	})
	if err != nil {
		return nil, err
	}
	return &models.Presence{
		UserID:     u.ID,
		Online:     s.isOnline(u.LastActive),
		LastActive: u.LastActive,
	}, nil
}

func (s *PresenceService) isOnline(lastActive *time.Time) bool {
	if lastActive == nil {
		return false
	}
	return s.now().Sub(*lastActive) < s.threshold
}

// HeartbeatInterval is how often clients are asked to call Heartbeat.
func (s *PresenceService) HeartbeatInterval() time.Duration {
	return s.heartbeatInterval
}
