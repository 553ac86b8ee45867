package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/dbx"
	"github.com/dmitrijs2005/gophchat/internal/logging"
	"github.com/dmitrijs2005/gophchat/internal/server/config"
	"github.com/dmitrijs2005/gophchat/internal/server/models"
	"github.com/dmitrijs2005/gophchat/internal/server/repositories/friendships"
	"github.com/dmitrijs2005/gophchat/internal/server/repositories/repomanager"
)

// FriendshipService drives the friendship state machine. Every transition
// reads the pair's record under a row lock and writes it back in the same
// transaction.
type FriendshipService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	log         logging.Logger
	retry       dbx.RetryPolicy
	now         func() time.Time
}

func NewFriendshipService(db *sql.DB, m repomanager.RepositoryManager, log logging.Logger, cfg *config.Config) *FriendshipService {
	return &FriendshipService{
		db:          db,
		repomanager: m,
		log:         log.With("module", "friendships"),
		retry:       retryPolicy(cfg),
		now:         utcNow,
	}
}

func validPair(a, b string) error {
	if a == "" || b == "" || a == b {
		return common.ErrorValidation
	}
	return nil
}

// SendRequest records that from wants to befriend to. Repeating a pending
// request is a no-op apart from the timestamp; answering a request from the
// other side with a request of one's own accepts it.
func (s *FriendshipService) SendRequest(ctx context.Context, from, to string) (*models.Friendship, error) {
	if err := validPair(from, to); err != nil {
		return nil, err
	}
	pairID := models.CanonicalPair(from, to)

	var result *models.Friendship
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Friendships(tx)
		now := s.now()

		cur, err := notFoundAsNil(repo.GetForUpdate(ctx, pairID))
		if err != nil {
			return err
		}

		next, err := models.ApplyRequest(cur, from, to, now)
		if err != nil {
			return err
		}

		if cur != nil {
			result = next
			return repo.Update(ctx, next)
		}

		inserted, err := repo.Insert(ctx, next)
		if err != nil {
			return err
		}
		if inserted {
			result = next
			return nil
		}

		// a concurrent request created the record first
		cur, err = repo.GetForUpdate(ctx, pairID)
		if err != nil {
			return err
		}
		next, err = models.ApplyRequest(cur, from, to, now)
		if err != nil {
			return err
		}
		result = next
		return repo.Update(ctx, next)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "friend request", "pair_id", pairID, "from", from, "status", result.Status)
	return result, nil
}

// Accept lets by accept the pending request the other user sent.
func (s *FriendshipService) Accept(ctx context.Context, by, other string) (*models.Friendship, error) {
	if err := validPair(by, other); err != nil {
		return nil, err
	}
	return s.transition(ctx, models.CanonicalPair(by, other), func(cur *models.Friendship, now time.Time) (*models.Friendship, error) {
		return models.ApplyAccept(cur, by, now)
	})
}

// Remove ends the relationship from any state, including a pending request.
func (s *FriendshipService) Remove(ctx context.Context, by, other string) (*models.Friendship, error) {
	if err := validPair(by, other); err != nil {
		return nil, err
	}
	return s.transition(ctx, models.CanonicalPair(by, other), models.ApplyRemove)
}

func (s *FriendshipService) transition(ctx context.Context, pairID string, apply func(*models.Friendship, time.Time) (*models.Friendship, error)) (*models.Friendship, error) {
	var result *models.Friendship
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Friendships(tx)

		cur, err := notFoundAsNil(repo.GetForUpdate(ctx, pairID))
		if err != nil {
			return err
		}
		next, err := apply(cur, s.now())
		if err != nil {
			return err
		}
		result = next
		return repo.Update(ctx, next)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "friendship changed", "pair_id", pairID, "status", result.Status)
	return result, nil
}

// ListAccepted returns the profiles of uid's friends.
func (s *FriendshipService) ListAccepted(ctx context.Context, uid string) ([]models.User, error) {
	return dbx.RetryValue(ctx, s.retry, func(ctx context.Context) ([]models.User, error) {
		return s.repomanager.Friendships(s.db).ListAccepted(ctx, uid)
	})
}

// ListPending returns requests other users sent to uid.
func (s *FriendshipService) ListPending(ctx context.Context, uid string) ([]models.FriendRequest, error) {
	return dbx.RetryValue(ctx, s.retry, func(ctx context.Context) ([]models.FriendRequest, error) {
		return s.repomanager.Friendships(s.db).ListIncomingPending(ctx, uid)
	})
}

// AreFriends reports whether a and b have an accepted friendship.
func (s *FriendshipService) AreFriends(ctx context.Context, a, b string) (bool, error) {
	return areFriends(ctx, s.retry, s.repomanager.Friendships(s.db), a, b)
}

func areFriends(ctx context.Context, p dbx.RetryPolicy, repo friendships.Repository, a, b string) (bool, error) {
	f, err := dbx.RetryValue(ctx, p, func(ctx context.Context) (*models.Friendship, error) {
		return repo.Get(ctx, models.CanonicalPair(a, b))
	})
	if errors.Is(err, common.ErrorNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return f.Status == models.FriendshipAccepted, nil
}
