package friendships

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/dbx"
	"github.com/dmitrijs2005/gophchat/internal/server/models"
	"github.com/dmitrijs2005/gophchat/internal/server/repositories/users"
)

const friendshipColumns = `pair_id, user1, user2, requested_by, status, created_at, updated_at`

const friendUserColumns = `u.id, u.email, u.username, u.display_name, u.photo_url, u.status, u.last_active, u.created_at, u.updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) get(ctx context.Context, query, pairID string) (*models.Friendship, error) {
	f := &models.Friendship{}
	err := r.db.QueryRowContext(ctx, query, pairID).
		Scan(&f.PairID, &f.User1, &f.User2, &f.RequestedBy, &f.Status, &f.CreatedAt, &f.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return f, nil
}

func (r *PostgresRepository) Get(ctx context.Context, pairID string) (*models.Friendship, error) {
	return r.get(ctx, `SELECT `+friendshipColumns+` FROM friendships WHERE pair_id = $1`, pairID)
}

// GetForUpdate reads the record and locks it until the surrounding
// transaction ends. It must be called on a transactional DBTX.
func (r *PostgresRepository) GetForUpdate(ctx context.Context, pairID string) (*models.Friendship, error) {
	return r.get(ctx, `SELECT `+friendshipColumns+` FROM friendships WHERE pair_id = $1 FOR UPDATE`, pairID)
}

// Insert creates the record unless one already exists for the pair.
// It reports whether a row was written.
func (r *PostgresRepository) Insert(ctx context.Context, f *models.Friendship) (bool, error) {
	query :=
		`INSERT INTO friendships (pair_id, user1, user2, requested_by, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (pair_id) DO NOTHING`

	res, err := r.db.ExecContext(ctx, query,
		f.PairID, f.User1, f.User2, f.RequestedBy, f.Status, f.CreatedAt, f.UpdatedAt)
	if err != nil {
		if dbx.IsForeignKeyViolation(err) {
			return false, common.ErrorNotFound
		}
		return false, fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) Update(ctx context.Context, f *models.Friendship) error {
	query :=
		`UPDATE friendships SET requested_by = $2, status = $3, updated_at = $4
		 WHERE pair_id = $1`

	res, err := r.db.ExecContext(ctx, query, f.PairID, f.RequestedBy, f.Status, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// ListAccepted returns the profiles of uid's accepted friends.
func (r *PostgresRepository) ListAccepted(ctx context.Context, uid string) ([]models.User, error) {
	query :=
		`SELECT ` + friendUserColumns + `
		 FROM friendships f
		 JOIN users u ON u.id = CASE WHEN f.user1 = $1 THEN f.user2 ELSE f.user1 END
		 WHERE (f.user1 = $1 OR f.user2 = $1) AND f.status = 'accepted'
		 ORDER BY u.display_name NULLS LAST, u.id`

	rows, err := r.db.QueryContext(ctx, query, uid)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]models.User, 0)
	for rows.Next() {
		var u models.User
		if err := users.ScanUser(rows, &u); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

// ListIncomingPending returns pending requests addressed to uid, newest
// first. Requests uid sent are not included.
func (r *PostgresRepository) ListIncomingPending(ctx context.Context, uid string) ([]models.FriendRequest, error) {
	query :=
		`SELECT f.pair_id, f.user1, f.user2, f.requested_by, f.status, f.created_at, f.updated_at,
		        ` + friendUserColumns + `
		 FROM friendships f
		 JOIN users u ON u.id = f.requested_by
		 WHERE (f.user1 = $1 OR f.user2 = $1) AND f.status = 'pending' AND f.requested_by <> $1
		 ORDER BY f.updated_at DESC`

	rows, err := r.db.QueryContext(ctx, query, uid)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]models.FriendRequest, 0)
	for rows.Next() {
		var fr models.FriendRequest
		if err := users.ScanUser(prefixScanner{rows: rows, head: []any{
			&fr.PairID, &fr.User1, &fr.User2, &fr.RequestedBy, &fr.Status, &fr.CreatedAt, &fr.UpdatedAt,
		}}, &fr.From); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, fr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

// prefixScanner scans extra leading columns before the ones the wrapped
// scan function asks for.
type prefixScanner struct {
	rows *sql.Rows
	head []any
}

func (p prefixScanner) Scan(dest ...any) error {
	return p.rows.Scan(append(append([]any{}, p.head...), dest...)...)
}
