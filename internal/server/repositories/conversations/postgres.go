package conversations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/dbx"
	"github.com/dmitrijs2005/gophchat/internal/server/models"
)

const conversationColumns = `c.id, c.pair_key, c.user1, c.user2, c.created_at, c.last_cipher_text, c.last_iv, c.last_sender_id, c.last_message_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type lastMessage struct {
	cipherText, iv, senderID sql.NullString
	at                       sql.NullTime
}

func (l *lastMessage) dest() []any {
	return []any{&l.cipherText, &l.iv, &l.senderID, &l.at}
}

func (l *lastMessage) apply(c *models.Conversation) {
	c.LastCipherText = l.cipherText.String
	c.LastIV = l.iv.String
	c.LastSenderID = l.senderID.String
	if l.at.Valid {
		t := l.at.Time
		c.LastMessageAt = &t
	}
}

// InsertIfAbsent creates the conversation unless one already exists for its
// pair key. Concurrent callers for the same pair all succeed.
func (r *PostgresRepository) InsertIfAbsent(ctx context.Context, c *models.Conversation) error {
	query :=
		`INSERT INTO conversations (id, pair_key, user1, user2, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (pair_key) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query, c.ID, c.PairKey, c.User1, c.User2, c.CreatedAt)
	if err != nil {
		if dbx.IsForeignKeyViolation(err) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg any) (*models.Conversation, error) {
	c := &models.Conversation{}
	var last lastMessage
	dest := append([]any{&c.ID, &c.PairKey, &c.User1, &c.User2, &c.CreatedAt}, last.dest()...)

	err := r.db.QueryRowContext(ctx, query, arg).Scan(dest...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	last.apply(c)
	return c, nil
}

func (r *PostgresRepository) GetByPairKey(ctx context.Context, pairKey string) (*models.Conversation, error) {
	return r.getOne(ctx, `SELECT `+conversationColumns+` FROM conversations c WHERE c.pair_key = $1`, pairKey)
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Conversation, error) {
	return r.getOne(ctx, `SELECT `+conversationColumns+` FROM conversations c WHERE c.id = $1`, id)
}

// GetByIDForUpdate locks the conversation row. Message appends take this
// lock so that they commit in sequence order.
func (r *PostgresRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.Conversation, error) {
	return r.getOne(ctx, `SELECT `+conversationColumns+` FROM conversations c WHERE c.id = $1 FOR UPDATE`, id)
}

// UpdateLastMessage replaces the last-message projection.
func (r *PostgresRepository) UpdateLastMessage(ctx context.Context, id, cipherText, iv, senderID string, at time.Time) error {
	query :=
		`UPDATE conversations
		 SET last_cipher_text = $2, last_iv = $3, last_sender_id = $4, last_message_at = $5
		 WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, cipherText, iv, senderID, at)
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

// ListForUser returns uid's conversations with the other participant's
// profile, most recent activity first. LastMessageText is left empty.
func (r *PostgresRepository) ListForUser(ctx context.Context, uid string) ([]models.ConversationView, error) {
	query :=
		`SELECT ` + conversationColumns + `,
		        u.id, u.email, u.username, u.display_name, u.photo_url, u.status, u.last_active, u.created_at, u.updated_at
		 FROM conversations c
		 JOIN users u ON u.id = CASE WHEN c.user1 = $1 THEN c.user2 ELSE c.user1 END
		 WHERE c.user1 = $1 OR c.user2 = $1
		 ORDER BY COALESCE(c.last_message_at, c.created_at) DESC`

	rows, err := r.db.QueryContext(ctx, query, uid)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]models.ConversationView, 0)
	for rows.Next() {
		var v models.ConversationView
		var last lastMessage
		var email, username, displayName, photoURL sql.NullString
		var lastActive sql.NullTime

		dest := []any{&v.ID, &v.PairKey, &v.User1, &v.User2, &v.CreatedAt}
		dest = append(dest, last.dest()...)
		dest = append(dest, &v.Friend.ID, &email, &username, &displayName, &photoURL,
			&v.Friend.Status, &lastActive, &v.Friend.CreatedAt, &v.Friend.UpdatedAt)

		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}

		last.apply(&v.Conversation)
		v.Friend.Email = email.String
		v.Friend.Username = username.String
		v.Friend.DisplayName = displayName.String
		v.Friend.PhotoURL = photoURL.String
		if lastActive.Valid {
			t := lastActive.Time
			v.Friend.LastActive = &t
		}
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}
