package messages

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/dbx"
	"github.com/dmitrijs2005/gophchat/internal/server/models"
)

const messageColumns = `id, seq, conversation_id, sender_id, cipher_text, iv, created_at, file_key, file_url, file_name, file_type`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Insert stores m and fills in the server-assigned Seq and CreatedAt.
func (r *PostgresRepository) Insert(ctx context.Context, m *models.Message) error {
	query :=
		`INSERT INTO messages (id, conversation_id, sender_id, cipher_text, iv, file_key, file_url, file_name, file_type)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING seq, created_at`

	var fileKey, fileURL, fileName, fileType sql.NullString
	if a := m.Attachment; a != nil {
		fileKey = sql.NullString{String: a.Key, Valid: a.Key != ""}
		fileURL = sql.NullString{String: a.FileURL, Valid: true}
		fileName = sql.NullString{String: a.FileName, Valid: true}
		fileType = sql.NullString{String: a.FileType, Valid: true}
	}

	err := r.db.QueryRowContext(ctx, query,
		m.ID, m.ConversationID, m.SenderID, m.CipherText, m.IV, fileKey, fileURL, fileName, fileType,
	).Scan(&m.Seq, &m.CreatedAt)

	if err != nil {
		if dbx.IsForeignKeyViolation(err) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]models.Message, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]models.Message, 0)
	for rows.Next() {
		var m models.Message
		var fileKey, fileURL, fileName, fileType sql.NullString
		if err := rows.Scan(&m.ID, &m.Seq, &m.ConversationID, &m.SenderID, &m.CipherText, &m.IV,
			&m.CreatedAt, &fileKey, &fileURL, &fileName, &fileType); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		if fileURL.Valid || fileKey.Valid {
			m.Attachment = &models.Attachment{
				Key:      fileKey.String,
				FileURL:  fileURL.String,
				FileName: fileName.String,
				FileType: fileType.String,
			}
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

// ListLatest returns the newest limit messages, oldest first.
func (r *PostgresRepository) ListLatest(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	query :=
		`SELECT ` + messageColumns + ` FROM (
		   SELECT ` + messageColumns + ` FROM messages
		   WHERE conversation_id = $1
		   ORDER BY seq DESC
		   LIMIT $2
		 ) m
		 ORDER BY created_at, seq`
	return r.list(ctx, query, conversationID, limit)
}

// ListAfter returns messages with seq greater than afterSeq in seq order.
func (r *PostgresRepository) ListAfter(ctx context.Context, conversationID string, afterSeq int64, limit int) ([]models.Message, error) {
	query :=
		`SELECT ` + messageColumns + ` FROM messages
		 WHERE conversation_id = $1 AND seq > $2
		 ORDER BY seq
		 LIMIT $3`
	return r.list(ctx, query, conversationID, afterSeq, limit)
}

// ListBefore returns up to limit messages older than beforeSeq, oldest first.
func (r *PostgresRepository) ListBefore(ctx context.Context, conversationID string, beforeSeq int64, limit int) ([]models.Message, error) {
	query :=
		`SELECT ` + messageColumns + ` FROM (
		   SELECT ` + messageColumns + ` FROM messages
		   WHERE conversation_id = $1 AND seq < $2
		   ORDER BY seq DESC
		   LIMIT $3
		 ) m
		 ORDER BY created_at, seq`
	return r.list(ctx, query, conversationID, beforeSeq, limit)
}
