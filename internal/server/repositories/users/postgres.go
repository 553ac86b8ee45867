package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/dbx"
	"github.com/dmitrijs2005/gophchat/internal/server/models"
)

const userColumns = `id, email, username, display_name, photo_url, status, last_active, created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

// ScanUser reads a row selected with the users column list, in order.
// Other repositories joining users reuse it.
func ScanUser(row scanner, u *models.User) error {
	var email, username, displayName, photoURL sql.NullString
	var lastActive sql.NullTime

	if err := row.Scan(&u.ID, &email, &username, &displayName, &photoURL,
		&u.Status, &lastActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return err
	}

	u.Email = email.String
	u.Username = username.String
	u.DisplayName = displayName.String
	u.PhotoURL = photoURL.String
	if lastActive.Valid {
		t := lastActive.Time
		u.LastActive = &t
	}
	return nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Upsert records the identity's claims. Absent claims never overwrite
// values already stored.
func (r *PostgresRepository) Upsert(ctx context.Context, identity models.Identity, now time.Time) (*models.User, error) {
	query :=
		`INSERT INTO users (id, email, username, display_name, photo_url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)
		 ON CONFLICT (id) DO UPDATE SET
		   email = COALESCE(EXCLUDED.email, users.email),
		   username = COALESCE(EXCLUDED.username, users.username),
		   display_name = COALESCE(EXCLUDED.display_name, users.display_name),
		   photo_url = COALESCE(EXCLUDED.photo_url, users.photo_url),
		   updated_at = EXCLUDED.updated_at
		 RETURNING ` + userColumns

	u := &models.User{}
	err := ScanUser(r.db.QueryRowContext(ctx, query,
		identity.UID,
		nullIfEmpty(identity.Email),
		nullIfEmpty(identity.Username),
		nullIfEmpty(identity.DisplayName),
		nullIfEmpty(identity.PhotoURL),
		now,
	), u)

	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return u, nil
}

func (r *PostgresRepository) getOne(ctx context.Context, where string, arg any) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where

	u := &models.User{}
	err := ScanUser(r.db.QueryRowContext(ctx, query, arg), u)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return u, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.getOne(ctx, `id = $1`, id)
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, `lower(email) = lower($1) LIMIT 1`, email)
}

func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getOne(ctx, `lower(username) = lower($1)`, username)
}

// escapeLike makes s safe for use as a literal LIKE prefix.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// SearchPrefix returns users whose username or email starts with prefix,
// case-insensitively, ordered by username.
func (r *PostgresRepository) SearchPrefix(ctx context.Context, prefix string, limit int) ([]models.User, error) {
	query :=
		`SELECT ` + userColumns + ` FROM users
		 WHERE lower(username) LIKE $1 OR lower(email) LIKE $1
		 ORDER BY username NULLS LAST, id
		 LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, strings.ToLower(escapeLike(prefix))+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]models.User, 0)
	for rows.Next() {
		var u models.User
		if err := ScanUser(rows, &u); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}

// Touch marks the user online as of now.
func (r *PostgresRepository) Touch(ctx context.Context, id string, now time.Time) error {
	query :=
		`UPDATE users SET status = 'online', last_active = $2
		 WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, now)
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
