// Package services contains server-side business logic: the user directory,
// the friendship state machine, conversations, messages, presence and
// attachments. Services own transactions; repositories are bound per call.
package services

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/cryptox"
	"github.com/dmitrijs2005/gophchat/internal/dbx"
	"github.com/dmitrijs2005/gophchat/internal/server/config"
	"github.com/dmitrijs2005/gophchat/internal/server/models"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 50
	maxHistoryLimit    = 200
)

func retryPolicy(cfg *config.Config) dbx.RetryPolicy {
	p := dbx.DefaultRetryPolicy()
	if cfg == nil {
		return p
	}
	if cfg.RetryAttempts >= 0 {
		p.Attempts = uint64(cfg.RetryAttempts)
	}
	if cfg.OperationTimeout > 0 {
		p.Timeout = cfg.OperationTimeout
	}
	return p
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

// notFoundAsNil turns a repository not-found into an empty result.
func notFoundAsNil[T any](v *T, err error) (*T, error) {
	if errors.Is(err, common.ErrorNotFound) {
		return nil, nil
	}
	return v, err
}

func decryptMessage(codec *cryptox.Codec, m *models.Message) {
	if m.Encrypted() {
		m.Text = codec.Decrypt(m.CipherText, m.IV)
	}
}

func utcNow() time.Time {
	return time.Now().UTC()
}
