// Package cryptox holds message encryption primitives: a KeyManager that
// derives the shared symmetric key from a configured secret, and a Codec that
// seals message text with AES-GCM.
package cryptox

import (
	"crypto/sha256"
	"fmt"
	"io"
	"sync"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"golang.org/x/crypto/hkdf"
)

const keySize = 32

var (
	keySalt = []byte("gophchat/message-key/v1")
	keyInfo = []byte("gophchat conversation encryption")
)

// KeyManager derives the message key once and hands out the cached value.
type KeyManager struct {
	secret []byte

	once sync.Once
	key  []byte
	err  error
}

func NewKeyManager(secret string) (*KeyManager, error) {
	if secret == "" {
		return nil, fmt.Errorf("encryption secret: %w", common.ErrMissingSecret)
	}
	return &KeyManager{secret: []byte(secret)}, nil
}

// Key returns the 256-bit key derived with HKDF-SHA256. Every call on the
// same KeyManager returns identical bytes.
func (m *KeyManager) Key() ([]byte, error) {
	m.once.Do(func() {
		r := hkdf.New(sha256.New, m.secret, keySalt, keyInfo)
		key := make([]byte, keySize)
		if _, err := io.ReadFull(r, key); err != nil {
			m.err = fmt.Errorf("derive key: %w", err)
			return
		}
		m.key = key
		common.WipeByteArray(m.secret)
		m.secret = nil
	})
	if m.err != nil {
		return nil, m.err
	}
	out := make([]byte, len(m.key))
	copy(out, m.key)
	return out, nil
}
