package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// DecryptionFailed replaces the text of any message that cannot be opened.
const DecryptionFailed = "[message cannot be decrypted]"

// Codec encrypts message text with AES-256-GCM. It is safe for concurrent use.
type Codec struct {
	aead cipher.AEAD
}

func NewCodec(key []byte) (*Codec, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("codec: key must be %d bytes, got %d", keySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Codec{aead: aead}, nil
}

// NewCodecFromManager builds a Codec over the key held by m.
func NewCodecFromManager(m *KeyManager) (*Codec, error) {
	key, err := m.Key()
	if err != nil {
		return nil, err
	}
	return NewCodec(key)
}

// Encrypt seals plaintext under a fresh random nonce. Both the ciphertext
// and the nonce are returned base64 encoded.
func (c *Codec) Encrypt(plaintext string) (cipherText, iv string, err error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", "", fmt.Errorf("nonce: %w", err)
	}
	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), base64.StdEncoding.EncodeToString(nonce), nil
}

// Decrypt opens a value produced by Encrypt. It never fails: malformed input,
// a wrong key or a tampered tag all yield DecryptionFailed.
func (c *Codec) Decrypt(cipherText, iv string) string {
	sealed, err := base64.StdEncoding.DecodeString(cipherText)
	if err != nil {
		return DecryptionFailed
	}
	nonce, err := base64.StdEncoding.DecodeString(iv)
	if err != nil || len(nonce) != c.aead.NonceSize() {
		return DecryptionFailed
	}
	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return DecryptionFailed
	}
	return string(plain)
}
