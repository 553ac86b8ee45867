package cryptox

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodec(t *testing.T, secret string) *Codec {
	t.Helper()
	m, err := NewKeyManager(secret)
	require.NoError(t, err)
	c, err := NewCodecFromManager(m)
	require.NoError(t, err)
	return c
}

func flipFirstBit(t *testing.T, b64 string) string {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(b64)
	require.NoError(t, err)
	raw[0] ^= 0x01
	return base64.StdEncoding.EncodeToString(raw)
}

func TestNewCodec_RejectsShortKey(t *testing.T) {
	_, err := NewCodec(make([]byte, 16))
	require.Error(t, err)
}

func TestCodec_RoundTrip(t *testing.T) {
	c := newTestCodec(t, "secret")
	for _, s := range []string{"", "hello", "привет 👋", string(make([]byte, 4096))} {
		ct, iv, err := c.Encrypt(s)
		require.NoError(t, err)
		assert.Equal(t, s, c.Decrypt(ct, iv))
	}
}

func TestCodec_FreshNonceEveryCall(t *testing.T) {
	c := newTestCodec(t, "secret")
	ct1, iv1, err := c.Encrypt("same")
	require.NoError(t, err)
	ct2, iv2, err := c.Encrypt("same")
	require.NoError(t, err)

	assert.NotEqual(t, iv1, iv2)
	assert.NotEqual(t, ct1, ct2)

	raw, err := base64.StdEncoding.DecodeString(iv1)
	require.NoError(t, err)
	assert.Len(t, raw, 12)
}

func TestCodec_TamperDetection(t *testing.T) {
	c := newTestCodec(t, "secret")
	ct, iv, err := c.Encrypt("transfer 100")
	require.NoError(t, err)

	assert.Equal(t, DecryptionFailed, c.Decrypt(flipFirstBit(t, ct), iv))
	assert.Equal(t, DecryptionFailed, c.Decrypt(ct, flipFirstBit(t, iv)))
}

func TestCodec_MalformedInput(t *testing.T) {
	c := newTestCodec(t, "secret")
	ct, iv, err := c.Encrypt("x")
	require.NoError(t, err)

	tests := []struct {
		name string
		ct   string
		iv   string
	}{
		{"bad base64 text", "%%%", iv},
		{"bad base64 iv", ct, "%%%"},
		{"short iv", ct, base64.StdEncoding.EncodeToString([]byte("short"))},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, DecryptionFailed, c.Decrypt(tt.ct, tt.iv))
		})
	}
}

func TestCodec_WrongKey(t *testing.T) {
	a := newTestCodec(t, "alpha")
	b := newTestCodec(t, "beta")
	ct, iv, err := a.Encrypt("hi")
	require.NoError(t, err)
	assert.Equal(t, DecryptionFailed, b.Decrypt(ct, iv))
}
