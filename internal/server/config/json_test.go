package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson_SourcesAndPrecedence(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	dir := t.TempDir()
	pathFlag := writeTempJSON(t, dir, "flag.json", map[string]any{
		"endpoint_addr_grpc": "www.example:9000",
		"database_dsn":       "chat.db",
		"identity_secret":    "id_secret",
		"encryption_secret":  "enc_secret",
		"s3_bucket":          "bucket",
		"presence_threshold": "2m",
		"heartbeat_interval": 30000000000,
		"retry_attempts":     0,
		"history_page_size":  25,
		"feed_backend":       "memory",
	})

	t.Run("loads from json", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", pathFlag}

		cfg := &Config{}
		cfg.LoadDefaults()
		parseJson(cfg)

		assert.Equal(t, "www.example:9000", cfg.EndpointAddrGRPC)
		assert.Equal(t, "chat.db", cfg.DatabaseDSN)
		assert.Equal(t, "id_secret", cfg.IdentitySecret)
		assert.Equal(t, "enc_secret", cfg.EncryptionSecret)
		assert.Equal(t, "bucket", cfg.S3Bucket)
		assert.Equal(t, 2*time.Minute, cfg.PresenceThreshold)
		assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval)
		assert.Equal(t, 0, cfg.RetryAttempts)
		assert.Equal(t, 25, cfg.HistoryPageSize)
		assert.Equal(t, FeedMemory, cfg.FeedBackend)

		// absent keys keep their defaults
		assert.Equal(t, "us-east-1", cfg.S3Region)
		assert.Equal(t, 40, cfg.RateLimitBurst)
	})

	t.Run("no config flag, no changes", func(t *testing.T) {
		os.Args = []string{"testbin"}

		cfg := &Config{EndpointAddrGRPC: "defaults:1234", PresenceThreshold: time.Minute}
		parseJson(cfg)

		assert.Equal(t, "defaults:1234", cfg.EndpointAddrGRPC)
		assert.Equal(t, time.Minute, cfg.PresenceThreshold)
	})

	t.Run("invalid JSON panics", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))

		os.Args = []string{"testbin", "-config", bad}

		cfg := &Config{}
		require.Panics(t, func() { parseJson(cfg) })
	})
}
