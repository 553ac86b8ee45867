package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/gophchat/internal/flagx"
	"github.com/dmitrijs2005/gophchat/internal/timex"
)

// JsonConfig is the on-disk shape of the JSON configuration file.
// Duration fields use timex.Duration so both "5m" and integer nanoseconds
// are accepted. Pointer fields distinguish "absent" from a zero value.
type JsonConfig struct {
	EndpointAddrGRPC  string          `json:"endpoint_addr_grpc"`
	DatabaseDSN       string          `json:"database_dsn"`
	IdentitySecret    string          `json:"identity_secret"`
	EncryptionSecret  string          `json:"encryption_secret"`
	S3RootUser        string          `json:"s3_root_user"`
	S3RootPassword    string          `json:"s3_root_password"`
	S3Bucket          string          `json:"s3_bucket"`
	S3Region          string          `json:"s3_region"`
	S3BaseEndpoint    string          `json:"s3_base_endpoint"`
	S3PublicBaseURL   string          `json:"s3_public_base_url"`
	PresenceThreshold *timex.Duration `json:"presence_threshold"`
	HeartbeatInterval *timex.Duration `json:"heartbeat_interval"`
	OperationTimeout  *timex.Duration `json:"operation_timeout"`
	RetryAttempts     *int            `json:"retry_attempts"`
	RateLimitRPS      *float64        `json:"rate_limit_rps"`
	RateLimitBurst    *int            `json:"rate_limit_burst"`
	HistoryPageSize   *int            `json:"history_page_size"`
	FeedBackend       string          `json:"feed_backend"`
	LogLevel          string          `json:"log_level"`
}

// parseJson loads configuration values from the JSON file named by the
// -c or -config flag. Without the flag nothing is loaded. Values present in
// the file override what is already in config; absent ones are left alone.
// An unreadable file or invalid JSON panics.
func parseJson(config *Config) {

	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	overlay(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	overlay(&config.DatabaseDSN, c.DatabaseDSN)
	overlay(&config.IdentitySecret, c.IdentitySecret)
	overlay(&config.EncryptionSecret, c.EncryptionSecret)
	overlay(&config.S3RootUser, c.S3RootUser)
	overlay(&config.S3RootPassword, c.S3RootPassword)
	overlay(&config.S3Bucket, c.S3Bucket)
	overlay(&config.S3Region, c.S3Region)
	overlay(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	overlay(&config.S3PublicBaseURL, c.S3PublicBaseURL)
	overlay(&config.FeedBackend, c.FeedBackend)
	overlay(&config.LogLevel, c.LogLevel)

	if c.PresenceThreshold != nil {
		config.PresenceThreshold = c.PresenceThreshold.Duration
	}
	if c.HeartbeatInterval != nil {
		config.HeartbeatInterval = c.HeartbeatInterval.Duration
	}
	if c.OperationTimeout != nil {
		config.OperationTimeout = c.OperationTimeout.Duration
	}
	if c.RetryAttempts != nil {
		config.RetryAttempts = *c.RetryAttempts
	}
	if c.RateLimitRPS != nil {
		config.RateLimitRPS = *c.RateLimitRPS
	}
	if c.RateLimitBurst != nil {
		config.RateLimitBurst = *c.RateLimitBurst
	}
	if c.HistoryPageSize != nil {
		config.HistoryPageSize = *c.HistoryPageSize
	}
}

func overlay(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
