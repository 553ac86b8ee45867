package config

import (
	"os"
	"strconv"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/flagx"
	"github.com/joho/godotenv"
)

const envPrefix = "GOPHCHAT_"

// parseEnv overlays GOPHCHAT_* environment variables onto config.
//
// A dotenv file named by -env/-env-file is loaded first and must exist;
// otherwise ./.env is loaded when present. Variables already set in the
// process environment are never overridden by the file.
func parseEnv(config *Config) {
	if path := flagx.EnvFileFlags(); path != "" {
		if err := godotenv.Load(path); err != nil {
			panic(err)
		}
	} else {
		_ = godotenv.Load()
	}

	setString(&config.EndpointAddrGRPC, "ENDPOINT_ADDR_GRPC")
	setString(&config.DatabaseDSN, "DATABASE_DSN")
	setString(&config.IdentitySecret, "IDENTITY_SECRET")
	setString(&config.EncryptionSecret, "ENCRYPTION_SECRET")
	setString(&config.S3RootUser, "S3_ROOT_USER")
	setString(&config.S3RootPassword, "S3_ROOT_PASSWORD")
	setString(&config.S3Bucket, "S3_BUCKET")
	setString(&config.S3Region, "S3_REGION")
	setString(&config.S3BaseEndpoint, "S3_BASE_ENDPOINT")
	setString(&config.S3PublicBaseURL, "S3_PUBLIC_BASE_URL")
	setDuration(&config.PresenceThreshold, "PRESENCE_THRESHOLD")
	setDuration(&config.HeartbeatInterval, "HEARTBEAT_INTERVAL")
	setDuration(&config.OperationTimeout, "OPERATION_TIMEOUT")
	setInt(&config.RetryAttempts, "RETRY_ATTEMPTS")
	setFloat(&config.RateLimitRPS, "RATE_LIMIT_RPS")
	setInt(&config.RateLimitBurst, "RATE_LIMIT_BURST")
	setInt(&config.HistoryPageSize, "HISTORY_PAGE_SIZE")
	setString(&config.FeedBackend, "FEED_BACKEND")
	setString(&config.LogLevel, "LOG_LEVEL")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(envPrefix + key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(envPrefix + key); ok && v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			panic(err)
		}
		*dst = i
	}
}

func setFloat(dst *float64, key string) {
	if v, ok := os.LookupEnv(envPrefix + key); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			panic(err)
		}
		*dst = f
	}
}

func setDuration(dst *time.Duration, key string) {
	if v, ok := os.LookupEnv(envPrefix + key); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			panic(err)
		}
		*dst = d
	}
}
