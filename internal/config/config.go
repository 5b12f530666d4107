package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

const (
	CredentialBackendFS = "fs"
	CredentialBackendS3 = "s3"
)

type Config struct {
	Port         int    `env:"PORT" envDefault:"8080"`
	DatabaseURL  string `env:"DATABASE_URL,required"`
	RedisURL     string `env:"REDIS_URL"`
	APITokenHash string `env:"API_TOKEN_HASH"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`

	CredentialBackend string `env:"CREDENTIAL_BACKEND" envDefault:"fs"`
	CredentialDir     string `env:"CREDENTIAL_DIR" envDefault:"./data/credentials"`
	S3Bucket          string `env:"S3_BUCKET"`
	S3Region          string `env:"S3_REGION" envDefault:"us-east-1"`
	S3Endpoint        string `env:"S3_ENDPOINT"`
	S3Prefix          string `env:"S3_PREFIX" envDefault:"credentials/"`
	S3AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY"`
	EncryptionKey     string `env:"ENCRYPTION_KEY"`

	TransportWorkDir string `env:"TRANSPORT_WORK_DIR" envDefault:"./data/transport"`
	MessagesFile     string `env:"MESSAGES_FILE"`

	ReconnectDelayMs           int `env:"RECONNECT_DELAY_MS" envDefault:"3000"`
	WatchdogIntervalSeconds    int `env:"WATCHDOG_INTERVAL_SECONDS" envDefault:"60"`
	PairingTimeoutSeconds      int `env:"PAIRING_TIMEOUT_SECONDS" envDefault:"600"`
	StaleMessageSeconds        int `env:"STALE_MESSAGE_SECONDS" envDefault:"120"`
	MediaSpacingMs             int `env:"MEDIA_SPACING_MS" envDefault:"500"`
	DetailSpacingMs            int `env:"DETAIL_SPACING_MS" envDefault:"800"`
	CollaboratorTimeoutSeconds int `env:"COLLABORATOR_TIMEOUT_SECONDS" envDefault:"10"`
	SearchResultLimit          int `env:"SEARCH_RESULT_LIMIT" envDefault:"3"`
	DedupeTTLSeconds           int `env:"DEDUPE_TTL_SECONDS" envDefault:"600"`
	FloodLimitPerMin           int `env:"FLOOD_LIMIT_PER_MIN" envDefault:"30"`
}

func (c *Config) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelayMs) * time.Millisecond
}

func (c *Config) WatchdogInterval() time.Duration {
	return time.Duration(c.WatchdogIntervalSeconds) * time.Second
}

func (c *Config) PairingTimeout() time.Duration {
	return time.Duration(c.PairingTimeoutSeconds) * time.Second
}

func (c *Config) StaleMessageTolerance() time.Duration {
	return time.Duration(c.StaleMessageSeconds) * time.Second
}

func (c *Config) MediaSpacing() time.Duration {
	return time.Duration(c.MediaSpacingMs) * time.Millisecond
}

func (c *Config) DetailSpacing() time.Duration {
	return time.Duration(c.DetailSpacingMs) * time.Millisecond
}

func (c *Config) CollaboratorTimeout() time.Duration {
	return time.Duration(c.CollaboratorTimeoutSeconds) * time.Second
}

func (c *Config) DedupeTTL() time.Duration {
	return time.Duration(c.DedupeTTLSeconds) * time.Second
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate(isProduction bool) error {
	switch c.CredentialBackend {
	case CredentialBackendFS:
		if c.CredentialDir == "" {
			return fmt.Errorf("CREDENTIAL_DIR is required when CREDENTIAL_BACKEND=fs")
		}
	case CredentialBackendS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when CREDENTIAL_BACKEND=s3")
		}
	default:
		return fmt.Errorf("CREDENTIAL_BACKEND must be %q or %q, got %q", CredentialBackendFS, CredentialBackendS3, c.CredentialBackend)
	}

	if c.EncryptionKey != "" && len(c.EncryptionKey) != 64 {
		return fmt.Errorf("ENCRYPTION_KEY must be 32 bytes hex encoded (generate with: openssl rand -hex 32)")
	}

	if c.SearchResultLimit <= 0 {
		return fmt.Errorf("SEARCH_RESULT_LIMIT must be positive")
	}

	if isProduction {
		if c.APITokenHash == "" {
			return fmt.Errorf("API_TOKEN_HASH is required in production (generate with: go run scripts/hash-token.go)")
		}
		if c.RedisURL == "" {
			log.Warn().Msg("REDIS_URL is empty in production: dedup and rate limits are process-local")
		} else if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
		if c.EncryptionKey == "" {
			log.Warn().Msg("ENCRYPTION_KEY is empty in production: pairing credentials will not be encrypted at rest")
		}
	}

	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
