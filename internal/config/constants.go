package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Background job intervals
const CredentialSyncInterval = 5 * time.Minute

// Default rate limiting
const DefaultRateLimitPerMin = 120

// Session worker settings
const (
	SessionEventBuffer   = 256
	SessionOpenTimeout   = 30 * time.Second
	SessionNotifyTimeout = 2 * time.Second
	SendTimeout          = 30 * time.Second
)

// Window for the per-contact inbound flood guard
const FloodWindow = time.Minute

// Dedupe cache bounds when running without redis
const DedupeMaxEntries = 50000
