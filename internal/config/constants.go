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
	ServerRequestTimeout  = 30 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Ping timeout for backing stores at startup
const StorePingTimeout = 5 * time.Second

// Background job intervals
const CleanupJobInterval = 15 * time.Minute

// Default rate limiting
const DefaultRateLimitPerMin = 120

// Session store backends
const (
	SessionStoreMemory   = "memory"
	SessionStoreRedis    = "redis"
	SessionStorePostgres = "postgres"
)

// OAuth state modes
const (
	StateModeNonce = "nonce"
	StateModeID    = "id"
)

// Playback error reporting modes
const (
	PlaybackErrorModeError  = "error"
	PlaybackErrorModePaused = "paused"
)
