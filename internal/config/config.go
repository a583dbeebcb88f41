package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port     int    `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	SpotifyClientID     string `env:"SPOTIFY_CLIENT_ID,required"`
	SpotifyClientSecret string `env:"SPOTIFY_CLIENT_SECRET,required"`
	SpotifyRedirectURL  string `env:"SPOTIFY_REDIRECT_URL" envDefault:"http://localhost:8080/callback"`
	SpotifyAuthURL      string `env:"SPOTIFY_AUTH_URL" envDefault:"https://accounts.spotify.com/authorize"`
	SpotifyTokenURL     string `env:"SPOTIFY_TOKEN_URL" envDefault:"https://accounts.spotify.com/api/token"`
	SpotifyAPIURL       string `env:"SPOTIFY_API_URL" envDefault:"https://api.spotify.com/v1"`
	ControlsEnabled     bool   `env:"CONTROLS_ENABLED" envDefault:"true"`

	SessionStore  string `env:"SESSION_STORE" envDefault:"memory"`
	RedisURL      string `env:"REDIS_URL"`
	DatabaseURL   string `env:"DATABASE_URL"`
	EncryptionKey string `env:"ENCRYPTION_KEY"`

	OAuthStateMode       string `env:"OAUTH_STATE_MODE" envDefault:"nonce"`
	OAuthStateTTLSeconds int    `env:"OAUTH_STATE_TTL_SECONDS" envDefault:"600"`
	TokenSkewSeconds     int    `env:"TOKEN_SKEW_SECONDS" envDefault:"60"`

	ProviderTimeoutMs     int     `env:"PROVIDER_TIMEOUT_MS" envDefault:"5000"`
	ProviderRatePerSecond float64 `env:"PROVIDER_RATE_PER_SECOND" envDefault:"20"`
	ProviderRateBurst     int     `env:"PROVIDER_RATE_BURST" envDefault:"40"`

	PollIntervalMs         int    `env:"POLL_INTERVAL_MS" envDefault:"3000"`
	PollIdleTimeoutSeconds int    `env:"POLL_IDLE_TIMEOUT_SECONDS" envDefault:"600"`
	SnapshotFreshnessMs    int    `env:"SNAPSHOT_FRESHNESS_MS" envDefault:"5000"`
	SnapshotTTLSeconds     int    `env:"SNAPSHOT_TTL_SECONDS" envDefault:"60"`
	SessionIdleTTLHours    int    `env:"SESSION_IDLE_TTL_HOURS" envDefault:"720"`
	PlaybackErrorMode      string `env:"PLAYBACK_ERROR_MODE" envDefault:"error"`

	RateLimitPerMin int `env:"RATE_LIMIT_PER_MIN" envDefault:"120"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) OAuthStateTTL() time.Duration {
	return time.Duration(c.OAuthStateTTLSeconds) * time.Second
}

func (c *Config) TokenSkew() time.Duration {
	return time.Duration(c.TokenSkewSeconds) * time.Second
}

func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.ProviderTimeoutMs) * time.Millisecond
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

func (c *Config) PollIdleTimeout() time.Duration {
	return time.Duration(c.PollIdleTimeoutSeconds) * time.Second
}

func (c *Config) SnapshotFreshness() time.Duration {
	return time.Duration(c.SnapshotFreshnessMs) * time.Millisecond
}

func (c *Config) SnapshotTTL() time.Duration {
	return time.Duration(c.SnapshotTTLSeconds) * time.Second
}

func (c *Config) SessionIdleTTL() time.Duration {
	return time.Duration(c.SessionIdleTTLHours) * time.Hour
}

func (c *Config) Validate(isProduction bool) error {
	switch c.SessionStore {
	case SessionStoreMemory:
	case SessionStoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("SESSION_STORE=redis requires REDIS_URL")
		}
	case SessionStorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("SESSION_STORE=postgres requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown SESSION_STORE %q (want memory, redis or postgres)", c.SessionStore)
	}

	if c.OAuthStateMode != StateModeNonce && c.OAuthStateMode != StateModeID {
		return fmt.Errorf("unknown OAUTH_STATE_MODE %q (want nonce or id)", c.OAuthStateMode)
	}

	if c.PlaybackErrorMode != PlaybackErrorModeError && c.PlaybackErrorMode != PlaybackErrorModePaused {
		return fmt.Errorf("unknown PLAYBACK_ERROR_MODE %q (want error or paused)", c.PlaybackErrorMode)
	}

	if c.EncryptionKey != "" {
		key, err := hex.DecodeString(c.EncryptionKey)
		if err != nil || len(key) != 32 {
			return fmt.Errorf("ENCRYPTION_KEY must be 64 hex chars (generate with: openssl rand -hex 32)")
		}
	}

	if c.PollIntervalMs <= 0 || c.ProviderTimeoutMs <= 0 {
		return fmt.Errorf("POLL_INTERVAL_MS and PROVIDER_TIMEOUT_MS must be positive")
	}

	if c.PollIdleTimeoutSeconds <= 0 {
		return fmt.Errorf("POLL_IDLE_TIMEOUT_SECONDS must be positive")
	}
	if c.SnapshotFreshnessMs <= 0 {
		return fmt.Errorf("SNAPSHOT_FRESHNESS_MS must be positive")
	}

	if isProduction {
		if c.OAuthStateMode == StateModeID {
			log.Warn().Msg("OAUTH_STATE_MODE=id in production: callback state is the correlation id and is not CSRF protected")
		}
		if c.SessionStore == SessionStoreMemory {
			log.Warn().Msg("SESSION_STORE=memory in production: sessions are lost on restart")
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
		if c.EncryptionKey == "" && c.SessionStore != SessionStoreMemory {
			log.Warn().Msg("ENCRYPTION_KEY is empty in production: provider tokens will not be encrypted at rest")
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
