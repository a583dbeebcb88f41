package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigMethods(t *testing.T) {
	t.Run("Addr returns formatted port", func(t *testing.T) {
		cfg := &Config{Port: 3000}
		assert.Equal(t, ":3000", cfg.Addr())
	})

	t.Run("durations convert from integer settings", func(t *testing.T) {
		cfg := &Config{
			OAuthStateTTLSeconds:   600,
			TokenSkewSeconds:       60,
			ProviderTimeoutMs:      5000,
			PollIntervalMs:         3000,
			PollIdleTimeoutSeconds: 600,
			SnapshotFreshnessMs:    5000,
			SnapshotTTLSeconds:     60,
			SessionIdleTTLHours:    720,
		}
		assert.Equal(t, 10*time.Minute, cfg.OAuthStateTTL())
		assert.Equal(t, time.Minute, cfg.TokenSkew())
		assert.Equal(t, 5*time.Second, cfg.ProviderTimeout())
		assert.Equal(t, 3*time.Second, cfg.PollInterval())
		assert.Equal(t, 10*time.Minute, cfg.PollIdleTimeout())
		assert.Equal(t, 5*time.Second, cfg.SnapshotFreshness())
		assert.Equal(t, time.Minute, cfg.SnapshotTTL())
		assert.Equal(t, 30*24*time.Hour, cfg.SessionIdleTTL())
	})
}

func validConfig() *Config {
	return &Config{
		SessionStore:           SessionStoreMemory,
		OAuthStateMode:         StateModeNonce,
		PlaybackErrorMode:      PlaybackErrorModeError,
		PollIntervalMs:         3000,
		PollIdleTimeoutSeconds: 600,
		SnapshotFreshnessMs:    5000,
		ProviderTimeoutMs:      5000,
	}
}

func TestValidate(t *testing.T) {
	t.Run("accepts defaults", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate(false))
	})

	t.Run("redis store requires REDIS_URL", func(t *testing.T) {
		cfg := validConfig()
		cfg.SessionStore = SessionStoreRedis
		assert.Error(t, cfg.Validate(false))

		cfg.RedisURL = "redis://localhost:6379"
		assert.NoError(t, cfg.Validate(false))
	})

	t.Run("postgres store requires DATABASE_URL", func(t *testing.T) {
		cfg := validConfig()
		cfg.SessionStore = SessionStorePostgres
		assert.Error(t, cfg.Validate(false))

		cfg.DatabaseURL = "postgres://localhost/test"
		assert.NoError(t, cfg.Validate(false))
	})

	t.Run("rejects unknown modes", func(t *testing.T) {
		cfg := validConfig()
		cfg.SessionStore = "etcd"
		assert.Error(t, cfg.Validate(false))

		cfg = validConfig()
		cfg.OAuthStateMode = "cookie"
		assert.Error(t, cfg.Validate(false))

		cfg = validConfig()
		cfg.PlaybackErrorMode = "ignore"
		assert.Error(t, cfg.Validate(false))
	})

	t.Run("rejects short encryption key", func(t *testing.T) {
		cfg := validConfig()
		cfg.EncryptionKey = "abcd"
		assert.Error(t, cfg.Validate(false))

		cfg.EncryptionKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
		assert.NoError(t, cfg.Validate(true))
	})

	t.Run("rejects non-positive poll interval", func(t *testing.T) {
		cfg := validConfig()
		cfg.PollIntervalMs = 0
		assert.Error(t, cfg.Validate(false))
	})

	t.Run("rejects non-positive poll idle timeout", func(t *testing.T) {
		cfg := validConfig()
		cfg.PollIdleTimeoutSeconds = 0
		assert.Error(t, cfg.Validate(false))

		cfg.PollIdleTimeoutSeconds = -5
		assert.Error(t, cfg.Validate(false))
	})

	t.Run("rejects non-positive snapshot freshness", func(t *testing.T) {
		cfg := validConfig()
		cfg.SnapshotFreshnessMs = 0
		assert.Error(t, cfg.Validate(false))
	})
}

func TestLoad(t *testing.T) {
	for _, key := range []string{
		"PORT", "SESSION_STORE", "POLL_INTERVAL_MS", "LOG_LEVEL", "OAUTH_STATE_MODE",
		"CONTROLS_ENABLED", "PLAYBACK_ERROR_MODE",
	} {
		if v, ok := os.LookupEnv(key); ok {
			t.Setenv(key, v)
			os.Unsetenv(key)
		}
	}

	t.Run("loads config with defaults", func(t *testing.T) {
		t.Setenv("SPOTIFY_CLIENT_ID", "client")
		t.Setenv("SPOTIFY_CLIENT_SECRET", "secret")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 8080, cfg.Port)
		assert.Equal(t, "client", cfg.SpotifyClientID)
		assert.Equal(t, "http://localhost:8080/callback", cfg.SpotifyRedirectURL)
		assert.Equal(t, SessionStoreMemory, cfg.SessionStore)
		assert.Equal(t, StateModeNonce, cfg.OAuthStateMode)
		assert.Equal(t, PlaybackErrorModeError, cfg.PlaybackErrorMode)
		assert.Equal(t, 3000, cfg.PollIntervalMs)
		assert.Equal(t, 60, cfg.TokenSkewSeconds)
		assert.Equal(t, 60, cfg.SnapshotTTLSeconds)
		assert.True(t, cfg.ControlsEnabled)
		assert.Equal(t, "info", cfg.LogLevel)
	})

	t.Run("loads custom values", func(t *testing.T) {
		t.Setenv("SPOTIFY_CLIENT_ID", "client")
		t.Setenv("SPOTIFY_CLIENT_SECRET", "secret")
		t.Setenv("PORT", "3000")
		t.Setenv("SESSION_STORE", "redis")
		t.Setenv("POLL_INTERVAL_MS", "1500")
		t.Setenv("CONTROLS_ENABLED", "false")
		t.Setenv("LOG_LEVEL", "debug")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 3000, cfg.Port)
		assert.Equal(t, SessionStoreRedis, cfg.SessionStore)
		assert.Equal(t, 1500, cfg.PollIntervalMs)
		assert.False(t, cfg.ControlsEnabled)
		assert.Equal(t, "debug", cfg.LogLevel)
	})

	t.Run("fails without required client credentials", func(t *testing.T) {
		t.Setenv("SPOTIFY_CLIENT_ID", "")
		os.Unsetenv("SPOTIFY_CLIENT_ID")
		t.Setenv("SPOTIFY_CLIENT_SECRET", "secret")

		_, err := Load()
		assert.Error(t, err)
	})
}
