package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/nowplaying-relay-go/internal/config"
	"github.com/openclaw/nowplaying-relay-go/internal/database"
	"github.com/openclaw/nowplaying-relay-go/internal/handler"
	"github.com/openclaw/nowplaying-relay-go/internal/jobs"
	"github.com/openclaw/nowplaying-relay-go/internal/middleware"
	"github.com/openclaw/nowplaying-relay-go/internal/provider"
	"github.com/openclaw/nowplaying-relay-go/internal/redis"
	"github.com/openclaw/nowplaying-relay-go/internal/repository"
	"github.com/openclaw/nowplaying-relay-go/internal/service"
	"github.com/openclaw/nowplaying-relay-go/internal/sse"
	"github.com/openclaw/nowplaying-relay-go/internal/util"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	cipher, err := util.NewCipher(cfg.EncryptionKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize token cipher")
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = redis.NewClient(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		log.Info().Msg("redis connected")
	}

	var sessionRepo repository.SessionRepository
	switch cfg.SessionStore {
	case config.SessionStoreRedis:
		sessionRepo = repository.NewRedisSessionRepository(redisClient.Client, cipher, cfg.SessionIdleTTL())
	case config.SessionStorePostgres:
		db, err := database.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(context.Background(), config.StorePingTimeout)
		if err := db.Ping(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to ping database")
		}
		if err := db.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate database")
		}
		cancel()
		log.Info().Msg("database connected")

		sessionRepo = repository.NewPostgresSessionRepository(db.DB, cipher)
	default:
		sessionRepo = repository.NewMemorySessionRepository()
	}

	var (
		stateRepo    repository.OAuthStateRepository
		snapshotRepo repository.SnapshotRepository
		limiter      middleware.Limiter
	)
	if redisClient != nil {
		stateRepo = repository.NewRedisOAuthStateRepository(redisClient.Client)
		snapshotRepo = repository.NewRedisSnapshotRepository(redisClient.Client)
		limiter = middleware.NewRedisRateLimiter(redisClient.Client)
	} else {
		stateRepo = repository.NewMemoryOAuthStateRepository()
		snapshotRepo = repository.NewMemorySnapshotRepository()
		limiter = middleware.NewRateLimiter()
	}

	log.Info().
		Str("sessionStore", cfg.SessionStore).
		Bool("redis", redisClient != nil).
		Bool("encrypted", cfg.EncryptionKey != "").
		Str("stateMode", cfg.OAuthStateMode).
		Msg("stores configured")

	spotify := provider.NewClient(provider.Config{
		ClientID:        cfg.SpotifyClientID,
		ClientSecret:    cfg.SpotifyClientSecret,
		RedirectURL:     cfg.SpotifyRedirectURL,
		AuthURL:         cfg.SpotifyAuthURL,
		TokenURL:        cfg.SpotifyTokenURL,
		APIURL:          cfg.SpotifyAPIURL,
		ControlsEnabled: cfg.ControlsEnabled,
		Timeout:         cfg.ProviderTimeout(),
		RatePerSecond:   cfg.ProviderRatePerSecond,
		RateBurst:       cfg.ProviderRateBurst,
	})

	broker := sse.NewBroker(redisClient)
	defer broker.Close()

	tokenRefresher := service.NewTokenRefresher(sessionRepo, spotify, cfg.TokenSkew())
	playbackService := service.NewPlaybackService(sessionRepo, snapshotRepo, tokenRefresher, spotify, service.PlaybackOptions{
		Freshness: cfg.SnapshotFreshness(),
		TTL:       cfg.SnapshotTTL(),
		ErrorMode: cfg.PlaybackErrorMode,
	})
	authService := service.NewAuthService(sessionRepo, stateRepo, spotify, playbackService, service.AuthOptions{
		StateMode: cfg.OAuthStateMode,
		StateTTL:  cfg.OAuthStateTTL(),
	})
	controlService := service.NewControlService(tokenRefresher, spotify, cfg.ControlsEnabled)

	poller := jobs.NewPlaybackPoller(playbackService, cfg.PollInterval(), cfg.PollIdleTimeout())
	defer poller.Stop()
	playbackService.SetWatcher(poller)
	playbackService.SetPublisher(broker)

	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)
	loginRateLimit := middleware.NewRateLimitMiddleware(limiter, "login", cfg.RateLimitPerMin, time.Minute, middleware.KeyByIP)
	readRateLimit := middleware.NewRateLimitMiddleware(limiter, "read", cfg.RateLimitPerMin, time.Minute, middleware.KeyByCorrelationID)
	controlRateLimit := middleware.NewRateLimitMiddleware(limiter, "control", cfg.RateLimitPerMin, time.Minute, middleware.KeyByCorrelationID)

	authHandler := handler.NewAuthHandler(authService)
	playbackHandler := handler.NewPlaybackHandler(playbackService)
	controlHandler := handler.NewControlHandler(controlService)
	eventsHandler := handler.NewEventsHandler(broker, playbackService)
	healthHandler := handler.NewHealthHandler(broker, poller)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)

	// Long-lived stream; the request timeout would cut it off.
	r.With(readRateLimit.Handler).Get("/events", eventsHandler.ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
		r.Use(bodyLimitMiddleware.Handler)

		r.Get("/health", healthHandler.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(securityHeadersMiddleware.Handler)
			r.Use(loginRateLimit.Handler)
			r.Get("/login", authHandler.Login)
			r.Get("/callback", authHandler.Callback)
		})

		r.Group(func(r chi.Router) {
			r.Use(readRateLimit.Handler)
			r.Get("/current-track", playbackHandler.CurrentTrack)
			r.Get("/status", authHandler.Status)
		})

		r.Group(func(r chi.Router) {
			r.Use(controlRateLimit.Handler)
			r.Post("/play", controlHandler.Action(provider.ActionPlay))
			r.Post("/pause", controlHandler.Action(provider.ActionPause))
			r.Post("/next", controlHandler.Action(provider.ActionNext))
			r.Post("/previous", controlHandler.Action(provider.ActionPrevious))
			r.Post("/playback-control", controlHandler.PlaybackControl)
			r.Post("/play-pause", controlHandler.PlayPause)
			r.Post("/revoke", authHandler.Revoke)
		})
	})

	cleanupJob := jobs.NewCleanupJob(
		sessionRepo, stateRepo, snapshotRepo, playbackService,
		cfg.SessionIdleTTL(), config.CleanupJobInterval,
	)
	cleanupJob.Start()
	defer cleanupJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
