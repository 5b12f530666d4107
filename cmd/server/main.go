package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/zapflow/bot-server-go/internal/config"
	"github.com/zapflow/bot-server-go/internal/credstore"
	"github.com/zapflow/bot-server-go/internal/database"
	"github.com/zapflow/bot-server-go/internal/dedupe"
	"github.com/zapflow/bot-server-go/internal/handler"
	"github.com/zapflow/bot-server-go/internal/jobs"
	"github.com/zapflow/bot-server-go/internal/middleware"
	"github.com/zapflow/bot-server-go/internal/redis"
	"github.com/zapflow/bot-server-go/internal/repository"
	"github.com/zapflow/bot-server-go/internal/service"
	"github.com/zapflow/bot-server-go/internal/sse"
	"github.com/zapflow/bot-server-go/internal/whatsapp"
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

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	if err := db.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure schema")
	}
	cancel()
	log.Info().Msg("database connected")

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = redis.NewClient(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		log.Info().Msg("redis connected")
	} else {
		log.Warn().Msg("REDIS_URL not set: dedup, rate limits and events are process-local")
	}

	creds, err := newCredentialStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open credential store")
	}

	msgs, err := service.LoadMessages(cfg.MessagesFile)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.MessagesFile).Msg("failed to load bot messages")
	}

	chatRepo := repository.NewChatMessageRepository(db.DB)
	catalogRepo := repository.NewCatalogRepository(db.DB)
	faqRepo := repository.NewFAQRepository(db.DB)
	leadRepo := repository.NewLeadRepository(db.DB)

	broker := sse.NewBroker(redisClient)
	defer broker.Close()

	var deduper dedupe.Deduper
	var floodGuard service.InboundLimiter
	var apiLimiter middleware.Limiter
	if redisClient != nil {
		deduper = dedupe.NewRedisDeduper(redisClient.Client, cfg.DedupeTTL())
		floodGuard = service.NewFloodGuard(redisClient.Client, cfg.FloodLimitPerMin, config.FloodWindow)
		apiLimiter = middleware.NewRedisRateLimiter(redisClient.Client)
	} else {
		memCache := dedupe.NewMemoryCache(cfg.DedupeTTL(), config.DedupeMaxEntries)
		defer memCache.Close()
		deduper = memCache
		apiLimiter = middleware.NewRateLimiter()
	}

	sessions := service.NewSessionManager(
		whatsapp.NewFactory(creds, cfg.TransportWorkDir),
		creds,
		broker,
		service.SessionConfig{
			ReconnectDelay:   cfg.ReconnectDelay(),
			WatchdogInterval: cfg.WatchdogInterval(),
			PairingTimeout:   cfg.PairingTimeout(),
			EventBuffer:      config.SessionEventBuffer,
			OpenTimeout:      config.SessionOpenTimeout,
			NotifyTimeout:    config.SessionNotifyTimeout,
		},
	)
	state := service.NewStateStore()
	dispatcher := service.NewDispatcher(sessions, chatRepo, service.DispatcherConfig{
		MediaSpacing:  cfg.MediaSpacing(),
		DetailSpacing: cfg.DetailSpacing(),
		SendTimeout:   config.SendTimeout,
	})
	engine := service.NewDialogueEngine(
		state,
		dispatcher,
		service.NewCatalogService(catalogRepo),
		service.NewFAQService(faqRepo),
		service.NewLeadService(leadRepo),
		msgs,
		service.DialogueConfig{
			SearchLimit:         cfg.SearchResultLimit,
			CollaboratorTimeout: cfg.CollaboratorTimeout(),
		},
	)
	sessions.SetInboundHandler(service.NewIngestor(chatRepo, engine, deduper, floodGuard, service.IngestConfig{
		StaleTolerance: cfg.StaleMessageTolerance(),
	}))
	registry := service.NewRegistry(sessions, state, dispatcher, chatRepo)

	sessions.StartWatchdog()

	autoStartCtx, autoStartCancel := context.WithTimeout(context.Background(), config.SessionOpenTimeout)
	if err := sessions.AutoStart(autoStartCtx); err != nil {
		log.Error().Err(err).Msg("auto-start failed")
	}
	autoStartCancel()

	syncJob := jobs.NewCredentialSyncJob(sessions, config.CredentialSyncInterval)
	syncJob.Start()

	authMiddleware := middleware.NewAuthMiddleware(cfg.APITokenHash)
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(apiLimiter, config.DefaultRateLimitPerMin)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)

	eventsHandler := handler.NewEventsHandler(broker, registry)
	sessionHandler := handler.NewSessionHandler(registry, eventsHandler)
	conversationHandler := handler.NewConversationHandler(registry, sessionHandler)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(securityHeadersMiddleware.Handler)
	r.Use(bodyLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"sessions":  len(registry.ListSessions()),
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(authMiddleware.Handler)

		r.With(rateLimitMiddleware.Handler).Get("/sessions", sessionHandler.ListSessions)

		r.Route("/tenants/{tenantId}", func(r chi.Router) {
			r.Use(rateLimitMiddleware.Handler)
			// The event stream is long-lived, so only the other routes get a timeout.
			r.Mount("/session", sessionHandler.Routes())
			r.With(chimiddleware.Timeout(config.ServerRequestTimeout)).Mount("/", conversationHandler.Routes())
		})
	})

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(sigCtx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server forced to shutdown")
		}
		syncJob.Stop()
		sessions.Close(shutdownCtx)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server exited with error")
	}

	log.Info().Msg("server stopped")
}

func newCredentialStore(cfg *config.Config) (credstore.Store, error) {
	var store credstore.Store
	switch cfg.CredentialBackend {
	case config.CredentialBackendS3:
		ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
		defer cancel()
		s3Store, err := credstore.NewS3Store(ctx, credstore.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			Prefix:          cfg.S3Prefix,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		store = s3Store
	default:
		fileStore, err := credstore.NewFileStore(cfg.CredentialDir)
		if err != nil {
			return nil, err
		}
		store = fileStore
	}

	if cfg.EncryptionKey != "" {
		store = credstore.NewEncrypted(store, cfg.EncryptionKey)
	}
	log.Info().
		Str("backend", cfg.CredentialBackend).
		Bool("encrypted", cfg.EncryptionKey != "").
		Msg("credential store ready")
	return store, nil
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
