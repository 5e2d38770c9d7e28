package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/blinkdate/match-server-go/internal/config"
	"github.com/blinkdate/match-server-go/internal/database"
	"github.com/blinkdate/match-server-go/internal/handler"
	"github.com/blinkdate/match-server-go/internal/jobs"
	"github.com/blinkdate/match-server-go/internal/metrics"
	"github.com/blinkdate/match-server-go/internal/middleware"
	"github.com/blinkdate/match-server-go/internal/redis"
	"github.com/blinkdate/match-server-go/internal/repository"
	"github.com/blinkdate/match-server-go/internal/service"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	setLogLevel(cfg.LogLevel)

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	userRepo := repository.NewUserRepository(db.DB)
	sessionRepo := repository.NewMatchingSessionRepository(db.DB)
	callRepo := repository.NewCallSessionRepository(db.DB)
	videoRepo := repository.NewVideoSessionRepository(db.DB)
	matchRepo := repository.NewMatchRepository(db.DB)

	mailbox := service.NewMailbox(redisClient)
	rateLimiter := service.NewRateLimiter(redisClient)
	activityService := service.NewActivityService(userRepo)
	coordinator := service.NewCallCoordinator(
		db, redisClient, userRepo, sessionRepo, callRepo, videoRepo, matchRepo,
		mailbox, cfg.CallDuration(),
	)
	matchingService := service.NewMatchingService(
		db, userRepo, sessionRepo, callRepo, activityService, coordinator,
	)
	videoService := service.NewVideoService(
		db, redisClient, callRepo, videoRepo, matchRepo, mailbox, cfg.CallDuration(),
	)
	signalRelay := service.NewSignalRelay(
		videoRepo, callRepo, matchRepo, sessionRepo,
		mailbox, rateLimiter, activityService, coordinator,
		cfg.SignalRateLimitPerMin,
	)
	matchService := service.NewMatchService(
		db, redisClient, userRepo, matchRepo, videoRepo, mailbox,
	)

	authMiddleware := middleware.NewAuthMiddleware(userRepo, cfg.JWTSecret)

	matchingHandler := handler.NewMatchingHandler(matchingService)
	videoHandler := handler.NewVideoHandler(videoService, signalRelay, coordinator)
	matchHandler := handler.NewMatchHandler(matchService)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(middleware.BodyLimitMiddleware(config.MaxRequestBodyBytes))
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), config.DBPingTimeout)
		defer cancel()

		status := "ok"
		code := http.StatusOK
		if err := db.Ping(ctx); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    status,
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Handle("/metrics", metrics.Handler())

	r.Route("/matching", func(r chi.Router) {
		r.Use(authMiddleware.Handler)
		r.Mount("/", matchingHandler.Routes())
	})

	r.Route("/matches", func(r chi.Router) {
		r.Use(authMiddleware.Handler)
		r.Mount("/", matchHandler.Routes())
	})

	r.Route("/video", func(r chi.Router) {
		r.Use(authMiddleware.Handler)
		r.Mount("/", videoHandler.Routes())
	})

	cleanupJob := jobs.NewCleanupJob(sessionRepo, videoRepo, coordinator, config.CleanupJobInterval)
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
