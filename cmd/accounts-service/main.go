package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/accounts-service/internal/config"
	"github.com/vasiliy-maslov/accounts-service/internal/db"
	userHttp "github.com/vasiliy-maslov/accounts-service/internal/handler/http"
	"github.com/vasiliy-maslov/accounts-service/internal/hash"
	userService "github.com/vasiliy-maslov/accounts-service/internal/user"
)

func main() {
	log.Logger = log.With().Str("service", "accounts-service").Logger()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	setupLogger(cfg.Log)

	log.Info().Msg("Accounts service starting...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbConn, err := db.New(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}

	hasher := hash.NewHasher(cfg.Hash.Cost, cfg.Hash.MaxConcurrency)
	log.Debug().Int("bcrypt_cost", hasher.Cost()).Int64("hash_concurrency", cfg.Hash.MaxConcurrency).Msg("Password hasher ready")

	userRepository := userService.NewRepository(dbConn.Pool)
	userSvc := userService.NewService(userRepository, hasher)
	userHandler := userHttp.NewUserHandler(userSvc, userHttp.WithPasswordHash(cfg.App.ExposePasswordHash))

	if cfg.App.ExposePasswordHash {
		log.Warn().Msg("Password hashes are included in API responses")
	}

	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      userHttp.NewRouter(userHandler, dbConn),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		dbConn.Close()
		log.Fatal().Err(err).Str("port", cfg.App.Port).Msg("Could not listen")
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	dbConn.Close()

	log.Info().Msg("Accounts service stopped gracefully")
}

func setupLogger(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		log.Warn().Str("level", cfg.Level).Msg("Unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}
