// Package main is the entrypoint for the licsync server.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/licsync/licsync/internal/api"
	"github.com/licsync/licsync/internal/config"
	"github.com/licsync/licsync/internal/directory"
	"github.com/licsync/licsync/internal/refsource"
	"github.com/licsync/licsync/internal/server"
	"github.com/licsync/licsync/internal/snapshot"
)

// Build-time variables set via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "/etc/licsync/server.yml", "path to server config")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("version", Version).Logger()
	if os.Getenv("ENV") != "production" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	logger.Info().
		Str("version", Version).
		Str("commit", Commit).
		Msg("starting licsync server")

	cfg, err := config.LoadServer(*configPath)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load configuration")
		return 1
	}
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return 1
	}

	pgCfg := directory.DefaultPostgresConfig(cfg.DatabaseURL)
	pgCfg.EnrollmentTable = cfg.Directory.EnrollmentTable
	pgCfg.UserTable = cfg.Directory.UserTable
	pgCfg.UpdatedAtColumn = cfg.Directory.UpdatedAtColumn

	dir, err := directory.NewPostgres(ctx, pgCfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to enrollment directory")
		return 1
	}
	defer dir.Close()

	store, err := snapshot.NewStore(cfg.SnapshotDir, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open snapshot store")
		return 1
	}

	orchestrator := server.New(store, dir, refsource.NewFile(cfg.ReferenceFeedPath), server.Options{
		Limits:            cfg.Limits(),
		Fields:            cfg.Fields(),
		DictionaryLogPath: cfg.DictionaryLogPath,
		ReferenceLogPath:  cfg.ReferenceLogPath,
	}, logger)

	if err := orchestrator.Bootstrap(ctx); err != nil {
		logger.Error().Err(err).Msg("bootstrap refresh failed")
		return 1
	}

	router := api.NewRouter(api.Config{
		NodeKeys: cfg.NodeKeys,
		Version:  Version,
		Commit:   Commit,
	}, orchestrator, logger)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router.Engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server failed")
			return 1
		}
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown failed")
			return 1
		}
	}

	return 0
}
