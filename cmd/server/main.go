// Package main is the entry point for the crudkit API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crudkit/internal/app"
	"crudkit/internal/config"
	v1 "crudkit/internal/infrastructure/http/v1"
	"crudkit/internal/infrastructure/http/v1/handlers"
	"crudkit/internal/infrastructure/storage/postgres"
	"crudkit/internal/infrastructure/storage/postgres/entity_repo"
	"crudkit/pkg/logger"
)

func main() {
	cfg, err := config.Load(os.Getenv("CRUDKIT_CONFIG"))
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx := logger.WithLogger(context.Background(), log)
	log.Info("starting crudkit server")

	var (
		products *app.Products
		db       handlers.Pinger
	)
	if cfg.Database.URL == "" {
		log.Warnw("no database configured, using in-memory storage",
			"hint", "set "+config.EnvPrefix+"_DATABASE_URL")
		products, _ = app.NewMemoryProducts()
	} else {
		poolCfg := postgres.DefaultPoolConfig(cfg.Database.URL)
		poolCfg.MaxConns = cfg.Database.MaxConns
		poolCfg.MinConns = cfg.Database.MinConns

		pool, err := postgres.NewPool(ctx, poolCfg)
		if err != nil {
			log.Fatalw("failed to connect to database", "error", err)
		}
		defer pool.Close()

		txm := postgres.NewTxManager(pool)
		if err := entity_repo.EnsureProductSchema(ctx, txm.GetQuerier(ctx)); err != nil {
			log.Fatalw("failed to prepare schema", "error", err)
		}
		if err := postgres.EnsureImportJournalSchema(ctx, txm.GetQuerier(ctx)); err != nil {
			log.Fatalw("failed to prepare schema", "error", err)
		}
		journal, err := postgres.NewImportJournal(txm)
		if err != nil {
			log.Fatalw("failed to create import journal", "error", err)
		}
		products = app.NewPostgresProducts(txm, journal)
		db = pool
	}

	router := v1.NewRouter(v1.RouterConfig{
		Logger:          log,
		DB:              db,
		Products:        products,
		ImportDelimiter: cfg.Import.Delimiter,
		MaxUploadBytes:  cfg.Import.MaxUploadBytes,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // imports run inside the request
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", cfg.HTTP.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}
