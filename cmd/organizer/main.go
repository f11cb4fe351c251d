package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"organizer/internal/auth"
	"organizer/internal/blob"
	"organizer/internal/config"
	"organizer/internal/server"
	"organizer/internal/storage"
	"organizer/internal/storage/gormstore"
	"organizer/internal/storage/local"
	"organizer/internal/storage/postgres"
	"organizer/internal/storage/sqlite"
)

func main() {
	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	cfg, err := config.Load()
	if err != nil {
		bootLogger.Error("unable to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address")
	flag.StringVar(&cfg.Store, "store", cfg.Store, "Storage backend: sqlite, gorm, postgres or local")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to sqlite database file")
	flag.StringVar(&cfg.DataDir, "data", cfg.DataDir, "Directory for uploads and local state")
	flag.StringVar(&cfg.StaticDir, "static", cfg.StaticDir, "Directory with built frontend")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		bootLogger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	level, _ := cfg.Level()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	store, err := openStore(cfg, logger)
	if err != nil {
		logger.Error("unable to open store", slog.String("store", cfg.Store), slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	blobs, err := blob.Open(filepath.Join(cfg.DataDir, "blobs"))
	if err != nil {
		logger.Error("unable to open upload directory", slog.String("error", err.Error()))
		os.Exit(1)
	}

	authSvc, err := auth.NewService(store, auth.Config{
		Secret: []byte(cfg.JWTSecret),
		TTL:    cfg.TokenTTL,
		Logger: logger,
	})
	if err != nil {
		logger.Error("unable to configure auth", slog.String("error", err.Error()))
		os.Exit(1)
	}

	srv := server.New(server.Deps{
		Store:          store,
		Auth:           authSvc,
		Blobs:          blobs,
		Logger:         logger,
		StaticDir:      cfg.StaticDir,
		MaxUploadBytes: cfg.MaxUploadBytes(),
		MaxRangeDays:   cfg.MaxRangeDays,
	})

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting server", slog.String("addr", httpServer.Addr), slog.String("store", cfg.Store))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped unexpectedly", slog.String("error", err.Error()))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("failed to shutdown server", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
}

// openStore builds the adapter selected by cfg.Store.
func openStore(cfg config.Config, logger *slog.Logger) (storage.Store, error) {
	switch cfg.Store {
	case config.StoreSQLite:
		return sqlite.Open(cfg.DBPath, logger)
	case config.StoreGorm:
		return gormstore.Open(cfg.DBPath, logger)
	case config.StorePostgres:
		return postgres.New(logger, cfg.PostgresURL)
	case config.StoreLocal:
		return local.Open(cfg.DataDir, local.Options{
			LegacyOwnerID: cfg.LegacyOwnerID,
			Logger:        logger,
		})
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}
