package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/contactkit/importer/internal/config"
	"github.com/contactkit/importer/internal/db"
	"github.com/contactkit/importer/internal/ingestion"
	"github.com/contactkit/importer/internal/middleware"
	"github.com/contactkit/importer/internal/repository"

	"github.com/rs/cors"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(".")
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	if err := db.RunMigrations(conn.Pool); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	contactRepo := repository.NewContactRepository(conn)
	jobRepo := repository.NewImportJobRepository(conn.Pool)
	errorRepo := repository.NewImportErrorRepository(conn.Pool)

	service := ingestion.NewService(jobRepo, contactRepo, errorRepo, ingestion.Options{
		BatchSize:            cfg.Import.BatchSize,
		MaxConcurrentJobs:    cfg.Import.MaxConcurrentJobs,
		StreamThresholdBytes: cfg.Import.StreamThresholdBytes,
	})

	mux := http.NewServeMux()
	ingestion.NewHTTPHandler(service).Register(mux)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{cfg.Server.AllowedOrigin},
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      corsHandler.Handler(middleware.LoggingMiddleware(mux)),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("starting import server", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// Let running import jobs reach a batch boundary before tearing down.
	service.Close(shutdownCtx)

	slog.Info("server exited")
}
