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

	"traffic-profile-service/internal/config"
	httphandler "traffic-profile-service/internal/http"
	"traffic-profile-service/internal/http/middleware"
	"traffic-profile-service/internal/logger"
	"traffic-profile-service/internal/metrics"
	"traffic-profile-service/internal/sections"
	"traffic-profile-service/internal/service"
	"traffic-profile-service/internal/session"
	"traffic-profile-service/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.Environment)

	sessionManager, err := session.NewManager(cfg.Session.Secret, cfg.Session.CipherKey, cfg.Session.TTL)
	if err != nil {
		appLogger.Fatal().Err(err).Msg("failed to initialize session manager")
	}

	resolver := sections.NewResolver(cfg.ReferenceWorkbook)

	// Archival is optional; the pipeline runs without a bucket.
	r2Client, err := storage.NewR2ClientFromEnv()
	if err != nil && !errors.Is(err, storage.ErrNotConfigured) {
		appLogger.Fatal().Err(err).Msg("failed to initialize R2 client")
	}
	if err != nil {
		appLogger.Warn().Msg("R2 storage not configured, export archival disabled")
	}

	collector := metrics.NewCollector(cfg.MetricsNamespace)
	uploadService := service.NewUploadService(appLogger, collector)
	reportService := service.NewReportService(resolver, appLogger, collector)

	handler := httphandler.NewHandler(uploadService, reportService, resolver, sessionManager, r2Client, cfg, appLogger)
	sessionMiddleware := middleware.Session(sessionManager, appLogger)
	router := httphandler.NewRouter(handler, sessionMiddleware, cfg.Environment, appLogger)

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	appLogger.Info().Str("addr", addr).Msg("starting traffic profile service")

	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error().Err(err).Msg("failed to start server")
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error().Err(err).Msg("server forced to shutdown")
	}

	appLogger.Info().Msg("server exited")
}
