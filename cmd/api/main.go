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

	"github.com/momentsapp/moments/internal/api"
	"github.com/momentsapp/moments/internal/api/middleware"
	"github.com/momentsapp/moments/internal/app"
	"github.com/momentsapp/moments/internal/config"
	"github.com/momentsapp/moments/internal/logger"
	"github.com/momentsapp/moments/internal/scheduler"
)

func main() {
	appLogger := logger.NewDefault()
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Support CONFIG_PATH environment variable for production deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	ctx := context.Background()
	application, err := app.New(ctx, cfg)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize application")
	}
	defer application.Close()

	var sched *scheduler.Scheduler
	if bf := cfg.Scheduler.Backfill; bf.Enabled {
		sched = scheduler.New()
		if err := sched.AddBackfillJob(bf.Schedule, bf.BatchSize, application.Backfill); err != nil {
			appLogger.WithError(err).Fatal("Failed to schedule backfill")
		}
		sched.Start()
		appLogger.WithFields(logger.Fields{
			"schedule":   bf.Schedule,
			"batch_size": bf.BatchSize,
		}).Info("Backfill scheduler started")
	}

	router := api.SetupRouter(&api.Services{
		Photos:   application.Photos,
		Tags:     application.Tags,
		Search:   application.Search,
		Tagging:  application.Tagging,
		AltText:  application.AltText,
		Backfill: application.Backfill,
		DB:       application.DB,
	}, api.RouterConfig{
		Mode: cfg.Server.Mode,
		CORS: middleware.CORSConfig{
			AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
			AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
		},
		MaxUploadSize: cfg.Upload.MaxSize,
		UploadsDir:    application.UploadsDir(),
	}, appLogger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if sched != nil {
		select {
		case <-sched.Stop().Done():
		case <-shutdownCtx.Done():
			appLogger.Warn("Scheduled jobs still running at shutdown")
		}
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}
