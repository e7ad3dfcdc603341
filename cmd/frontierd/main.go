// Package main wires together the frontier service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/crawlkit/frontier/internal/api"
	"github.com/crawlkit/frontier/internal/config"
	"github.com/crawlkit/frontier/internal/frontier"
	"github.com/crawlkit/frontier/internal/frontier/memory"
	"github.com/crawlkit/frontier/internal/id/uuid"
	"github.com/crawlkit/frontier/internal/logging"
	"github.com/crawlkit/frontier/internal/metrics"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	stages := frontier.NewStageRegistry()
	stages.Register(frontier.FingerprintStage{})

	router := frontier.NewRouter(
		frontier.Config{
			Backend:   cfg.Frontier.Backend,
			ChunkSize: cfg.Frontier.StoreChunkSize,
		},
		frontier.Backends{"memory": memory.Factory},
		stages,
		logger.Named("frontier"),
	)

	apiServer := api.NewServer(router, uuid.New(), cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	for _, job := range router.ActiveJobs() {
		if err := router.StopWorker(job.Spider); err != nil {
			logger.Warn("stop worker failed",
				zap.String("spider", job.Spider),
				zap.Error(err),
			)
		}
	}
	logger.Info("shutdown complete")
}
