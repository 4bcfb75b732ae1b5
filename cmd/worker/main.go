package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kirillkom/quarterly-financial-analyser/internal/bootstrap"
	"github.com/kirillkom/quarterly-financial-analyser/internal/config"
	"github.com/kirillkom/quarterly-financial-analyser/internal/observability/logging"
	"github.com/kirillkom/quarterly-financial-analyser/internal/observability/metrics"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("worker", cfg.LogLevel))
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Service:      "worker",
		Registerer:   workerMetrics.Registry(),
		RequireQueue: true,
	})
	if err != nil {
		slog.Error("bootstrap error", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker metrics server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	slog.Info("worker subscribed", "subject", app.Queue.Subject())
	err = app.Queue.SubscribeIndexRuns(ctx, func(handlerCtx context.Context, runID string) error {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(handlerCtx), cfg.IndexTimeout())
		defer cancel()

		workerMetrics.StartRun()
		start := time.Now()
		err := app.Runs.Execute(runCtx, runID)
		workerMetrics.FinishRun("worker", time.Since(start), err)
		return err
	})
	if err != nil {
		slog.Error("worker subscribe error", "error", err)
		os.Exit(1)
	}
}
