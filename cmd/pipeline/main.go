package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/kirillkom/quarterly-financial-analyser/internal/adapters/cli"
	"github.com/kirillkom/quarterly-financial-analyser/internal/bootstrap"
	"github.com/kirillkom/quarterly-financial-analyser/internal/config"
	"github.com/kirillkom/quarterly-financial-analyser/internal/observability/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	// Stages run to completion here; there is no worker to hand runs to.
	cfg.IndexDispatch = config.DispatchInProc
	slog.SetDefault(logging.NewJSONLoggerTo(os.Stderr, "pipeline", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCommand(func(ctx context.Context) (*cli.Pipeline, func(), error) {
		if err := cfg.Validate(); err != nil {
			return nil, nil, err
		}
		app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Service: "pipeline"})
		if err != nil {
			return nil, nil, err
		}
		return &cli.Pipeline{
			Acquirer: app.Acquirer,
			Selector: app.Selector,
			Dataset:  app.Dataset,
			Indexer:  app.Indexer,
			Answerer: app.Answerer,
		}, app.Close, nil
	})
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
