package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/zlnvch/duo/app"
	"github.com/zlnvch/duo/cli"
	"github.com/zlnvch/duo/config"
)

func open(ctx context.Context) (*app.App, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	deps, err := app.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a, err := app.New(ctx, cfg, deps)
	if err != nil {
		deps.Close()
		return nil, err
	}
	return a, nil
}

func main() {
	shutdownCtx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	if err := cli.NewRootCommand(open).ExecuteContext(shutdownCtx); err != nil {
		stop()
		os.Exit(1)
	}
}
