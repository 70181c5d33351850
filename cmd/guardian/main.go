package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go-guardian/internal/bootstrap"
	"go-guardian/internal/config"
	"go-guardian/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}
	if cfg.Bot.Token == "" {
		fmt.Fprintln(os.Stderr, "no bot token: set DISCORD_TOKEN or bot.token")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b := bootstrap.New(cfg)
	if err := b.Initialize(ctx); err != nil {
		logging.Critical("Startup failed: %v", err)
		os.Exit(1)
	}

	if err := b.Run(ctx); err != nil {
		logging.Error("Supervisor tree error: %v", err)
	}
	logging.Info("Shutdown signal received")

	if err := b.Shutdown(); err != nil {
		os.Exit(1)
	}
}
