package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"cablewatch/internal/app"
	"cablewatch/internal/config"
)

func main() {
	cfgPath := flag.String("config", os.Getenv("CABLEWATCH_CONFIG"), "path to YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		slog.Error("load config", "path", *cfgPath, "err", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	logger.Info("starting cablewatch",
		"addr", cfg.Addr,
		"db", cfg.DBPath,
		"source", cfg.Source.Kind,
		"poll_interval", cfg.Poll.BaseInterval.String(),
		"adaptive", cfg.Poll.Adaptive)

	a, err := app.New(cfg, *cfgPath, logger)
	if err != nil {
		logger.Error("init failed", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := a.Run(ctx); err != nil {
		logger.Error("shutdown with error", "err", err)
		os.Exit(1)
	}
}
