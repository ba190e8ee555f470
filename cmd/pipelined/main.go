package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"pipeline/internal/config"
	"pipeline/internal/logger"
	"pipeline/internal/service"
)

func main() {
	cfg := config.FromEnv()
	logger.Init(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		logger.Logger.Info().Msg("shutting down")
		cancel()
	}()

	svc := service.New(cfg)
	if err := svc.Run(ctx); err != nil {
		logger.Logger.Error().Err(err).Msg("service exited")
		os.Exit(1)
	}
}
