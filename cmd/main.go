package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"loadcast/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

func main() {
	app := NewApplication()
	if err := app.Initialize(); err != nil {
		logger.FatalCtx(context.Background(), "Application initialization failed: %v", err)
	}
	if err := app.Start(); err != nil {
		logger.FatalCtx(context.Background(), "Application startup failed: %v", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.InfoCtx(context.Background(), "Received exit signal: %v", sig)
	case <-app.Done():
		logger.WarnCtx(context.Background(), "Application stopped on its own")
	}

	if err := app.Shutdown(shutdownTimeout); err != nil {
		logger.ErrorCtx(context.Background(), "Application exited with error: %v", err)
		os.Exit(1)
	}
}
