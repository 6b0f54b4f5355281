package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/choraleia/opengpt/pkg/config"
	"github.com/choraleia/opengpt/pkg/utils"
)

func main() {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	utils.InitLogger()
	logger := utils.GetLogger()

	if path, err := config.EnsureDefaultConfig(); err != nil {
		logger.Warn("Failed to write default config", "error", err)
	} else {
		logger.Debug("Config file", "path", path)
	}

	cfg, _, err := config.Load()
	if err != nil {
		logger.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, cleanup, err := buildServices(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialise services", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	server := NewServer(cfg, services)
	if err := server.Start(ctx); err != nil {
		fmt.Println("Server start failed", err)
		logger.Error("Failed to start server", "error", err)
		cleanup()
		os.Exit(1)
	}

	server.Wait()
	logger.Info("Server stopped")
}
