package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/ernyzasxash/clientt/internal/app"
	"github.com/ernyzasxash/clientt/internal/config"
	"github.com/ernyzasxash/clientt/internal/infrastructure"
	"github.com/ernyzasxash/clientt/pkg/contracts"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (defaults to the usual search locations)")
	port := flag.Int("port", 0, "listen port, overrides server.port")
	dataDir := flag.String("data", "", "data directory, overrides storage.data_dir")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(contracts.GetFullVersionString())
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dataDir != "" {
		cfg.Storage.DataDir = *dataDir
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Warn("Failed to initialize logger, using default", slog.String("error", err.Error()))
		logger = slog.Default()
	}
	defer infrastructure.CloseLogFile()

	if cfg.Security.AdminToken == "" {
		logger.Warn("admin token not configured, admin API disabled")
	}

	ctx := context.Background()
	server, err := app.NewServerApplication(ctx, cfg, logger, nil)
	if err != nil {
		logger.Error("Failed to initialize license server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := server.Run(ctx); err != nil {
		logger.Error("License server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
