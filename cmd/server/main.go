package main

import (
	"context"
	"log"

	"github.com/qfolders/qfolders/internal/logging"
	"github.com/qfolders/qfolders/internal/server"
	"github.com/qfolders/qfolders/internal/server/config"
)

func main() {
	ctx := context.Background()
	cfg := config.LoadConfig()

	logger, err := server.NewLogger(cfg)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	if z, ok := logger.(*logging.ZapLogger); ok {
		defer func() { _ = z.Sync() }()
	}

	app, err := server.NewApp(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if err := app.Run(ctx); err != nil {
		log.Fatalf("%v", err)
	}
}
