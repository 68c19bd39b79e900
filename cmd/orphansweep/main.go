// Command orphansweep retries deletion of attachment blobs whose cleanup
// failed earlier. It runs once and exits; schedule it with cron.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/qfolders/qfolders/internal/flagx"
	"github.com/qfolders/qfolders/internal/logging"
	"github.com/qfolders/qfolders/internal/server"
	"github.com/qfolders/qfolders/internal/server/config"
)

func main() {
	fs := flag.NewFlagSet("orphansweep", flag.ExitOnError)
	limit := fs.Int("n", 100, "maximum number of orphans to process")
	_ = fs.Parse(flagx.FilterArgs(os.Args[1:], []string{"-n"}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()
	logger, err := server.NewLogger(cfg)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}

	err = run(ctx, cfg, logger, *limit)
	if z, ok := logger.(*logging.ZapLogger); ok {
		_ = z.Sync()
	}
	if err != nil {
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger logging.Logger, limit int) error {
	app, err := server.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "init failed", "error", err)
		return err
	}
	defer app.Close()

	removed, err := app.SweepOrphans(ctx, limit)
	if err != nil {
		logger.Error(ctx, "orphan sweep failed", "removed", removed, "error", err)
		return err
	}
	logger.Info(ctx, "orphan sweep done", "removed", removed)
	return nil
}
