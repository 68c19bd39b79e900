// Package server wires the qfolders components together: it opens the data
// store, picks the auth, blob and session backends from configuration,
// serves the HTTP API and shuts everything down on SIGINT/SIGTERM.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/qfolders/qfolders/internal/logging"
	"github.com/qfolders/qfolders/internal/server/authprovider"
	"github.com/qfolders/qfolders/internal/server/blobstore"
	"github.com/qfolders/qfolders/internal/server/config"
	"github.com/qfolders/qfolders/internal/server/datastore"
	"github.com/qfolders/qfolders/internal/server/httpapi"
	"github.com/qfolders/qfolders/internal/server/repositories/repomanager"
	"github.com/qfolders/qfolders/internal/server/services"
	"github.com/qfolders/qfolders/internal/server/sessions"
)

const startupTimeout = 15 * time.Second

type App struct {
	config *config.Config
	logger logging.Logger

	db          *sql.DB
	redis       *redis.Client
	gateway     *datastore.Gateway
	repomanager *repomanager.PostgresRepositoryManager
	blobs       blobstore.Store

	credentials *services.CredentialManager
	attachments *services.AttachmentManager
	records     *services.RecordService
	sessions    sessions.Store
}

// NewLogger builds the process logger: zap with a rolling file when a log
// path is configured, JSON slog on stdout otherwise.
func NewLogger(c *config.Config) (logging.Logger, error) {
	if c.LogPath != "" {
		return logging.NewZapLogger(logging.ZapOptions{Level: c.LogLevel, Path: c.LogPath})
	}
	return logging.NewJSONSlogLogger(c.LogLevel), nil
}

func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	app := &App{config: c, logger: logger}

	ctx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	app.db = db
	if err := db.PingContext(ctx); err != nil {
		app.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	app.repomanager = repomanager.NewPostgresRepositoryManager()
	if err := app.repomanager.DetectCapabilities(ctx, db); err != nil {
		app.Close()
		return nil, err
	}
	logger.Info(ctx, "schema capabilities", "terminal_output", app.repomanager.Capabilities().TerminalOutput)

	app.gateway = datastore.NewGateway(db, []byte(c.JWTSecret))

	provider, err := app.newAuthProvider()
	if err != nil {
		app.Close()
		return nil, err
	}

	if app.blobs, err = app.newBlobStore(ctx); err != nil {
		app.Close()
		return nil, err
	}

	if app.sessions, err = app.newSessionStore(ctx); err != nil {
		app.Close()
		return nil, err
	}

	app.credentials = services.NewCredentialManager(provider, logger.With("module", "credentials"))
	app.attachments = services.NewAttachmentManager(app.blobs, app.gateway, app.repomanager, c.AttachmentMaxBytes, logger.With("module", "attachments"))
	ledger := services.NewContributionLedger(app.gateway, app.repomanager)
	app.records = services.NewRecordService(app.gateway, app.repomanager, app.credentials, app.attachments, ledger, logger.With("module", "records"))

	return app, nil
}

func (app *App) newAuthProvider() (authprovider.Provider, error) {
	switch app.config.AuthBackend {
	case "gotrue":
		if app.config.AuthURL == "" {
			return nil, errors.New("auth url is required for the gotrue backend")
		}
		return authprovider.NewGoTrue(app.config.AuthURL, app.config.AuthAnonKey, app.config.AuthTimeout), nil
	case "local":
		return authprovider.NewLocal(app.db, app.repomanager, app.config.JWTSecret,
			app.config.AccessTokenValidityDuration, app.config.RefreshTokenValidityDuration,
			app.logger.With("module", "local_auth")), nil
	default:
		return nil, fmt.Errorf("unknown auth backend %q", app.config.AuthBackend)
	}
}

func (app *App) newBlobStore(ctx context.Context) (blobstore.Store, error) {
	switch app.config.BlobBackend {
	case "s3":
		s, err := blobstore.NewS3(ctx, blobstore.S3Options{
			AccessKey:    app.config.S3RootUser,
			SecretKey:    app.config.S3RootPassword,
			Region:       app.config.S3Region,
			BaseEndpoint: app.config.S3BaseEndpoint,
			Bucket:       app.config.S3Bucket,
		})
		if err != nil {
			return nil, fmt.Errorf("blob store init error: %w", err)
		}
		return s, nil
	case "memory":
		app.logger.Warn(ctx, "attachments are kept in memory and lost on restart")
		return blobstore.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob backend %q", app.config.BlobBackend)
	}
}

func (app *App) newSessionStore(ctx context.Context) (sessions.Store, error) {
	switch app.config.SessionBackend {
	case "redis":
		app.redis = sessions.NewRedisClient(app.config.RedisAddr, app.config.RedisPassword, app.config.RedisDB)
		if err := app.redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping error: %w", err)
		}
		return sessions.NewRedis(app.redis), nil
	case "memory":
		return sessions.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", app.config.SessionBackend)
	}
}

func (app *App) health(ctx context.Context) error {
	if err := app.gateway.Ping(ctx); err != nil {
		return err
	}
	if app.redis != nil {
		return app.redis.Ping(ctx).Err()
	}
	return nil
}

// Handler returns the HTTP API handler.
func (app *App) Handler() *httpapi.Handler {
	return httpapi.NewHandler(app.credentials, app.records, app.sessions, app.logger.With("module", "http"), httpapi.Options{
		SiteURL: app.config.SiteURL,
		Cookie: httpapi.CookieOptions{
			Name:   app.config.SessionCookieName,
			Secure: app.config.SessionCookieSecure,
			TTL:    app.config.SessionTTL,
		},
		AttachmentMaxBytes: app.config.AttachmentMaxBytes,
		AllowedOrigins:     app.config.AllowedOrigins,
		LoginRatePerMinute: app.config.LoginRateLimitPerMinute,
		Health:             app.health,
	})
}

// SweepOrphans retries deletion of recorded orphan blobs.
func (app *App) SweepOrphans(ctx context.Context, limit int) (int, error) {
	return app.attachments.SweepOrphans(ctx, limit)
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves the API until a termination signal arrives or ctx ends, then
// waits for pending blob deletions and releases resources.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")
	app.initSignalHandler(cancelFunc)

	srv := httpapi.NewServer(app.config.EndpointAddrHTTP, app.Handler().Router(), app.logger)
	err := srv.Run(ctx)

	app.attachments.Wait()
	app.Close()
	app.logger.Info(context.Background(), "App stopped")
	return err
}

// Close releases the database and Redis connections.
func (app *App) Close() {
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Warn(context.Background(), "redis close", "error", err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Warn(context.Background(), "db close", "error", err)
		}
	}
}
