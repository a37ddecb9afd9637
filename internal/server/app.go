// Package server wires the identity core together: storage, revocation
// registry, notifier, token codec, services and the gRPC transport.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/taskhub/internal/logging"
	"github.com/dmitrijs2005/taskhub/internal/server/auth"
	"github.com/dmitrijs2005/taskhub/internal/server/config"
	gs "github.com/dmitrijs2005/taskhub/internal/server/grpc"
	"github.com/dmitrijs2005/taskhub/internal/server/mailer"
	"github.com/dmitrijs2005/taskhub/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/taskhub/internal/server/revocation"
	"github.com/dmitrijs2005/taskhub/internal/server/services"
	"github.com/redis/go-redis/v9"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	repos   repomanager.RepositoryManager
	revoked revocation.Store
	server  *gs.GRPCServer
	closers []func() error
}

// NewApp validates the configuration and builds every component. A weak
// signing secret or an unreachable backend fails here, before any request
// is served.
func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	app := &App{config: c, logger: logger}

	codec, err := auth.NewCodec(c.SecretKey, c.TokenIssuer, c.TokenAudience, c.SessionLifetime)
	if err != nil {
		return nil, err
	}

	if err := app.openStorage(ctx); err != nil {
		_ = app.Close()
		return nil, err
	}
	if err := app.openRevocation(ctx); err != nil {
		_ = app.Close()
		return nil, err
	}

	notifier, err := newNotifier(c, logger)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	accounts, err := services.NewAccountService(app.repos, codec, app.revoked, notifier, c, logger.With("module", "accounts"))
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	sso := services.NewSSOService(accounts, app.repos, c, logger.With("module", "sso"))
	verifier := services.NewSessionVerifier(codec, app.revoked, app.repos, c, logger.With("module", "verifier"))

	app.server = gs.NewGRPCServer(c.EndpointAddrGRPC, logger, accounts, sso, verifier)
	return app, nil
}

func (app *App) openStorage(ctx context.Context) error {
	switch app.config.StorageBackend {
	case config.StorageMemory:
		app.logger.Warn(ctx, "using in-memory storage, data is lost on restart")
		app.repos = repomanager.NewMemoryRepositoryManager()
	default:
		m, err := repomanager.OpenPostgres(ctx, app.config.DatabaseDSN)
		if err != nil {
			return fmt.Errorf("db init error: %w", err)
		}
		if err := m.RunMigrations(ctx); err != nil {
			_ = m.Close()
			return fmt.Errorf("db migration error: %w", err)
		}
		app.repos = m
	}
	app.closers = append(app.closers, app.repos.Close)
	return nil
}

func (app *App) openRevocation(ctx context.Context) error {
	switch app.config.RevocationBackend {
	case config.RevocationRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     app.config.RedisAddr,
			Password: app.config.RedisPassword,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return fmt.Errorf("redis init error: %w", err)
		}
		app.revoked = revocation.NewRedisStore(client)
		app.closers = append(app.closers, client.Close)
	default:
		s := revocation.NewMemoryStore()
		app.revoked = s
		app.closers = append(app.closers, func() error {
			s.Close()
			return nil
		})
	}
	return nil
}

func newNotifier(c *config.Config, logger logging.Logger) (mailer.Notifier, error) {
	renderer, err := mailer.NewRenderer()
	if err != nil {
		return nil, err
	}
	if c.MailerBackend == config.MailerResend {
		return mailer.NewResendMailer(c.ResendAPIKey, c.MailFrom, c.ResendBaseURL, renderer)
	}
	return mailer.NewLogMailer(renderer, logger.With("module", "mailer")), nil
}

// Close releases every backend opened so far, newest first.
func (app *App) Close() error {
	var errs []error
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	app.closers = nil
	return errors.Join(errs...)
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves until ctx is cancelled or a termination signal arrives, then
// stops the server gracefully and closes the backends.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...",
		"storage", app.config.StorageBackend,
		"revocation", app.config.RevocationBackend,
		"mailer", app.config.MailerBackend,
	)

	app.initSignalHandler(cancelFunc)

	var (
		wg     sync.WaitGroup
		runErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.server.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			runErr = err
			cancelFunc()
		}
	}()
	wg.Wait()

	if err := app.Close(); err != nil {
		app.logger.Error(ctx, "close backends", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
	return runErr
}

var _ io.Closer = (*App)(nil)
