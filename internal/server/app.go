// Package server wires configuration, storage, the auth service and the HTTP
// API into a runnable process with graceful shutdown.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/gophadmin/internal/logging"
	"github.com/dmitrijs2005/gophadmin/internal/server/config"
	"github.com/dmitrijs2005/gophadmin/internal/server/httpapi"
	"github.com/dmitrijs2005/gophadmin/internal/server/repositories/codes"
	"github.com/dmitrijs2005/gophadmin/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophadmin/internal/server/repositories/users"
	"github.com/dmitrijs2005/gophadmin/internal/server/services"
)

type App struct {
	config *config.Config
	logger logging.Logger
	repos  repomanager.RepositoryManager
	http   *httpapi.Server
}

func NewApp(ctx context.Context, c *config.Config, logOut io.Writer) (*App, error) {
	logger, err := logging.New(logOut, c.LogLevel, c.LogFormat)
	if err != nil {
		return nil, err
	}

	repos, err := openRepositories(ctx, c)
	if err != nil {
		return nil, err
	}

	if err := seedUsers(ctx, c, repos, logger); err != nil {
		_ = repos.Close()
		return nil, err
	}

	svc, err := services.NewAuthService(repos, codes.NewMemoryRepository(), services.NewLogCodeSender(logger), c, logger)
	if err != nil {
		_ = repos.Close()
		return nil, err
	}

	return &App{
		config: c,
		logger: logger,
		repos:  repos,
		http:   httpapi.New(svc, logger, c.APIPrefix),
	}, nil
}

func openRepositories(ctx context.Context, c *config.Config) (repomanager.RepositoryManager, error) {
	switch c.Store {
	case config.StoreMemory:
		return repomanager.NewMemoryRepositoryManager(), nil
	case config.StorePostgres:
		db, err := repomanager.OpenPostgres(ctx, c.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("db init error: %w", err)
		}
		m := repomanager.NewPostgresRepositoryManager(db)
		if err := m.RunMigrations(ctx); err != nil {
			_ = m.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown store %q", c.Store)
	}
}

// seedUsers loads UsersFile, or the demo accounts when the memory store has
// no file configured.
func seedUsers(ctx context.Context, c *config.Config, repos repomanager.RepositoryManager, logger logging.Logger) error {
	var src io.Reader
	switch {
	case c.UsersFile != "":
		f, err := os.Open(c.UsersFile)
		if err != nil {
			return fmt.Errorf("open users file: %w", err)
		}
		defer f.Close()
		src = f
	case c.Store == config.StoreMemory:
		src = bytes.NewReader(users.DemoFixture)
	default:
		return nil
	}

	list, err := users.LoadFixture(src, c.BcryptCost)
	if err != nil {
		return err
	}
	created, err := users.Seed(ctx, repos.Users(), list)
	if err != nil {
		return err
	}
	logger.Info(ctx, "users seeded", "created", created, "total", len(list))
	return nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) func() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	done := make(chan struct{})
	go func() {
		select {
		case <-sigs:
			cancelFunc()
		case <-done:
		}
	}()
	return func() {
		signal.Stop(sigs)
		close(done)
	}
}

// Run serves until ctx is cancelled or a termination signal arrives.
func (app *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", app.config.Address)
	if err != nil {
		_ = app.repos.Close()
		return fmt.Errorf("listen %s: %w", app.config.Address, err)
	}
	return app.serve(ctx, ln)
}

func (app *App) serve(ctx context.Context, ln net.Listener) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	stopSignals := app.initSignalHandler(cancelFunc)
	defer stopSignals()

	app.logger.Info(ctx, "Starting app...", "address", ln.Addr().String(), "store", app.config.Store)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := app.http.App().Listener(ln); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		app.logger.Info(context.Background(), "Shutting down...")

		sctx, cancel := context.WithTimeout(context.Background(), app.shutdownTimeout())
		defer cancel()
		return app.http.Shutdown(sctx)
	})

	err := g.Wait()
	if cerr := app.repos.Close(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	return err
}

func (app *App) shutdownTimeout() time.Duration {
	if app.config.ShutdownTimeout > 0 {
		return app.config.ShutdownTimeout
	}
	return 10 * time.Second
}
