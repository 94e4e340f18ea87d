package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrijs2005/gophadmin/internal/client/client"
	"github.com/dmitrijs2005/gophadmin/internal/client/config"
	"github.com/dmitrijs2005/gophadmin/internal/client/session"
	"github.com/dmitrijs2005/gophadmin/internal/client/throttle"
	"github.com/dmitrijs2005/gophadmin/internal/client/tokens"
	"github.com/dmitrijs2005/gophadmin/internal/cryptox"
	"github.com/dmitrijs2005/gophadmin/internal/filex"
	"github.com/dmitrijs2005/gophadmin/internal/logging"
)

const redisPingTimeout = 3 * time.Second

// App bundles the session core with the terminal it talks to.
type App struct {
	config  *config.Config
	log     logging.Logger
	session *session.Manager
	prompt  *prompter
	out     io.Writer

	// announce enables background notices from observe.
	announce    atomic.Bool
	obsMu       sync.Mutex
	lastLoading session.UserLoading

	closers []func() error
}

// syncWriter serializes writes from the shell and from session observers.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// NewApp opens the configured token store and builds the API client and the
// session manager on top of it. The session is not initialized; call
// Init before running commands.
func NewApp(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer, opts ...session.Option) (*App, error) {
	log, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	a := &App{
		config: cfg,
		log:    log,
		out:    &syncWriter{w: out},
	}
	a.prompt = newPrompter(in, a.out)

	store, err := a.openStore(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	api, err := client.NewHTTPClient(cfg.ServerURL, store,
		client.WithAPIPrefix(cfg.APIPrefix),
		client.WithTimeout(cfg.RequestTimeout),
		client.WithLogger(log.With("component", "api")),
	)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.closers = append(a.closers, api.Close)

	base := []session.Option{
		session.WithLogger(log.With("component", "session")),
		session.WithThrottle(throttle.New(cfg.ResendWindow, throttle.DefaultStep)),
		session.WithObserver(a.observe),
	}
	a.session = session.NewManager(api, store, append(base, opts...)...)
	// the manager goes first so background work stops before the store closes
	a.closers = append([]func() error{a.session.Close}, a.closers...)

	return a, nil
}

func (a *App) openStore(ctx context.Context) (tokens.Store, error) {
	var opts []tokens.Option
	if a.config.SealPassphrase != "" {
		key := cryptox.DeriveKey([]byte(a.config.SealPassphrase), []byte(a.config.SealSalt))
		opts = append(opts, tokens.WithSealKey(key))
	}

	switch a.config.TokenStore {
	case config.StoreMemory:
		return tokens.NewMemoryStore(opts...), nil

	case config.StoreRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     a.config.RedisAddr,
			Password: a.config.RedisPassword,
			DB:       a.config.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", a.config.RedisAddr, err)
		}
		a.closers = append(a.closers, rdb.Close)
		return tokens.NewRedisStore(rdb, opts...), nil

	case config.StoreSQLite:
		if err := filex.EnsureParentDir(a.config.DatabaseDSN); err != nil {
			return nil, err
		}
		db, err := tokens.OpenSQLite(ctx, a.config.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		return tokens.NewSQLiteStore(db, opts...), nil

	default:
		return nil, fmt.Errorf("unknown token store %q", a.config.TokenStore)
	}
}

// observe reports the end of a background profile load.
func (a *App) observe(st session.State) {
	if !a.announce.Load() {
		return
	}
	a.obsMu.Lock()
	prev := a.lastLoading
	a.lastLoading = st.UserLoading
	a.obsMu.Unlock()

	if prev == st.UserLoading || st.Phase != session.PhaseAuthenticated || st.UserLoading != session.LoadingDone {
		return
	}
	switch {
	case st.Identity != nil:
		name, ok := st.Identity.FullName()
		if !ok {
			name = st.Identity.Email
		}
		a.println(okStyle.Render("Signed in as " + name))
	case st.Err != nil && st.Err.Kind == session.KindProfileFetchFailed:
		a.println(errStyle.Render(st.Err.Message))
	}
}

// Phase reports the session phase to the shell guards.
func (a *App) Phase() session.Phase {
	return a.session.Phase()
}

// Init restores the session from the token store.
func (a *App) Init(ctx context.Context) error {
	return a.session.Init(ctx)
}

// Close stops the session and releases the store and HTTP client.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	a.closers = nil
	return errors.Join(errs...)
}
