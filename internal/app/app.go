// Package app builds every long-lived component of the client exactly once
// and wires them together: durable storage, the session store, the
// authenticated gateway, the REST client, the realtime manager and the
// optional NATS relay.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/rkvalley/campus/internal/api"
	"github.com/rkvalley/campus/internal/config"
	"github.com/rkvalley/campus/internal/gateway"
	"github.com/rkvalley/campus/internal/logging"
	"github.com/rkvalley/campus/internal/messaging"
	"github.com/rkvalley/campus/internal/realtime"
	"github.com/rkvalley/campus/internal/session"
	"github.com/rkvalley/campus/internal/session/storage"
)

// DialTimeout bounds the websocket handshake of the production dialer.
const DialTimeout = 10 * time.Second

// App is the container. Fields are read-only after New.
type App struct {
	Config   config.Config
	Logger   *zap.Logger
	Storage  storage.Storage
	Sessions *session.Store
	Gateway  *gateway.Gateway
	API      *api.Client
	Realtime *realtime.Manager
	Bus      *messaging.NATSClient // nil unless a NATS URL is configured

	closers []func() error
	unbind  func()
}

type options struct {
	storage    storage.Storage
	dialer     realtime.Dialer
	nav        gateway.Navigator
	httpClient *http.Client
}

// Option overrides one of the components New would otherwise build.
type Option func(*options)

// WithStorage replaces the configured storage backend.
func WithStorage(st storage.Storage) Option {
	return func(o *options) { o.storage = st }
}

// WithDialer replaces the gobwas websocket dialer.
func WithDialer(d realtime.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithNavigator receives the gateway's navigation requests (the 401 redirect).
func WithNavigator(nav gateway.Navigator) Option {
	return func(o *options) { o.nav = nav }
}

// WithHTTPClient replaces http.DefaultClient for REST calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// New builds the container. Nothing is connected to the realtime server until
// Start restores or a login establishes a session.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{
		Config: cfg,
		Logger: logging.OrNop(logger),
	}

	// --- Storage ---
	st := o.storage
	if st == nil {
		var err error
		if st, err = a.openStorage(ctx); err != nil {
			return nil, err
		}
	}
	a.Storage = st

	// --- Session + REST ---
	a.Sessions = session.New(st, a.Logger)
	gwOpts := []gateway.Option{gateway.WithLogger(a.Logger)}
	if o.httpClient != nil {
		gwOpts = append(gwOpts, gateway.WithHTTPClient(o.httpClient))
	}
	a.Gateway = gateway.New(cfg.APIBaseURL(), a.Sessions, o.nav, gwOpts...)
	a.API = api.New(a.Gateway, a.Sessions, a.Logger)

	// --- NATS ---
	var rtOpts []realtime.Option
	if cfg.NATSURL != "" {
		natsCfg := messaging.DefaultNATSConfig()
		natsCfg.URL = cfg.NATSURL
		bus, err := messaging.NewNATSClient(natsCfg, a.Logger)
		if err != nil {
			a.closeAll()
			return nil, errors.Wrap(err, "app: nats")
		}
		a.Bus = bus
		a.closers = append(a.closers, func() error { bus.Close(); return nil })
		rtOpts = append(rtOpts, realtime.WithRelay(messaging.NewRelay(bus, a.Logger)))
	}

	// --- Realtime ---
	dialer := o.dialer
	if dialer == nil {
		dialer = realtime.WSDialer{Timeout: DialTimeout}
	}
	a.Realtime = realtime.NewManager(dialer, cfg.RealtimeURL, a.Logger, rtOpts...)

	a.Logger.Info("client configured",
		zap.String("api", cfg.APIBaseURL()),
		zap.String("realtime", cfg.RealtimeURL("")),
		zap.String("storage", cfg.Storage),
		zap.String("profile", cfg.Profile),
		zap.Bool("relay", a.Bus != nil))
	return a, nil
}

func (a *App) openStorage(ctx context.Context) (storage.Storage, error) {
	switch a.Config.Storage {
	case config.StorageRedis:
		r, err := storage.NewRedis(ctx, a.Config.RedisAddr, a.Config.Profile)
		if err != nil {
			return nil, errors.Wrap(err, "app: session storage")
		}
		a.closers = append(a.closers, r.Close)
		return r, nil
	case config.StorageMemory:
		return storage.NewMemory(), nil
	default:
		return storage.NewFile(a.Config.ConfigDir, a.Config.Profile), nil
	}
}

// Start binds the realtime manager to the session and restores the persisted
// session, which opens the connection when one is found.
func (a *App) Start(ctx context.Context) {
	if a.unbind == nil {
		a.unbind = a.Realtime.Bind(ctx, a.Sessions)
	}
	a.Sessions.Restore(ctx)
}

// Close tears everything down in reverse order of construction. The persisted
// session is kept.
func (a *App) Close() error {
	if a.unbind != nil {
		a.unbind()
		a.unbind = nil
	}
	var first error
	if err := a.Realtime.Close(); err != nil {
		first = err
	}
	if err := a.closeAll(); err != nil && first == nil {
		first = err
	}
	return first
}

func (a *App) closeAll() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
