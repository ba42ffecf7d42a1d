// Package app wires all Applicall subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the HTTP surface, and Shutdown tears everything
// down in order.
//
// For testing, inject mock implementations via functional options
// (WithSessionStore, WithRealtimeProvider, etc.). When an option is not
// provided, New creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"github.com/hearthware/applicall/internal/agent"
	"github.com/hearthware/applicall/internal/bridge"
	"github.com/hearthware/applicall/internal/config"
	"github.com/hearthware/applicall/internal/customer"
	"github.com/hearthware/applicall/internal/health"
	"github.com/hearthware/applicall/internal/observe"
	"github.com/hearthware/applicall/internal/rest"
	"github.com/hearthware/applicall/internal/scheduling"
	"github.com/hearthware/applicall/internal/session"
	"github.com/hearthware/applicall/internal/session/redisstore"
	"github.com/hearthware/applicall/internal/telephony"
	"github.com/hearthware/applicall/internal/upload"
	"github.com/hearthware/applicall/pkg/realtime"
	rtopenai "github.com/hearthware/applicall/pkg/realtime/openai"
)

// Scheduler is the slice of the scheduling store the app needs: the tool
// dispatcher searches and books slots, and the API surface additionally
// cancels and looks appointments up.
type Scheduler interface {
	agent.Scheduler
	rest.Scheduling
}

// CustomerDirectory is the slice of the customer store the app needs: the
// signaling handler resolves callers by phone number, the tool dispatcher
// writes profile updates through it, and the API surface reads records back.
type CustomerDirectory interface {
	telephony.CustomerResolver
	agent.CustomerStore
	rest.Customers
}

// App owns all subsystem lifetimes and serves the Applicall HTTP surface.
type App struct {
	cfg *config.Config

	// Subsystems, initialised in New and torn down in Shutdown.
	pool        *pgxpool.Pool
	sessions    session.Store
	sched       Scheduler
	customers   CustomerDirectory
	uploadStore upload.RequestStore
	provider    realtime.Provider
	mailer      upload.Mailer
	vision      upload.Analyzer
	uploads     *upload.Service
	dispatcher  *agent.Dispatcher
	bridge      *bridge.Bridge
	metrics     *observe.Metrics
	server      *http.Server
	ln          net.Listener

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSessionStore injects a session store instead of selecting one from config.
func WithSessionStore(s session.Store) Option {
	return func(a *App) { a.sessions = s }
}

// WithRealtimeProvider injects a realtime voice provider instead of the
// OpenAI client.
func WithRealtimeProvider(p realtime.Provider) Option {
	return func(a *App) { a.provider = p }
}

// WithScheduler injects a scheduling backend instead of the PostgreSQL store.
func WithScheduler(s Scheduler) Option {
	return func(a *App) { a.sched = s }
}

// WithCustomerDirectory injects a customer backend instead of the PostgreSQL store.
func WithCustomerDirectory(d CustomerDirectory) Option {
	return func(a *App) { a.customers = d }
}

// WithUploadStore injects an upload-request backend instead of the PostgreSQL store.
func WithUploadStore(s upload.RequestStore) Option {
	return func(a *App) { a.uploadStore = s }
}

// WithMailer injects a mail provider instead of the logging fallback.
func WithMailer(m upload.Mailer) Option {
	return func(a *App) { a.mailer = m }
}

// WithVision injects a vision analyzer instead of the OpenAI client.
func WithVision(v upload.Analyzer) Option {
	return func(a *App) { a.vision = v }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. Use Option functions
// to inject test doubles for any subsystem.
//
// New performs all initialisation synchronously: database connection and
// schema migration, session store selection, model client construction, and
// route assembly. It also binds the listen address, so port conflicts
// surface here rather than in Run.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Database ──────────────────────────────────────────────────────
	if err := a.initDatabase(ctx); err != nil {
		return nil, fmt.Errorf("app: init database: %w", err)
	}

	// ── 2. Metrics ───────────────────────────────────────────────────────
	if err := a.initMetrics(); err != nil {
		return nil, fmt.Errorf("app: init metrics: %w", err)
	}

	// ── 3. Session store ─────────────────────────────────────────────────
	if err := a.initSessions(ctx); err != nil {
		return nil, fmt.Errorf("app: init session store: %w", err)
	}

	// ── 4. Model clients ─────────────────────────────────────────────────
	if err := a.initModel(); err != nil {
		return nil, fmt.Errorf("app: init model: %w", err)
	}

	// ── 5. Upload service ────────────────────────────────────────────────
	a.initUploads()

	// ── 6. Agent + bridge ────────────────────────────────────────────────
	a.initBridge()

	// ── 7. HTTP server ───────────────────────────────────────────────────
	if err := a.initHTTP(); err != nil {
		return nil, fmt.Errorf("app: init http: %w", err)
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initDatabase connects the PostgreSQL pool, runs schema migrations, and
// builds the stores that live on it. Skipped entirely when every DB-backed
// collaborator was injected.
func (a *App) initDatabase(ctx context.Context) error {
	if a.sched != nil && a.customers != nil && a.uploadStore != nil {
		return nil
	}

	pool, err := pgxpool.New(ctx, a.cfg.Database.PostgresDSN)
	if err != nil {
		return fmt.Errorf("connect pool: %w", err)
	}
	a.pool = pool
	a.closers = append(a.closers, func() error {
		pool.Close()
		return nil
	})

	for _, migrate := range []func(context.Context, *pgxpool.Pool) error{
		customer.Migrate,
		scheduling.Migrate,
		upload.Migrate,
	} {
		if err := migrate(ctx, pool); err != nil {
			return fmt.Errorf("migrate schema: %w", err)
		}
	}
	slog.Info("database ready")

	if a.sched == nil {
		a.sched = scheduling.NewStore(pool)
	}
	if a.customers == nil {
		a.customers = customer.NewStore(pool)
	}
	if a.uploadStore == nil {
		a.uploadStore = upload.NewStore(pool)
	}
	return nil
}

// initSessions selects the session store backend (Redis when a URL is
// configured, in-process memory otherwise) and instruments it so every
// operation lands on the session op counter.
func (a *App) initSessions(ctx context.Context) error {
	switch {
	case a.sessions != nil:
		// Injected store; still instrumented below.
	case a.cfg.Redis.URL != "":
		store, err := redisstore.New(ctx, a.cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		a.sessions = store
		a.closers = append(a.closers, store.Close)
		slog.Info("session store ready", "backend", "redis")
	default:
		a.sessions = session.NewMemStore()
		slog.Info("session store ready", "backend", "memory")
	}

	a.sessions = session.Instrument(a.sessions, a.metrics)
	return nil
}

// initModel builds the realtime voice provider and the vision analyzer from
// the model credentials.
func (a *App) initModel() error {
	if a.provider == nil {
		var opts []rtopenai.Option
		if a.cfg.Model.RealtimeModel != "" {
			opts = append(opts, rtopenai.WithModel(a.cfg.Model.RealtimeModel))
		}
		if a.cfg.Model.RealtimeURL != "" {
			opts = append(opts, rtopenai.WithBaseURL(a.cfg.Model.RealtimeURL))
		}
		a.provider = rtopenai.New(a.cfg.Model.APIKey, opts...)
	}

	if a.vision == nil {
		v, err := upload.NewVisionClient(a.cfg.Model.APIKey, a.cfg.Model.VisionModel)
		if err != nil {
			return err
		}
		a.vision = v
	}
	return nil
}

// initMetrics creates the app's metric instruments on the global meter
// provider (main installs the SDK provider before calling New).
func (a *App) initMetrics() error {
	m, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return err
	}
	a.metrics = m
	return nil
}

// initUploads assembles the upload service on the public base URL.
func (a *App) initUploads() {
	if a.mailer == nil {
		a.mailer = upload.LogMailer{From: a.cfg.Uploads.FromEmail}
	}
	var base string
	if a.cfg.Server.PublicHost != "" {
		base = "https://" + a.cfg.Server.PublicHost
	}
	a.uploads = upload.NewService(upload.Config{
		Store:    a.uploadStore,
		Mailer:   a.mailer,
		Vision:   a.vision,
		BaseURL:  base,
		Dir:      a.cfg.Uploads.Dir,
		TTL:      a.cfg.UploadTTL(),
		MaxBytes: a.cfg.MaxImageBytes(),
	})
}

// initBridge wires the tool dispatcher and the media bridge.
func (a *App) initBridge() {
	a.dispatcher = agent.NewDispatcher(a.sched, a.customers, a.uploads)
	a.bridge = bridge.New(a.sessions, a.provider, a.dispatcher,
		bridge.WithVoice(a.cfg.Model.Voice),
		bridge.WithMetrics(a.metrics),
	)
}

// initHTTP assembles the route table and binds the listen address.
func (a *App) initHTTP() error {
	mux := http.NewServeMux()

	telephony.NewHandler(a.cfg.Server.PublicHost, a.customers, a.sessions, a.bridge, telephony.TestInfo{
		CarrierConfigured: a.cfg.Carrier.AccountSid != "" && a.cfg.Carrier.AuthToken != "",
		ModelConfigured:   a.cfg.Model.APIKey != "",
		RealtimeModel:     a.cfg.Model.RealtimeModel,
		Voice:             a.cfg.Model.Voice,
	}, telephony.WithMetrics(a.metrics)).Register(mux)

	rest.NewHandler(a.sched, a.customers).Register(mux)
	a.uploads.Register(mux)
	health.New(a.healthCheckers()...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.cfg.Server.ListenAddr, err)
	}
	a.ln = ln
	a.closers = append(a.closers, func() error {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			return err
		}
		return nil
	})

	// No write timeout: media streams hold their connection for the whole
	// call.
	a.server = &http.Server{
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// healthCheckers builds the readiness probes for the wired backends.
func (a *App) healthCheckers() []health.Checker {
	var checkers []health.Checker
	if a.pool != nil {
		checkers = append(checkers, health.Checker{Name: "database", Check: a.pool.Ping})
	}
	checkers = append(checkers, health.Checker{
		Name: "sessions",
		Check: func(ctx context.Context) error {
			_, err := a.sessions.Active(ctx)
			return err
		},
	})
	return checkers
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Addr returns the bound listen address. Differs from the configured address
// when that one uses port 0.
func (a *App) Addr() string {
	return a.ln.Addr().String()
}

// Run serves HTTP on the address bound in New and blocks until ctx is
// cancelled or the server fails. When ctx is done, Run returns ctx.Err();
// call Shutdown afterwards to drain and close.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.Serve(a.ln)
	}()

	slog.Info("app running", "addr", a.Addr(), "public_host", a.cfg.Server.PublicHost)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	}
}

// ApplyConfig applies the hot-reloadable settings from a config file change.
// Restart-only fields are ignored; [config.Diff] decides which is which.
func (a *App) ApplyConfig(diff config.ConfigDiff) {
	if diff.VoiceChanged {
		a.bridge.SetVoice(diff.NewVoice)
		slog.Info("voice updated for new calls", "voice", diff.NewVoice)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the HTTP server, then tears down all subsystems in order.
// It respects the context deadline: if ctx expires before all closers
// finish, remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		// Stop accepting requests first. Media streams are hijacked
		// connections and end with the process, not with the server.
		if a.server != nil {
			if err := a.server.Shutdown(ctx); err != nil {
				slog.Warn("http shutdown error", "err", err)
			}
		}

		// Run closers in order.
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
