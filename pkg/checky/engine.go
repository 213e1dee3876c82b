package checky

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harunnryd/checky/pkg/aggregators"
	"github.com/harunnryd/checky/pkg/childcfg"
	"github.com/harunnryd/checky/pkg/logging"
	"github.com/harunnryd/checky/pkg/metrics"
	"github.com/harunnryd/checky/pkg/observers"
	"github.com/harunnryd/checky/pkg/redact"
	"github.com/harunnryd/checky/pkg/runner"
	"github.com/harunnryd/checky/pkg/session"
	"github.com/harunnryd/checky/pkg/transports/websocket"
	"golang.org/x/sync/errgroup"
)

const metricsNamespace = "checky"

// Engine owns the HTTP listener, the websocket transport and the session
// controller.
type Engine struct {
	cfg        Config
	log        *slog.Logger
	store      childcfg.Store
	closeStore func()
	controller *session.Controller
	registry   *session.Registry
	ws         *websocket.Server
	mux        *http.ServeMux
	prom       *metrics.PrometheusObserver
	async      *metrics.AsyncObserver
	timeline   *observers.TimelineObserver

	httpSrv  *http.Server
	group    *errgroup.Group
	mu       sync.Mutex
	addr     net.Addr
	draining atomic.Bool
}

type EngineOptions struct {
	Config Config
	// Providers defaults to DefaultProviders.
	Providers *ProviderRegistry
	// Store overrides the configured child configuration store.
	Store  childcfg.Store
	Logger *slog.Logger
	// Controller options appended after the engine's own.
	SessionOptions []session.Option
}

// NewEngine checks the configured vendors, opens the store and wires the
// conversation pipeline. Nothing listens until Start.
func NewEngine(ctx context.Context, opts EngineOptions) (*Engine, error) {
	cfg := opts.Config
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log = logging.NewComponentLogger(log, "engine")
	redact.SetEnabled(cfg.Privacy.RedactLogs)

	providers := opts.Providers
	if providers == nil {
		providers = DefaultProviders()
	}
	if err := providers.Check(cfg); err != nil {
		return nil, err
	}

	log.Info("checky_init",
		"stt_provider", cfg.Vendors.STT.Provider,
		"tts_provider", cfg.Vendors.TTS.Provider,
		"llm_provider", cfg.Vendors.LLM.Provider,
		"store", cfg.Store.Provider,
		"idle_timeout", cfg.Session.IdleTimeout.String(),
	)

	e := &Engine{cfg: cfg, log: log, mux: http.NewServeMux(), closeStore: func() {}}

	latencyObs := observers.NewLatencyObserver(log)
	obsList := []metrics.Observer{latencyObs, observers.NewLoggerObserver(log)}
	if dir := strings.TrimSpace(cfg.Observability.TimelineDir); dir != "" {
		e.timeline = observers.NewTimelineObserver(dir)
		obsList = append(obsList, e.timeline, observers.NewUsageObserver(dir, cfg.Server.SampleRate))
	}
	if cfg.Observability.Metrics {
		e.prom = metrics.NewPrometheusObserver(metricsNamespace)
		obsList = append(obsList, e.prom)
	}
	e.async = metrics.NewAsyncObserver(observers.NewMultiObserver(obsList...), 2048)

	fail := func(err error) (*Engine, error) {
		e.async.Close()
		if e.timeline != nil {
			_ = e.timeline.Close()
		}
		e.closeStore()
		return nil, err
	}

	sttFactory, err := providers.BuildSTTFactory(cfg.Vendors.STT.Provider, cfg)
	if err != nil {
		return fail(err)
	}
	ttsFactory, err := providers.BuildTTSFactory(cfg.Vendors.TTS.Provider, cfg)
	if err != nil {
		return fail(err)
	}
	model, err := providers.BuildLLM(ctx, cfg.Vendors.LLM.Provider, cfg)
	if err != nil {
		return fail(err)
	}
	model = resilientLLM(model, cfg.Resilience, e.async)

	if opts.Store != nil {
		e.store = opts.Store
	} else {
		store, closeStore, err := OpenStore(ctx, cfg)
		if err != nil {
			return fail(err)
		}
		e.store, e.closeStore = store, closeStore
	}
	if err := seedStore(ctx, cfg, e.store); err != nil {
		return fail(err)
	}

	factory := session.NewPipelineFactory(session.Adapters{
		STT:        sttFactory,
		TTS:        ttsFactory,
		LLM:        model,
		Aggregator: aggregators.AggregatorConfig{},
		SampleRate: cfg.Server.SampleRate,
		Observer:   e.async,
		Logger:     log,
	})
	e.registry = session.NewRegistry()
	sessionOpts := append([]session.Option{
		session.WithRegistry(e.registry),
		session.WithObserver(e.async),
		session.WithLogger(log),
	}, opts.SessionOptions...)
	e.controller = session.NewController(session.Config{
		IdleTimeout: cfg.Session.IdleTimeout,
		Credentials: cfg.Credentials.Required,
	}, e.store, factory, sessionOpts...)

	e.ws = websocket.New(websocket.Config{
		Path:           cfg.Server.WSPath,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxSessions:    cfg.Server.MaxSessions,
		SampleRate:     cfg.Server.SampleRate,
		WriteTimeout:   cfg.Server.WriteTimeout,
	}, e.controller.Handle, log)

	e.mux.Handle(e.ws.Path(), e.ws)
	e.mux.HandleFunc(cfg.Server.HealthPath, e.handleHealth)
	if e.prom != nil {
		e.mux.Handle(cfg.Server.MetricsPath, e.prom.Handler())
	}
	return e, nil
}

// OpenStore opens the configured child configuration store. The returned
// func releases it.
func OpenStore(ctx context.Context, cfg Config) (childcfg.Store, func(), error) {
	switch cfg.Store.Provider {
	case "postgres":
		store, closeFn, err := childcfg.OpenPostgres(ctx, cfg.Store.DSN, cfg.Validator())
		if err != nil {
			return nil, nil, err
		}
		return store, closeFn, nil
	case "memory", "":
		return childcfg.NewMemoryStore(cfg.Validator()), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("store provider not supported: %s", cfg.Store.Provider)
	}
}

func seedStore(ctx context.Context, cfg Config, store childcfg.Store) error {
	if cfg.Store.SeedPIN == "" || cfg.Store.Provider != "memory" {
		return nil
	}
	existing, err := store.FetchChildConfiguration(ctx)
	if err != nil || existing != nil {
		return err
	}
	_, err = store.CreateUser(ctx, cfg.Child.DefaultAge, cfg.Store.SeedPIN, cfg.Child.DefaultVoice)
	return err
}

// Handler exposes the engine's routes, for tests and embedding.
func (e *Engine) Handler() http.Handler { return e.mux }

func (e *Engine) Registry() *session.Registry { return e.registry }

func (e *Engine) Store() childcfg.Store { return e.store }

func (e *Engine) Config() Config { return e.cfg }

// Addr is the bound listener address once Start returned.
func (e *Engine) Addr() net.Addr {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.addr
}

// Start binds the listener and serves until ctx is cancelled. Cancelling
// ctx also ends every live session with a normal close.
func (e *Engine) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", e.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", e.cfg.Server.Addr, err)
	}
	e.ws.BaseContext = ctx
	srv := &http.Server{
		Handler:           e.mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		observers.RunRetention(gctx, e.cfg.Observability.TimelineDir, e.cfg.Observability.Retention, 0, e.log)
		return nil
	})

	e.mu.Lock()
	e.httpSrv, e.group, e.addr = srv, g, ln.Addr()
	e.mu.Unlock()
	e.log.Info("server_listening", "addr", ln.Addr().String(), "ws_path", e.ws.Path())
	return nil
}

// Drain refuses new connections, waits for live sessions to end and shuts
// the listener down. Observers are flushed and the store is closed last.
func (e *Engine) Drain(ctx context.Context) error {
	e.draining.Store(true)
	e.ws.Drain()
	var errs []error
	sessionsDone := true
	if err := e.ws.Wait(ctx); err != nil {
		sessionsDone = false
		errs = append(errs, fmt.Errorf("wait sessions: %w", err))
		e.log.Warn("drain_sessions_timeout", "live", e.registry.Count())
	}

	e.mu.Lock()
	srv, g := e.httpSrv, e.group
	e.mu.Unlock()
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown http server: %w", err))
		}
	}
	if g != nil {
		if err := g.Wait(); err != nil {
			errs = append(errs, err)
		}
	}

	// Sessions still running keep recording; the observers stay open for
	// them.
	if sessionsDone {
		e.async.Close()
		if e.timeline != nil {
			if err := e.timeline.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		e.closeStore()
	}
	e.log.Info("engine_drained", "clean", sessionsDone)
	return errors.Join(errs...)
}

// Run serves until ctx is cancelled and then drains within
// session.drain_timeout.
func (e *Engine) Run(ctx context.Context) error {
	r := runner.NewLifecycleRunner(e, runner.Hooks{OnStart: e.Start}, e.cfg.Session.DrainTimeout)
	return r.Run(ctx)
}

type healthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

func (e *Engine) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Sessions: e.registry.Count()}
	code := http.StatusOK
	if e.draining.Load() {
		resp.Status = "draining"
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
