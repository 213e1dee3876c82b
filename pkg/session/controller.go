// Package session runs the lifecycle of one client connection: it checks
// that the child is onboarded, builds the conversation pipeline, feeds it
// inbound frames one at a time and tears everything down on idle timeout,
// disconnect or fault.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/checky/pkg/aggregators"
	"github.com/harunnryd/checky/pkg/childcfg"
	"github.com/harunnryd/checky/pkg/errorsx"
	"github.com/harunnryd/checky/pkg/frames"
	"github.com/harunnryd/checky/pkg/logging"
	"github.com/harunnryd/checky/pkg/metrics"
	"github.com/harunnryd/checky/pkg/pipeline"
	"github.com/harunnryd/checky/pkg/prompt"
	"github.com/harunnryd/checky/pkg/transports"
)

var (
	ErrMissingOnboarding = errors.New("session: child configuration missing, onboarding required")
	ErrMissingCredential = errors.New("session: required credential missing")
)

const (
	DefaultIdleTimeout   = 300 * time.Second
	DefaultNotifyTimeout = 2 * time.Second
)

type Config struct {
	// IdleTimeout closes a session that saw no audio or transcript for
	// this long.
	IdleTimeout time.Duration
	// NotifyTimeout bounds the best effort messages sent during teardown.
	NotifyTimeout time.Duration
	// Credentials are environment variables that must be non-empty before
	// a session may start.
	Credentials []string
	// LookupEnv defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

func (c Config) withDefaults() Config {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.NotifyTimeout <= 0 {
		c.NotifyTimeout = DefaultNotifyTimeout
	}
	if c.LookupEnv == nil {
		c.LookupEnv = os.LookupEnv
	}
	return c
}

// Controller starts one session per accepted connection.
type Controller struct {
	cfg       Config
	store     childcfg.Fetcher
	factory   PipelineFactory
	registry  *Registry
	obs       metrics.Observer
	log       *slog.Logger
	listeners []StateListener
}

type Option func(*Controller)

func WithRegistry(r *Registry) Option { return func(c *Controller) { c.registry = r } }

func WithObserver(obs metrics.Observer) Option { return func(c *Controller) { c.obs = obs } }

func WithLogger(log *slog.Logger) Option { return func(c *Controller) { c.log = log } }

// WithStateListener adds a listener to every session's state machine.
func WithStateListener(l StateListener) Option {
	return func(c *Controller) { c.listeners = append(c.listeners, l) }
}

func NewController(cfg Config, store childcfg.Fetcher, factory PipelineFactory, opts ...Option) *Controller {
	c := &Controller{cfg: cfg.withDefaults(), store: store, factory: factory}
	for _, opt := range opts {
		opt(c)
	}
	c.log = logging.NewComponentLogger(c.log, "session")
	return c
}

// Registry returns the registry sessions register with, or nil.
func (c *Controller) Registry() *Registry { return c.registry }

// Result describes how a session ended.
type Result struct {
	SessionID string
	// Exit is the state the session passed through before Closed.
	Exit   State
	Code   transports.CloseCode
	Reason string
	Err    error
}

// Handle runs conn to completion. It satisfies transports.Handler.
func (c *Controller) Handle(ctx context.Context, conn transports.Conn) {
	c.Run(ctx, conn)
}

// Run drives one connection from Connecting to Closed. Cancelling ctx
// closes the session normally.
func (c *Controller) Run(ctx context.Context, conn transports.Conn) Result {
	id := conn.ID()
	s := &session{
		c:        c,
		id:       id,
		conn:     conn,
		log:      c.log.With("session_id", id),
		activity: make(chan struct{}, 1),
		started:  time.Now(),
	}
	s.fsm = newStateMachine(id, append([]StateListener{StateListenerFunc(s.onStateChange)}, c.listeners...)...)
	return s.run(ctx)
}

type session struct {
	c        *Controller
	id       string
	conn     transports.Conn
	fsm      *stateMachine
	log      *slog.Logger
	conv     *aggregators.ConversationContext
	activity chan struct{}
	started  time.Time

	registered bool
	rt         *runtime
}

// runtime is the part of a session that only exists while it is Active.
type runtime struct {
	built   *Built
	cancel  context.CancelFunc
	work    chan frames.Frame
	results chan pushResult
	stopped chan struct{}
	release sync.Once
}

type pushResult struct {
	upstream []frames.Frame
	err      error
}

func (s *session) run(ctx context.Context) Result {
	s.transition(StateConfigValidating, "connection accepted")

	child, err := s.validate(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return s.finish(ctx, StateDisconnecting, transports.CloseNormal, "server shutdown", nil)
		}
		code := transports.CloseInternalError
		reason := "configuration unavailable"
		switch {
		case errors.Is(err, ErrMissingOnboarding):
			code, reason = transports.ClosePolicyViolation, "onboarding required"
		case errors.Is(err, ErrMissingCredential):
			code, reason = transports.ClosePolicyViolation, "credential missing"
		}
		s.log.Error("session_precondition_failed",
			"reason_code", errorsx.Reason(err),
			"error", err)
		return s.finish(ctx, StateFaulted, code, reason, err)
	}

	s.conv = aggregators.NewConversationContext()
	if err := s.conv.Initialize(prompt.Build(child.ChildAge)); err != nil {
		return s.finish(ctx, StateFaulted, transports.CloseInternalError, "internal error", err)
	}

	pctx, cancel := context.WithCancel(ctx)
	rt := &runtime{
		cancel:  cancel,
		work:    make(chan frames.Frame),
		results: make(chan pushResult),
		stopped: make(chan struct{}),
	}
	var upstream []frames.Frame
	built, err := s.c.factory(pctx, Setup{
		SessionID: s.id,
		Child:     *child,
		Context:   s.conv,
		Sender:    s.conn,
		Pipeline: pipeline.Config{
			// Push runs on the worker goroutine, so the sink needs no lock.
			Upstream: func(f frames.Frame) { upstream = append(upstream, f) },
			Tap:      s.tap,
			Observer: s.c.obs,
			Logger:   s.log,
		},
	})
	if err != nil {
		cancel()
		s.log.Error("pipeline_build_failed", "reason_code", errorsx.Reason(err), "error", err)
		if ctx.Err() != nil {
			return s.finish(ctx, StateDisconnecting, transports.CloseNormal, "server shutdown", nil)
		}
		return s.finish(ctx, StateFaulted, transports.CloseInternalError, "internal error", err)
	}
	rt.built = built
	s.rt = rt

	go func() {
		defer close(rt.stopped)
		for f := range rt.work {
			upstream = nil
			err := built.Pipeline.Push(pctx, f)
			res := pushResult{upstream: upstream, err: err}
			select {
			case rt.results <- res:
			case <-pctx.Done():
			}
		}
	}()

	s.transition(StateActive, "configuration valid")
	if s.c.registry != nil {
		s.c.registry.add(s.id, s.fsm, child.ChildAge)
		s.registered = true
	}
	s.log.Info("session_started",
		"child_age", child.ChildAge,
		"voice", child.VoiceID,
		"pipeline", built.Pipeline.String())

	return s.loop(ctx)
}

func (s *session) loop(ctx context.Context) Result {
	rt := s.rt
	idleTimeout := s.c.cfg.IdleTimeout
	idle := time.NewTimer(idleTimeout)
	defer idle.Stop()
	resetIdle := func() {
		if !idle.Stop() {
			select {
			case <-idle.C:
			default:
			}
		}
		idle.Reset(idleTimeout)
		_ = s.fsm.Transition(StateActive, "activity")
	}

	// The greeting is the first frame so the assistant speaks first.
	busy := true
	rt.work <- frames.NewControlSignal(s.id, time.Now().UnixNano(), frames.ControlClientConnected, nil)

	pending := rt.built.Transcripts
	for {
		// Inbound frames and late transcripts are only read while the
		// worker is idle.
		var inbound <-chan frames.Frame
		var transcripts <-chan frames.TranscriptText
		if !busy {
			inbound = s.conn.Recv()
			transcripts = pending
		}
		select {
		case <-ctx.Done():
			return s.finish(ctx, StateDisconnecting, transports.CloseNormal, "server shutdown", nil)
		case <-s.conn.Done():
			return s.finish(ctx, StateDisconnecting, transports.CloseNormal, "client disconnected", nil)
		case <-idle.C:
			return s.finish(ctx, StateIdleTimedOut, transports.CloseNormal, "idle timeout", nil)
		case <-s.activity:
			resetIdle()
		case f, ok := <-inbound:
			if !ok {
				return s.finish(ctx, StateDisconnecting, transports.CloseNormal, "client disconnected", nil)
			}
			switch v := f.(type) {
			case frames.ControlSignal:
				if v.Control() == frames.ControlClientDisconnected {
					return s.finish(ctx, StateDisconnecting, transports.CloseNormal, "client disconnected", nil)
				}
			case frames.AudioChunk, frames.TranscriptText:
				resetIdle()
			}
			busy = true
			rt.work <- f
		case t, ok := <-transcripts:
			if !ok {
				pending = nil
				continue
			}
			resetIdle()
			busy = true
			rt.work <- t
		case res := <-rt.results:
			busy = false
			if res.err != nil && ctx.Err() == nil {
				s.log.Warn("pipeline_push_failed", "error", res.err)
			}
			for _, f := range res.upstream {
				switch v := f.(type) {
				case frames.ErrorSignal:
					s.log.Error("session_fault",
						"stage", v.StageName(),
						"reason_code", errorsx.Reason(v.Cause()),
						"error", v.Cause())
					return s.finish(ctx, StateFaulted, transports.CloseInternalError, "internal error", v)
				case frames.ControlSignal:
					if v.Control() == frames.ControlClientDisconnected {
						return s.finish(ctx, StateDisconnecting, transports.CloseNormal, "client disconnected", nil)
					}
				}
			}
		}
	}
}

func (s *session) validate(ctx context.Context) (*childcfg.Configuration, error) {
	child, err := s.c.store.FetchChildConfiguration(ctx)
	if err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("session: fetch child configuration: %w", err), errorsx.ReasonStoreQuery)
	}
	if child == nil {
		return nil, errorsx.Wrap(ErrMissingOnboarding, errorsx.ReasonConfigMissing)
	}
	for _, name := range s.c.cfg.Credentials {
		v, ok := s.c.cfg.LookupEnv(name)
		if !ok || strings.TrimSpace(v) == "" {
			return nil, errorsx.Errorf(errorsx.ReasonCredentialMissing, "%w: %s", ErrMissingCredential, name)
		}
	}
	return child, nil
}

// finish tears the session down. The pipeline is cancelled first, then the
// client is told (errors are only logged), then adapters and the context
// are released. A worker that does not stop within NotifyTimeout gets its
// adapters released before the client is told.
func (s *session) finish(ctx context.Context, exit State, code transports.CloseCode, reason string, cause error) Result {
	if s.fsm.State() != exit {
		s.transition(exit, reason)
	}

	if rt := s.rt; rt != nil {
		rt.cancel()
		close(rt.work)
		s.awaitWorker(rt)
	}

	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.c.cfg.NotifyTimeout)
	defer cancel()
	if exit == StateIdleTimedOut {
		notice := frames.NewControlSignal(s.id, time.Now().UnixNano(), frames.ControlIdleTimeout, nil)
		if err := s.conn.Send(notifyCtx, notice); err != nil {
			s.log.Debug("idle_notice_failed", "error", err)
		}
	}
	if err := s.conn.Close(code, reason); err != nil {
		s.log.Debug("close_notice_failed", "code", code.String(), "error", err)
	}

	if s.rt != nil {
		s.releaseAdapters(s.rt)
	}
	if s.conv != nil {
		s.conv.Reset()
	}

	s.transition(StateClosed, "teardown complete")
	if s.registered {
		s.c.registry.remove(s.id)
	}

	attrs := []any{
		"exit", exit,
		"close_code", code.String(),
		"duration_ms", time.Since(s.started).Milliseconds(),
	}
	if cause != nil {
		attrs = append(attrs, "reason_code", errorsx.Reason(cause))
	}
	s.log.Info("session_closed", attrs...)

	return Result{SessionID: s.id, Exit: exit, Code: code, Reason: reason, Err: cause}
}

// awaitWorker waits for the pipeline worker to return. A vendor call that
// ignores cancellation is unblocked by releasing the adapters early; if even
// that does not help the worker is abandoned so teardown still completes.
func (s *session) awaitWorker(rt *runtime) {
	grace := s.c.cfg.NotifyTimeout
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-rt.stopped:
		return
	case <-timer.C:
	}
	s.log.Warn("pipeline_stop_slow", "waited_ms", grace.Milliseconds())
	s.releaseAdapters(rt)
	timer.Reset(grace)
	select {
	case <-rt.stopped:
	case <-timer.C:
		s.log.Error("pipeline_worker_abandoned", "waited_ms", 2*grace.Milliseconds())
	}
}

func (s *session) releaseAdapters(rt *runtime) {
	rt.release.Do(func() {
		if rt.built.Release != nil {
			rt.built.Release()
		}
	})
}

func (s *session) tap(stage string, f frames.Frame, dir frames.Direction) {
	if _, ok := f.(frames.TranscriptText); !ok {
		return
	}
	select {
	case s.activity <- struct{}{}:
	default:
	}
}

func (s *session) transition(to State, reason string) {
	if err := s.fsm.Transition(to, reason); err != nil {
		s.log.Warn("session_transition_rejected", "error", err)
	}
}

func (s *session) onStateChange(ev StateChange) {
	if ev.From == ev.To {
		return
	}
	s.log.Debug("session_state", "from", ev.From, "state", ev.To, "reason", ev.Reason)
	metrics.Record(s.c.obs, metrics.EventSessionState, 1, map[string]string{
		metrics.TagSessionID: ev.SessionID,
		metrics.TagState:     string(ev.To),
		metrics.TagFrom:      string(ev.From),
	})
}
