// Package websocket serves browser clients on a single websocket endpoint.
// Binary messages carry 16-bit PCM microphone audio in and synthesized
// speech out; text messages carry JSON captions and control events.
package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/harunnryd/checky/pkg/logging"
	"github.com/harunnryd/checky/pkg/transports"
)

type Config struct {
	Path           string   `mapstructure:"ws_path"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// MaxSessions caps concurrent connections; zero means unlimited.
	MaxSessions  int           `mapstructure:"max_sessions"`
	SampleRate   int           `mapstructure:"sample_rate"`
	ReadLimit    int64         `mapstructure:"read_limit"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

func (c Config) withDefaults() Config {
	if c.Path == "" {
		c.Path = "/chat"
	}
	if c.SampleRate == 0 {
		c.SampleRate = 16000
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 1 << 20
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	return c
}

// Server upgrades requests and runs the handler for each connection on the
// request goroutine.
type Server struct {
	cfg      Config
	handler  transports.Handler
	upgrader websocket.Upgrader
	slots    chan struct{}
	log      *slog.Logger
	draining atomic.Bool
	wg       sync.WaitGroup

	// BaseContext is the parent of every connection context. It defaults
	// to context.Background.
	BaseContext context.Context
}

func New(cfg Config, handler transports.Handler, log *slog.Logger) *Server {
	cfg = cfg.withDefaults()
	s := &Server{
		cfg:     cfg,
		handler: handler,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		log: logging.NewComponentLogger(log, "websocket"),
	}
	s.upgrader.CheckOrigin = s.checkOrigin
	if cfg.MaxSessions > 0 {
		s.slots = make(chan struct{}, cfg.MaxSessions)
	}
	return s
}

func (s *Server) Path() string { return s.cfg.Path }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.draining.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("upgrade_failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	c := newConn(uuid.NewString(), ws, s.cfg, s.log)
	if !s.acquire() {
		s.log.Warn("session_rejected", "session_id", c.ID(), "reason", "max_sessions")
		_ = c.Close(transports.ClosePolicyViolation, "server busy")
		return
	}
	defer s.release()

	s.wg.Add(1)
	defer s.wg.Done()
	go c.readLoop()
	s.log.Info("client_connected", "session_id", c.ID(), "remote", r.RemoteAddr)

	base := s.BaseContext
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := context.WithCancel(base)
	defer cancel()
	s.handler(ctx, c)
	// The handler normally closes; this is for handlers that return early.
	_ = c.Close(transports.CloseNormal, "")
}

// Drain stops accepting new connections.
func (s *Server) Drain() { s.draining.Store(true) }

// Wait blocks until every running handler has returned or ctx is done.
func (s *Server) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (s *Server) acquire() bool {
	if s.slots == nil {
		return true
	}
	select {
	case s.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Server) release() {
	if s.slots != nil {
		<-s.slots
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	origin = strings.TrimRight(origin, "/")
	originHost := strings.TrimPrefix(origin, "https://")
	originHost = strings.TrimPrefix(originHost, "http://")
	for _, allowed := range s.cfg.AllowedOrigins {
		a := strings.TrimRight(strings.TrimSpace(allowed), "/")
		switch {
		case a == "":
			continue
		case a == "*":
			return true
		case strings.HasPrefix(a, "http://") || strings.HasPrefix(a, "https://"):
			if strings.EqualFold(a, origin) {
				return true
			}
		case strings.EqualFold(a, originHost):
			return true
		}
	}
	return false
}
