// Package server serves the Context Engineer web UI and its JSON API.
package server

import (
	"context"
	"database/sql"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/teranos/ctxeng/ai/openrouter"
	"github.com/teranos/ctxeng/ai/tracker"
	"github.com/teranos/ctxeng/am"
	"github.com/teranos/ctxeng/catalog"
	"github.com/teranos/ctxeng/errors"
	"github.com/teranos/ctxeng/keystore"
	"github.com/teranos/ctxeng/logger"
	"github.com/teranos/ctxeng/workbench"
)

// Options configures a Server.
type Options struct {
	DB     *sql.DB // durable key tier and usage tracking; nil disables both
	Config *am.Config
	// Chatter overrides the OpenRouter client. Tests use it to fake the model.
	Chatter workbench.Chatter
	Logger  *zap.SugaredLogger
}

// Server is the ctxeng HTTP server
type Server struct {
	db       *sql.DB
	sessions *keystore.SessionRegistry
	sender   *workbench.Sender
	tracker  *tracker.UsageTracker // nil without a database
	models   *catalog.Models
	limiters *limiterSet
	origins  atomic.Pointer[[]string]
	upgrader websocket.Upgrader
	logger   *zap.SugaredLogger

	mux        *http.ServeMux
	httpServer *http.Server
	port       int
	ready      chan struct{}

	configWatcher *am.ConfigWatcher

	clients map[*previewClient]bool
	mu      sync.RWMutex

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	state  atomic.Int32
}

// New creates a server. It does not listen until Start.
func New(opts Options) (*Server, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("server requires a configuration")
	}
	log := logger.OrNop(opts.Logger).Named("server")

	models, err := catalog.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load model catalog")
	}

	var usage *tracker.UsageTracker
	if opts.DB != nil {
		usage = tracker.NewUsageTracker(opts.DB, log.Named("usage"))
	}

	chatter := opts.Chatter
	if chatter == nil {
		timeout := cfg.GetOpenRouterTimeout()
		client, err := openrouter.NewClient(openrouter.Config{
			BaseURL: cfg.OpenRouter.BaseURL,
			Model:   cfg.OpenRouter.Model,
			Referer: cfg.OpenRouter.Referer,
			Title:   cfg.OpenRouter.Title,
			Timeout: &timeout,
			Logger:  log,
			Tracker: usage,
		})
		if err != nil {
			return nil, err
		}
		chatter = client
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		db:       opts.DB,
		sessions: keystore.NewSessionRegistry(cfg.GetSessionTTL()),
		sender:   workbench.NewSender(chatter, cfg.OpenRouter.Model, cfg.GetOpenRouterTimeout(), log),
		tracker:  usage,
		models:   models,
		limiters: newLimiterSet(cfg.Server.SendsPerMinute),
		logger:   log,
		mux:      http.NewServeMux(),
		port:     cfg.GetServerPort(),
		ready:    make(chan struct{}),
		clients:  make(map[*previewClient]bool),
		ctx:      ctx,
		cancel:   cancel,
	}
	s.setAllowedOrigins(cfg.GetServerAllowedOrigins())
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  2048,
		WriteBufferSize: 2048,
		CheckOrigin:     s.checkOrigin,
	}
	s.setupHTTPRoutes()
	return s, nil
}

// Handler returns the root handler with all routes and middleware.
func (s *Server) Handler() http.Handler {
	return s.requestMiddleware(s.mux)
}

// ApplyConfig swaps the settings that can change while running: default
// model, send timeout, allowed origins and send rate.
func (s *Server) ApplyConfig(cfg *am.Config) error {
	s.sender.SetDefaults(cfg.OpenRouter.Model, cfg.GetOpenRouterTimeout())
	s.setAllowedOrigins(cfg.GetServerAllowedOrigins())
	s.limiters.setRate(cfg.Server.SendsPerMinute)
	s.logger.Infow("Applied configuration",
		logger.FieldModel, s.sender.DefaultModel(),
		"timeout", s.sender.Timeout(),
		"sends_per_minute", cfg.Server.SendsPerMinute,
	)
	return nil
}

func (s *Server) setAllowedOrigins(origins []string) {
	cp := append([]string(nil), origins...)
	s.origins.Store(&cp)
}

func (s *Server) allowedOrigins() []string {
	return *s.origins.Load()
}

// getState returns the current server state
func (s *Server) getState() ServerState {
	return ServerState(s.state.Load())
}

// setState atomically updates the server state
func (s *Server) setState(newState ServerState) {
	s.state.Store(int32(newState))
	s.logger.Infow("Server state changed", "new_state", stateString(newState))
}

// stateString returns human-readable state name
func stateString(state ServerState) string {
	switch state {
	case ServerStateRunning:
		return "running"
	case ServerStateDraining:
		return "draining"
	case ServerStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
