// Package workbench validates an assembled context and sends it to a model.
// It sits between the user-facing surfaces (HTTP server, CLI) and the
// OpenRouter client.
package workbench

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/ctxeng/ai/openrouter"
	"github.com/teranos/ctxeng/assemble"
	"github.com/teranos/ctxeng/errors"
	"github.com/teranos/ctxeng/keystore"
	"github.com/teranos/ctxeng/logger"
)

// Validation failures. Validate returns them marked errors.ErrInvalidRequest.
var (
	ErrMissingCredential   = keystore.ErrMissingCredential
	ErrMalformedCredential = keystore.ErrMalformedCredential

	ErrEmptyContext = errors.WithHint(errors.New("context is empty"), "fill in at least one field before sending")
	ErrMissingLead  = errors.New("please add at least a persona or initial prompt")
)

// ErrSendInFlight rejects a second send from a session whose first has not
// finished yet. Send returns it marked errors.ErrConflict.
var ErrSendInFlight = errors.WithHint(
	errors.New("a request is already in progress"),
	"wait for the current response before sending again",
)

// Chatter is the model-facing side of a send.
type Chatter interface {
	Chat(ctx context.Context, req openrouter.ChatRequest) (*openrouter.ChatResponse, error)
}

// SendRequest is everything one send needs.
type SendRequest struct {
	Context assemble.Context
	Model   string // empty = sender default
	APIKey  string
	// SessionID scopes the in-flight gate; empty means the shared local session.
	SessionID string
	Referer   string
}

// Result is a completed send.
type Result struct {
	Model    string                   `json:"model"`
	Prompt   string                   `json:"prompt"`
	Response *openrouter.ChatResponse `json:"response"`
	Duration time.Duration            `json:"duration"`
}

// Sender runs sends: validate, assemble, call the model once, report once.
// At most one send per session is in flight at a time.
type Sender struct {
	client       Chatter
	defaultModel atomic.Value // string
	timeout      atomic.Int64 // nanoseconds
	inflight     sync.Map     // session id -> *atomic.Bool
	logger       *zap.SugaredLogger
}

const localSession = "local"

// NewSender creates a Sender. timeout <= 0 uses openrouter.DefaultTimeout.
func NewSender(client Chatter, defaultModel string, timeout time.Duration, log *zap.SugaredLogger) *Sender {
	s := &Sender{client: client, logger: logger.OrNop(log).Named("workbench")}
	s.SetDefaults(defaultModel, timeout)
	return s
}

// SetDefaults swaps the default model and timeout. Safe to call while sends
// are running; running sends keep the values they started with.
func (s *Sender) SetDefaults(model string, timeout time.Duration) {
	if model == "" {
		model = openrouter.DefaultModel
	}
	if timeout <= 0 {
		timeout = openrouter.DefaultTimeout
	}
	s.defaultModel.Store(model)
	s.timeout.Store(int64(timeout))
}

// DefaultModel returns the model used when a request names none.
func (s *Sender) DefaultModel() string {
	return s.defaultModel.Load().(string)
}

// Timeout returns the per-send timeout.
func (s *Sender) Timeout() time.Duration {
	return time.Duration(s.timeout.Load())
}

// Validate checks a request without sending it and returns the assembled
// prompt. The checks run in the order the user would fix them.
func Validate(req SendRequest) (string, error) {
	if err := keystore.ValidateCredential(req.APIKey); err != nil {
		return "", err
	}
	prompt := assemble.Assemble(req.Context)
	if prompt == "" {
		return "", errors.Mark(ErrEmptyContext, errors.ErrInvalidRequest)
	}
	if !assemble.HasLead(req.Context) {
		return "", errors.Mark(ErrMissingLead, errors.ErrInvalidRequest)
	}
	return prompt, nil
}

// InFlight reports whether sessionID has a send running.
func (s *Sender) InFlight(sessionID string) bool {
	if sessionID == "" {
		sessionID = localSession
	}
	v, ok := s.inflight.Load(sessionID)
	return ok && v.(*atomic.Bool).Load()
}

// Send validates req and performs exactly one model call. Nothing is sent
// when validation fails. A concurrent send for the same session fails fast
// with ErrSendInFlight.
func (s *Sender) Send(ctx context.Context, req SendRequest) (*Result, error) {
	prompt, err := Validate(req)
	if err != nil {
		return nil, err
	}

	session := req.SessionID
	if session == "" {
		session = localSession
	}
	flag, _ := s.inflight.LoadOrStore(session, new(atomic.Bool))
	busy := flag.(*atomic.Bool)
	if !busy.CompareAndSwap(false, true) {
		return nil, errors.Mark(ErrSendInFlight, errors.ErrConflict)
	}
	defer busy.Store(false)

	model := req.Model
	if model == "" {
		model = s.DefaultModel()
	}

	ctx, cancel := context.WithTimeout(ctx, s.Timeout())
	defer cancel()
	ctx = logger.WithSessionID(ctx, req.SessionID)
	log := logger.FromContext(ctx, s.logger)

	log.Infow("Sending context",
		logger.FieldModel, model,
		logger.FieldSize, len(prompt),
	)

	started := time.Now()
	resp, err := s.client.Chat(ctx, openrouter.ChatRequest{
		APIKey:   keystore.NormalizeCredential(req.APIKey),
		Model:    model,
		Prompt:   prompt,
		Referer:  req.Referer,
		EntityID: session,
		Origin:   req.Referer,
	})
	if err != nil {
		log.Warnw("Send failed", logger.FieldModel, model, logger.FieldError, err)
		return nil, err
	}

	return &Result{
		Model:    resp.Model,
		Prompt:   prompt,
		Response: resp,
		Duration: time.Since(started),
	}, nil
}

// Sweep forgets idle gates for sessions that no longer exist.
func (s *Sender) Sweep(alive func(sessionID string) bool) {
	s.inflight.Range(func(k, v any) bool {
		id := k.(string)
		if id != localSession && !v.(*atomic.Bool).Load() && !alive(id) {
			s.inflight.Delete(id)
		}
		return true
	})
}
