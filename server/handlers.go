package server

import (
	"context"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/teranos/ctxeng/assemble"
	"github.com/teranos/ctxeng/catalog"
	"github.com/teranos/ctxeng/errors"
	"github.com/teranos/ctxeng/keystore"
	"github.com/teranos/ctxeng/logger"
	"github.com/teranos/ctxeng/version"
	"github.com/teranos/ctxeng/workbench"
)

// HandleHealth reports liveness and build information
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	clientCount := len(s.clients)
	s.mu.RUnlock()

	info := version.Get()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"version":  info.Version,
		"commit":   info.CommitHash,
		"state":    stateString(s.getState()),
		"clients":  clientCount,
		"sessions": s.sessions.Len(),
	})
}

// HandleStatic serves the embedded single-page UI
func (s *Server) HandleStatic(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	page, err := fs.ReadFile(webFiles, "web/index.html")
	if err != nil {
		s.writeErr(w, r, errors.Wrap(err, "failed to read embedded page"))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	w.Write(page)
}

// HandlePreview assembles a context without sending it
func (s *Server) HandlePreview(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var c assemble.Context
	if !readJSON(w, r, &c) {
		return
	}
	writeJSON(w, http.StatusOK, preview(c))
}

func preview(c assemble.Context) previewResponse {
	text := assemble.Assemble(c)
	if text == "" {
		return previewResponse{Text: assemble.Placeholder, Empty: true}
	}
	return previewResponse{Text: text, Assembled: text}
}

// HandleSend validates the context, loads the session's credential and
// sends the assembled text to the model once.
func (s *Server) HandleSend(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	if s.getState() != ServerStateRunning {
		writeError(w, http.StatusServiceUnavailable, "Server is shutting down")
		return
	}

	var body sendRequest
	if !readJSON(w, r, &body) {
		return
	}

	session := sessionID(r.Context())
	apiKey, _, _ := keystore.LoadCredential(s.storeFor(w, r))
	req := workbench.SendRequest{
		Context:   body.Context,
		Model:     body.Model,
		APIKey:    apiKey,
		SessionID: session,
		Referer:   refererFor(r),
	}

	// Rejected requests never spend rate budget
	if _, err := workbench.Validate(req); err != nil {
		s.writeErr(w, r, err)
		return
	}
	if !s.limiters.allow(session) {
		w.Header().Set("Retry-After", "60")
		writeError(w, http.StatusTooManyRequests, "Too many requests, please wait a moment before sending again")
		return
	}

	_ = http.NewResponseController(w).SetWriteDeadline(time.Now().Add(s.sender.Timeout() + writeWait))

	// A closed tab does not cancel a send already in flight; the sender's
	// timeout still bounds it.
	res, err := s.sender.Send(context.WithoutCancel(r.Context()), req)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	logger.FromContext(r.Context(), s.logger).Infow("Send completed",
		logger.FieldModel, res.Model,
		logger.FieldCount, len(res.Response.Choices),
		logger.FieldDurationMS, res.Duration.Milliseconds(),
	)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"model":       res.Model,
		"choices":     res.Response.Choices,
		"usage":       res.Response.Usage,
		"duration_ms": res.Duration.Milliseconds(),
	})
}

// HandleModels serves the model catalog, optionally filtered by ?provider=
func (s *Server) HandleModels(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	provider := r.URL.Query().Get("provider")
	if provider == "" {
		writeJSON(w, http.StatusOK, s.models)
		return
	}
	models, ok := s.models.ByProvider(provider)
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown provider: "+provider)
		return
	}
	writeJSON(w, http.StatusOK, catalog.Models{
		Default:   s.models.Default,
		Providers: []catalog.Provider{{Name: models[0].Provider, Models: models}},
	})
}

// HandlePresets serves the example contexts
func (s *Server) HandlePresets(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	presets, err := catalog.Presets()
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, presets)
}

// HandleUsage serves usage statistics for the last ?days=N days (default 30)
func (s *Server) HandleUsage(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if s.tracker == nil {
		writeError(w, http.StatusServiceUnavailable, "Usage tracking requires a database")
		return
	}

	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "days must be an integer")
			return
		}
		days = n
	}

	report, err := s.tracker.Report(days, time.Now())
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
