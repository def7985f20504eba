package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/teranos/ctxeng/am"
	"github.com/teranos/ctxeng/errors"
	"github.com/teranos/ctxeng/keystore"
	"github.com/teranos/ctxeng/logger"
)

// selfTestOrigin scopes the throwaway rows written by the startup probe.
const selfTestOrigin = "__selftest__"

// Start listens and serves until Stop. openBrowser, when set, is called with
// the server URL once the listener is up. Start returns nil after a clean Stop.
func (s *Server) Start(openBrowser func(url string)) error {
	actualPort, err := findAvailablePort(s.port)
	if err != nil {
		return errors.Wrap(err, "failed to find available port")
	}
	if actualPort != s.port {
		s.logger.Infow("Port in use, using alternative",
			"requested_port", s.port,
			"actual_port", actualPort,
		)
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", actualPort))
	if err != nil {
		return errors.Wrapf(err, "failed to listen on port %d", actualPort)
	}
	s.port = listener.Addr().(*net.TCPAddr).Port

	s.storageSelfTest()
	s.startBackgroundServices()

	s.mu.Lock()
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second, // sends extend their own deadline
		IdleTimeout:       120 * time.Second,
	}
	srv := s.httpServer
	s.mu.Unlock()

	close(s.ready)

	url := s.URL()
	s.logger.Infow("Server ready", "url", url, logger.FieldPort, s.port)
	if openBrowser != nil {
		s.logger.Infow("Opening browser", "url", url)
		openBrowser(url)
	}

	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server failed")
	}
	return nil
}

// Ready is closed once Start is listening.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// URL returns the local address the server listens on.
func (s *Server) URL() string {
	return fmt.Sprintf("http://localhost:%d", s.port)
}

// WatchConfig reloads the default model, timeout, origins and send rate
// whenever one of paths changes.
func (s *Server) WatchConfig(paths []string) error {
	watcher, err := am.NewConfigWatcher(paths, s.logger)
	if err != nil {
		return err
	}
	watcher.OnReload(s.ApplyConfig)
	watcher.Start()
	s.configWatcher = watcher
	s.logger.Infow("Watching configuration", "files", paths)
	return nil
}

// storageSelfTest probes the server-side credential tiers once at startup.
// The cookie tier lives in the browser and is checked by /api/storage/check.
func (s *Server) storageSelfTest() {
	var durable keystore.Tier
	if s.db != nil {
		durable = keystore.NewSQLTier(s.db, selfTestOrigin)
	}
	store := keystore.New(s.logger.Named("keystore"), durable, s.sessions.Tier(selfTestOrigin))
	statuses := store.Probe()
	s.sessions.Drop(selfTestOrigin)

	for _, st := range statuses {
		if st.Writable && st.Readable {
			s.logger.Debugw("Storage tier available", logger.FieldTier, st.Tier)
			continue
		}
		s.logger.Warnw("Storage tier unavailable", logger.FieldTier, st.Tier, logger.FieldError, st.Error)
	}
	if !keystore.AnyUsable(statuses) {
		s.logger.Errorw("No server-side storage tier is usable; keys will only survive in browser cookies")
	}
}

// startBackgroundServices starts the session sweeper
func (s *Server) startBackgroundServices() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(SessionSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sweepSessions()
			case <-s.ctx.Done():
				return
			}
		}
	}()
}

// sweepSessions drops idle sessions along with their send gates and limiters
func (s *Server) sweepSessions() {
	removed := s.sessions.Sweep()
	s.sender.Sweep(s.sessions.Has)
	s.limiters.sweep(s.sessions.Has)
	if removed > 0 {
		s.logger.Debugw("Swept idle sessions", logger.FieldCount, removed)
	}
}

// Stop gracefully shuts down the server and cleans up resources
func (s *Server) Stop() error {
	s.logger.Infow("Initiating server shutdown")
	s.setState(ServerStateDraining)

	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	s.mu.RLock()
	srv := s.httpServer
	s.mu.RUnlock()

	var shutdownErr error
	if srv != nil {
		// Waits for in-flight sends to finish
		if err := srv.Shutdown(ctx); err != nil {
			shutdownErr = errors.Wrap(err, "http shutdown")
		}
	}

	// Close preview connections to unblock their read pumps
	s.mu.Lock()
	clients := make([]*previewClient, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()
	if len(clients) > 0 {
		s.logger.Infow("Closing preview connections", logger.FieldCount, len(clients))
		for _, c := range clients {
			c.conn.Close()
		}
	}

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Infow("All goroutines stopped cleanly")
	case <-ctx.Done():
		s.logger.Warnw("Goroutine shutdown timed out, forcing exit", "timeout", ShutdownTimeout)
	}

	if s.configWatcher != nil {
		if err := s.configWatcher.Stop(); err != nil {
			s.logger.Warnw("Failed to stop config watcher", logger.FieldError, err)
		}
	}

	s.setState(ServerStateStopped)
	s.logger.Infow("Server shutdown complete")
	return shutdownErr
}
