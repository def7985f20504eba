package server

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/teranos/ctxeng/am"
	"github.com/teranos/ctxeng/errors"
)

// checkOrigin validates a browser origin against server.allowed_origins.
// Matching is by prefix so any port on an allowed host passes.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")

	// Allow requests with no origin header (e.g., curl, direct WebSocket clients)
	if origin == "" {
		return true
	}

	for _, allowed := range s.allowedOrigins() {
		if origin == allowed || strings.HasPrefix(origin, allowed+":") {
			return true
		}
	}
	return false
}

// isPortAvailable checks if a port is available for binding
func isPortAvailable(port int) bool {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	_ = listener.Close() // best-effort check, the real bind follows
	return true
}

// findAvailablePort tries the requested port, then the fallback port, then
// the ten ports after the requested one.
func findAvailablePort(requestedPort int) (int, error) {
	if isPortAvailable(requestedPort) {
		return requestedPort, nil
	}

	if requestedPort != am.FallbackServerPort && isPortAvailable(am.FallbackServerPort) {
		return am.FallbackServerPort, nil
	}

	for port := requestedPort + 1; port <= requestedPort+10; port++ {
		if isPortAvailable(port) {
			return port, nil
		}
	}

	return 0, errors.Newf("no available ports found (tried %d, %d and %d-%d)",
		requestedPort, am.FallbackServerPort, requestedPort+1, requestedPort+10)
}

// refererFor returns the browser's origin, the value the page would send as
// HTTP-Referer, falling back to the request host.
func refererFor(r *http.Request) string {
	if origin := r.Header.Get("Origin"); origin != "" {
		return origin
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
