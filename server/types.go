package server

import (
	"time"

	"github.com/teranos/ctxeng/assemble"
	"github.com/teranos/ctxeng/keystore"
)

const (
	// MaxClients caps concurrent live-preview websocket connections
	MaxClients = 100

	// MaxClientMessageQueueSize bounds frames queued for one preview client
	MaxClientMessageQueueSize = 64

	// ShutdownTimeout bounds how long Stop waits for goroutines and in-flight requests
	ShutdownTimeout = 30 * time.Second

	// SessionSweepInterval is how often idle sessions and their gates are dropped
	SessionSweepInterval = 5 * time.Minute

	// maxRequestBytes caps JSON request bodies
	maxRequestBytes = 1 << 20
)

// ServerState represents the server lifecycle state
type ServerState int32

const (
	ServerStateRunning  ServerState = iota // Normal operation
	ServerStateDraining                    // Shutdown started, refusing new sends
	ServerStateStopped                     // Shutdown complete
)

// previewResponse is returned by the preview endpoints.
type previewResponse struct {
	Text      string `json:"text"`
	Assembled string `json:"assembled,omitempty"`
	Empty     bool   `json:"empty"`
}

// sendRequest is the body of POST /api/send.
type sendRequest struct {
	Model   string           `json:"model"`
	Context assemble.Context `json:"context"`
}

// keyRequest is the body of PUT /api/key.
type keyRequest struct {
	Key string `json:"key"`
}

// keyStatus describes the stored credential without revealing it.
type keyStatus struct {
	Configured bool   `json:"configured"`
	Masked     string `json:"masked,omitempty"`
	Tier       string `json:"tier,omitempty"`
}

// storageCheck is the response of GET /api/storage/check.
type storageCheck struct {
	Usable bool                  `json:"usable"`
	Tiers  []keystore.TierStatus `json:"tiers"`
}
