package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/teranos/ctxeng/am"
	"github.com/teranos/ctxeng/errors"
	ctxtest "github.com/teranos/ctxeng/internal/testing"
	"github.com/teranos/ctxeng/keystore"
	"github.com/teranos/ctxeng/workbench"
)

func TestStartStop(t *testing.T) {
	env := newTestEnv(t, ctxtest.CreateTestDB(t), func(c *am.Config) {
		port := 0
		c.Server.Port = &port
	})
	s := env.server

	var opened string
	done := make(chan error, 1)
	go func() { done <- s.Start(func(url string) { opened = url }) }()

	select {
	case <-s.Ready():
	case err := <-done:
		t.Fatalf("server exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server never became ready")
	}
	assert.NotZero(t, s.port)

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/health", s.port))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, s.sessions.Len(), "the self-test leaves no session behind")

	require.NoError(t, s.Stop())
	assert.NoError(t, <-done)
	assert.Equal(t, s.URL(), opened)
	assert.Equal(t, ServerStateStopped, s.getState())
}

func TestFindAvailablePort(t *testing.T) {
	l, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer l.Close()
	busy := l.Addr().(*net.TCPAddr).Port

	port, err := findAvailablePort(busy)
	require.NoError(t, err)
	assert.NotEqual(t, busy, port)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid request", errors.Mark(workbench.ErrEmptyContext, errors.ErrInvalidRequest), http.StatusBadRequest},
		{"missing key", keystore.ValidateCredential(""), http.StatusBadRequest},
		{"in flight", errors.Mark(workbench.ErrSendInFlight, errors.ErrConflict), http.StatusConflict},
		{"upstream", errors.Mark(errors.New("boom"), errors.ErrUpstream), http.StatusBadGateway},
		{"timeout", errors.Wrap(context.DeadlineExceeded, "send"), http.StatusGatewayTimeout},
		{"not found", errors.Mark(errors.New("nope"), errors.ErrNotFound), http.StatusNotFound},
		{"storage", errors.WithHint(errors.Mark(keystore.ErrStorageUnavailable, errors.ErrServiceUnavailable), "hint"), http.StatusInternalServerError},
		{"unavailable", errors.Mark(errors.New("down"), errors.ErrServiceUnavailable), http.StatusServiceUnavailable},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestLimiterSet(t *testing.T) {
	l := newLimiterSet(2)
	assert.True(t, l.allow("a"))
	assert.True(t, l.allow("a"))
	assert.False(t, l.allow("a"))
	assert.True(t, l.allow("b"), "budgets are per session")

	l.sweep(func(id string) bool { return id == "b" })
	assert.True(t, l.allow("a"), "a swept session starts over")

	l.setRate(0)
	for i := 0; i < 10; i++ {
		assert.True(t, l.allow("c"))
	}
	assert.Equal(t, rate.Inf, limitFor(0))
}

func TestRefererFor(t *testing.T) {
	r, _ := http.NewRequest(http.MethodPost, "http://localhost:8820/api/send", nil)
	r.Host = "localhost:8820"
	assert.Equal(t, "http://localhost:8820", refererFor(r))

	r.Header.Set("Origin", "http://127.0.0.1:5173")
	assert.Equal(t, "http://127.0.0.1:5173", refererFor(r))
}
