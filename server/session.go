package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/teranos/ctxeng/keystore"
	"github.com/teranos/ctxeng/logger"
)

// SessionCookie carries the browser's session id.
const SessionCookie = "ctxeng_session"

type sessionKey struct{}

// sessionID returns the session id attached by requestMiddleware.
func sessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}

// ensureSession reads the session cookie, issuing a fresh id when it is
// missing or malformed.
func ensureSession(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			return c.Value
		}
	}

	id := keystore.NewSessionID()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   keystore.CookieMaxAge,
		Expires:  time.Now().Add(keystore.CookieMaxAge * time.Second),
		SameSite: http.SameSiteStrictMode,
		HttpOnly: true,
		Secure:   r.TLS != nil,
	})
	return id
}

// requestMiddleware attaches a request id and the session id to every request.
func (s *Server) requestMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		w.Header().Set("X-Request-ID", requestID)

		session := ensureSession(w, r)
		s.sessions.Touch(session)
		ctx := context.WithValue(r.Context(), sessionKey{}, session)
		ctx = logger.WithRequestID(ctx, requestID)
		ctx = logger.WithSessionID(ctx, session)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// storeFor builds the credential store for one request. Priority:
//
//	durable  sqlite row scoped to this browser's session cookie
//	session  in-memory, lost on restart or idle expiry
//	cookie   the key itself in an HttpOnly cookie
func (s *Server) storeFor(w http.ResponseWriter, r *http.Request) *keystore.Store {
	id := sessionID(r.Context())
	var durable keystore.Tier
	if s.db != nil {
		durable = keystore.NewSQLTier(s.db, "browser:"+id)
	}
	return keystore.New(
		logger.FromContext(r.Context(), s.logger.Named("keystore")),
		durable,
		s.sessions.Tier(id),
		keystore.NewCookieTier(w, r),
	)
}

// limiterSet holds one send limiter per session.
type limiterSet struct {
	mu       sync.Mutex
	perMin   int
	limiters map[string]*rate.Limiter
}

func newLimiterSet(perMinute int) *limiterSet {
	return &limiterSet{perMin: perMinute, limiters: make(map[string]*rate.Limiter)}
}

// limitFor returns the rate for n sends per minute with a burst of n.
func limitFor(n int) rate.Limit {
	if n <= 0 {
		return rate.Inf
	}
	return rate.Every(time.Minute / time.Duration(n))
}

// allow consumes one send for session. A zero rate never limits.
func (l *limiterSet) allow(session string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.perMin <= 0 {
		return true
	}
	lim, ok := l.limiters[session]
	if !ok {
		lim = rate.NewLimiter(limitFor(l.perMin), l.perMin)
		l.limiters[session] = lim
	}
	return lim.Allow()
}

// setRate changes the rate for existing and future sessions.
func (l *limiterSet) setRate(perMinute int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.perMin = perMinute
	for _, lim := range l.limiters {
		lim.SetLimit(limitFor(perMinute))
		lim.SetBurst(perMinute)
	}
}

// sweep drops limiters of sessions that no longer exist.
func (l *limiterSet) sweep(alive func(string) bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id := range l.limiters {
		if !alive(id) {
			delete(l.limiters, id)
		}
	}
}
