package keystore

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionRegistry holds per-session in-memory values. A session lives until
// it has been idle for longer than the registry's TTL.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*session
	ttl      time.Duration
	now      func() time.Time
}

type session struct {
	values   map[string]string
	lastSeen time.Time
}

// NewSessionRegistry creates a registry whose sessions expire after ttl of
// inactivity. A ttl of zero keeps sessions until the process exits.
func NewSessionRegistry(ttl time.Duration) *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// NewSessionID returns a fresh random session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// Tier returns the tier view of session id. The session itself is created
// lazily on first write.
func (r *SessionRegistry) Tier(id string) *SessionTier {
	return &SessionTier{registry: r, id: id}
}

// Len returns the number of live sessions.
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Touch creates session id if needed and marks it active.
func (r *SessionRegistry) Touch(id string) {
	if id == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookup(id, true)
}

// Drop forgets session id and everything stored in it.
func (r *SessionRegistry) Drop(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Has reports whether id names a live session without touching it.
func (r *SessionRegistry) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return ok && (r.ttl <= 0 || r.now().Sub(s.lastSeen) <= r.ttl)
}

// Sweep drops sessions idle past the TTL and returns how many were removed.
func (r *SessionRegistry) Sweep() int {
	if r.ttl <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.ttl)
	removed := 0
	for id, s := range r.sessions {
		if s.lastSeen.Before(cutoff) {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}

// lookup returns the session for id, touching it. Expired sessions are
// dropped. Callers hold r.mu.
func (r *SessionRegistry) lookup(id string, create bool) *session {
	now := r.now()
	s, ok := r.sessions[id]
	if ok && r.ttl > 0 && now.Sub(s.lastSeen) > r.ttl {
		delete(r.sessions, id)
		ok = false
	}
	if !ok {
		if !create {
			return nil
		}
		s = &session{values: make(map[string]string)}
		r.sessions[id] = s
	}
	s.lastSeen = now
	return s
}

// SessionTier is the session-scoped tier for one session id.
type SessionTier struct {
	registry *SessionRegistry
	id       string
}

// Name implements Tier.
func (t *SessionTier) Name() string { return "session" }

// Set implements Tier.
func (t *SessionTier) Set(key, value string) error {
	if t.id == "" {
		return errNoSession
	}
	t.registry.mu.Lock()
	defer t.registry.mu.Unlock()
	t.registry.lookup(t.id, true).values[key] = value
	return nil
}

// Get implements Tier.
func (t *SessionTier) Get(key string) (string, bool, error) {
	if t.id == "" {
		return "", false, errNoSession
	}
	t.registry.mu.Lock()
	defer t.registry.mu.Unlock()
	s := t.registry.lookup(t.id, false)
	if s == nil {
		return "", false, nil
	}
	v, ok := s.values[key]
	return v, ok, nil
}

// Remove implements Tier.
func (t *SessionTier) Remove(key string) error {
	if t.id == "" {
		return errNoSession
	}
	t.registry.mu.Lock()
	defer t.registry.mu.Unlock()
	if s := t.registry.lookup(t.id, false); s != nil {
		delete(s.values, key)
	}
	return nil
}
