// Package keystore persists small string values across restarts using an
// ordered list of storage tiers, most durable first.
//
// Every operation walks the tiers in priority order:
//
//   - Set stops at the first tier that accepts the write and reads it back
//     unchanged. Nothing is replicated to lower tiers.
//   - Get returns the first value found. A failing tier counts as empty.
//   - Remove clears every tier, each attempt independent of the others.
//
// Tier failures are logged and absorbed; callers only ever see Set report
// false when no tier could hold the value.
package keystore

import (
	"crypto/rand"
	"encoding/hex"

	"go.uber.org/zap"

	"github.com/teranos/ctxeng/errors"
	"github.com/teranos/ctxeng/logger"
)

// Tier is one backing store in the fallback chain.
type Tier interface {
	// Name identifies the tier in logs and diagnostics (e.g. "durable").
	Name() string
	// Set writes value under key.
	Set(key, value string) error
	// Get returns the value under key. ok is false when the key is absent.
	Get(key string) (value string, ok bool, err error)
	// Remove deletes key. Removing a missing key is not an error.
	Remove(key string) error
}

// ErrStorageUnavailable is returned at the edges when no tier accepted a write.
var ErrStorageUnavailable = errors.New("no storage tier accepted the write")

// Store tries its tiers in order. The zero value has no tiers; use New.
type Store struct {
	tiers  []Tier
	logger *zap.SugaredLogger
}

// New builds a Store over tiers in priority order. A nil logger disables
// diagnostics. Nil tiers are skipped so callers can pass optional tiers inline.
func New(log *zap.SugaredLogger, tiers ...Tier) *Store {
	s := &Store{logger: logger.OrNop(log)}
	for _, t := range tiers {
		if t != nil {
			s.tiers = append(s.tiers, t)
		}
	}
	return s
}

// Tiers returns the tier names in priority order.
func (s *Store) Tiers() []string {
	names := make([]string, len(s.tiers))
	for i, t := range s.tiers {
		names[i] = t.Name()
	}
	return names
}

// Set writes value to the first tier that accepts it and reproduces it on an
// immediate read. It reports whether any tier did.
func (s *Store) Set(key, value string) bool {
	_, ok := s.SetTier(key, value)
	return ok
}

// SetTier is Set that also names the tier that accepted the write.
func (s *Store) SetTier(key, value string) (string, bool) {
	for _, t := range s.tiers {
		if err := s.writeVerified(t, key, value); err != nil {
			s.logger.Debugw("Tier rejected write",
				logger.FieldTier, t.Name(),
				logger.FieldKey, key,
				logger.FieldError, err,
			)
			continue
		}
		s.logger.Debugw("Tier accepted write",
			logger.FieldTier, t.Name(),
			logger.FieldKey, key,
		)
		return t.Name(), true
	}

	s.logger.Warnw("No storage tier accepted write",
		logger.FieldKey, key,
		"tiers", s.Tiers(),
	)
	return "", false
}

// writeVerified writes to one tier and reads the value back. A tier that
// cannot reproduce the value is cleared so it cannot shadow lower tiers.
func (s *Store) writeVerified(t Tier, key, value string) (err error) {
	defer recoverTier(t, &err)

	if err := t.Set(key, value); err != nil {
		return errors.Wrapf(err, "%s set", t.Name())
	}

	got, ok, err := t.Get(key)
	if err == nil && ok && got == value {
		return nil
	}

	s.discard(t, key)
	if err != nil {
		return errors.Wrapf(err, "%s read-back", t.Name())
	}
	return errors.Newf("%s read-back did not reproduce the written value", t.Name())
}

// Get returns the value from the first tier that has key.
func (s *Store) Get(key string) (string, bool) {
	value, _, ok := s.Lookup(key)
	return value, ok
}

// Lookup is Get that also names the tier the value came from.
func (s *Store) Lookup(key string) (value, tier string, ok bool) {
	for _, t := range s.tiers {
		v, found, err := readTier(t, key)
		if err != nil {
			s.logger.Debugw("Tier read failed",
				logger.FieldTier, t.Name(),
				logger.FieldKey, key,
				logger.FieldError, err,
			)
			continue
		}
		if found {
			s.logger.Debugw("Tier read hit",
				logger.FieldTier, t.Name(),
				logger.FieldKey, key,
			)
			return v, t.Name(), true
		}
	}

	s.logger.Debugw("Key not found in any tier", logger.FieldKey, key)
	return "", "", false
}

// Remove deletes key from every tier. Failures are logged and ignored.
func (s *Store) Remove(key string) {
	for _, t := range s.tiers {
		s.discard(t, key)
	}
	s.logger.Debugw("Key removed", logger.FieldKey, key)
}

func (s *Store) discard(t Tier, key string) {
	if err := removeTier(t, key); err != nil {
		s.logger.Debugw("Tier remove failed",
			logger.FieldTier, t.Name(),
			logger.FieldKey, key,
			logger.FieldError, err,
		)
	}
}

// TierStatus is the outcome of probing one tier.
type TierStatus struct {
	Tier     string `json:"tier"`
	Writable bool   `json:"writable"`
	Readable bool   `json:"readable"`
	Error    string `json:"error,omitempty"`
}

// ProbeKey is the throwaway key used by Probe.
const ProbeKey = "__storage_test__"

// Probe round-trips a throwaway value through every tier independently and
// removes it again. It never touches real keys.
func (s *Store) Probe() []TierStatus {
	token := probeToken()
	results := make([]TierStatus, 0, len(s.tiers))

	for _, t := range s.tiers {
		st := TierStatus{Tier: t.Name()}

		if err := setTier(t, ProbeKey, token); err != nil {
			st.Error = err.Error()
			results = append(results, st)
			continue
		}
		st.Writable = true

		got, ok, err := readTier(t, ProbeKey)
		switch {
		case err != nil:
			st.Error = err.Error()
		case !ok || got != token:
			st.Error = "value did not round-trip"
		default:
			st.Readable = true
		}

		s.discard(t, ProbeKey)
		results = append(results, st)
	}

	return results
}

// AnyUsable reports whether at least one probed tier can round-trip a value.
func AnyUsable(statuses []TierStatus) bool {
	for _, st := range statuses {
		if st.Writable && st.Readable {
			return true
		}
	}
	return false
}

func probeToken() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// The helpers below turn a panicking tier into an error so one broken backend
// cannot take the chain down with it.

func setTier(t Tier, key, value string) (err error) {
	defer recoverTier(t, &err)
	return t.Set(key, value)
}

func readTier(t Tier, key string) (value string, ok bool, err error) {
	defer recoverTier(t, &err)
	return t.Get(key)
}

func removeTier(t Tier, key string) (err error) {
	defer recoverTier(t, &err)
	return t.Remove(key)
}

func recoverTier(t Tier, err *error) {
	if r := recover(); r != nil {
		*err = errors.Newf("%s panicked: %v", t.Name(), r)
	}
}
