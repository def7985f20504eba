package keystore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/teranos/ctxeng/errors"
)

// memTier is an in-memory tier whose failure modes can be toggled.
type memTier struct {
	name     string
	values   map[string]string
	failSet  bool
	failGet  bool
	failRm   bool
	corrupt  bool // reads return a different value than was written
	panicGet bool
	sets     int
	removes  int
}

func newMemTier(name string) *memTier {
	return &memTier{name: name, values: make(map[string]string)}
}

func (m *memTier) Name() string { return m.name }

func (m *memTier) Set(key, value string) error {
	m.sets++
	if m.failSet {
		return errors.New("quota exceeded")
	}
	m.values[key] = value
	return nil
}

func (m *memTier) Get(key string) (string, bool, error) {
	if m.panicGet {
		panic("storage access denied")
	}
	if m.failGet {
		return "", false, errors.New("access denied")
	}
	v, ok := m.values[key]
	if ok && m.corrupt {
		return v + "-garbled", true, nil
	}
	return v, ok, nil
}

func (m *memTier) Remove(key string) error {
	m.removes++
	if m.failRm {
		return errors.New("access denied")
	}
	delete(m.values, key)
	return nil
}

func TestStore_SetUsesFirstWorkingTier(t *testing.T) {
	durable, session, cookie := newMemTier("durable"), newMemTier("session"), newMemTier("cookie")
	s := New(zaptest.NewLogger(t).Sugar(), durable, session, cookie)

	tier, ok := s.SetTier("openrouter_api_key", "sk-or-v1-abc")
	require.True(t, ok)
	assert.Equal(t, "durable", tier)

	assert.Equal(t, "sk-or-v1-abc", durable.values["openrouter_api_key"])
	assert.Empty(t, session.values, "writes are never replicated")
	assert.Empty(t, cookie.values)
}

func TestStore_FallsThroughFailingTiers(t *testing.T) {
	t.Run("durable fails to write", func(t *testing.T) {
		durable, session := newMemTier("durable"), newMemTier("session")
		durable.failSet = true
		s := New(nil, durable, session)

		assert.True(t, s.Set("k", "v"))
		assert.Equal(t, "v", session.values["k"])
	})

	t.Run("durable throws on every access", func(t *testing.T) {
		durable, session := newMemTier("durable"), newMemTier("session")
		durable.failSet = true
		durable.failGet = true
		s := New(nil, durable, session)

		require.True(t, s.Set("openrouter_api_key", "sk-or-v1-abc"))
		v, tier, ok := s.Lookup("openrouter_api_key")
		require.True(t, ok)
		assert.Equal(t, "sk-or-v1-abc", v)
		assert.Equal(t, "session", tier)
	})

	t.Run("read-back mismatch rejects the tier and cleans it", func(t *testing.T) {
		durable, session := newMemTier("durable"), newMemTier("session")
		durable.corrupt = true
		s := New(nil, durable, session)

		tier, ok := s.SetTier("k", "v")
		require.True(t, ok)
		assert.Equal(t, "session", tier)
		assert.NotContains(t, durable.values, "k", "mismatched value must not shadow the session tier")

		durable.corrupt = false
		v, ok := s.Get("k")
		require.True(t, ok)
		assert.Equal(t, "v", v)
	})

	t.Run("read-back error rejects the tier", func(t *testing.T) {
		durable, session := newMemTier("durable"), newMemTier("session")
		durable.failGet = true
		s := New(nil, durable, session)

		tier, ok := s.SetTier("k", "v")
		require.True(t, ok)
		assert.Equal(t, "session", tier)
	})

	t.Run("panicking tier is treated as failed", func(t *testing.T) {
		durable, session := newMemTier("durable"), newMemTier("session")
		durable.panicGet = true
		s := New(nil, durable, session)

		tier, ok := s.SetTier("k", "v")
		require.True(t, ok)
		assert.Equal(t, "session", tier)

		v, ok := s.Get("k")
		require.True(t, ok)
		assert.Equal(t, "v", v)
	})

	t.Run("every tier fails", func(t *testing.T) {
		a, b := newMemTier("a"), newMemTier("b")
		a.failSet, b.failSet = true, true

		core, logs := observer.New(zapcore.WarnLevel)
		s := New(zap.New(core).Sugar(), a, b)

		assert.False(t, s.Set("k", "v"))
		assert.Equal(t, 1, logs.FilterMessage("No storage tier accepted write").Len())
	})
}

func TestStore_Get(t *testing.T) {
	t.Run("first tier with the key wins", func(t *testing.T) {
		durable, session := newMemTier("durable"), newMemTier("session")
		durable.values["k"] = "from-durable"
		session.values["k"] = "from-session"
		s := New(nil, durable, session)

		v, ok := s.Get("k")
		require.True(t, ok)
		assert.Equal(t, "from-durable", v)
	})

	t.Run("erroring tier counts as absent", func(t *testing.T) {
		durable, cookie := newMemTier("durable"), newMemTier("cookie")
		durable.failGet = true
		cookie.values["k"] = "from-cookie"
		s := New(nil, durable, cookie)

		v, tier, ok := s.Lookup("k")
		require.True(t, ok)
		assert.Equal(t, "from-cookie", v)
		assert.Equal(t, "cookie", tier)
	})

	t.Run("missing everywhere", func(t *testing.T) {
		s := New(nil, newMemTier("a"), newMemTier("b"))
		v, ok := s.Get("k")
		assert.False(t, ok)
		assert.Empty(t, v)
	})

	t.Run("no tiers", func(t *testing.T) {
		s := New(nil)
		_, ok := s.Get("k")
		assert.False(t, ok)
		assert.False(t, s.Set("k", "v"))
	})
}

func TestStore_Remove(t *testing.T) {
	t.Run("clears every tier", func(t *testing.T) {
		durable, session, cookie := newMemTier("durable"), newMemTier("session"), newMemTier("cookie")
		durable.values["k"] = "1"
		session.values["k"] = "2"
		cookie.values["k"] = "3"
		s := New(nil, durable, session, cookie)

		s.Remove("k")

		_, ok := s.Get("k")
		assert.False(t, ok)
		assert.Empty(t, durable.values)
		assert.Empty(t, session.values)
		assert.Empty(t, cookie.values)
	})

	t.Run("a failing tier does not stop the others", func(t *testing.T) {
		durable, cookie := newMemTier("durable"), newMemTier("cookie")
		durable.failRm = true
		cookie.values["k"] = "v"
		s := New(nil, durable, cookie)

		s.Remove("k")
		assert.Equal(t, 1, durable.removes)
		assert.Empty(t, cookie.values)
	})
}

func TestStore_NilTiersSkipped(t *testing.T) {
	s := New(nil, nil, newMemTier("session"), nil)
	assert.Equal(t, []string{"session"}, s.Tiers())
}

func TestStore_Probe(t *testing.T) {
	durable, session, cookie := newMemTier("durable"), newMemTier("session"), newMemTier("cookie")
	durable.failSet = true
	session.corrupt = true
	cookie.values["openrouter_api_key"] = "sk-or-v1-keep"
	s := New(nil, durable, session, cookie)

	statuses := s.Probe()
	require.Len(t, statuses, 3)

	assert.Equal(t, "durable", statuses[0].Tier)
	assert.False(t, statuses[0].Writable)
	assert.NotEmpty(t, statuses[0].Error)

	assert.True(t, statuses[1].Writable)
	assert.False(t, statuses[1].Readable)

	assert.True(t, statuses[2].Writable)
	assert.True(t, statuses[2].Readable)
	assert.Empty(t, statuses[2].Error)

	assert.True(t, AnyUsable(statuses))
	assert.NotContains(t, cookie.values, ProbeKey, "probe value is cleaned up")
	assert.Equal(t, "sk-or-v1-keep", cookie.values["openrouter_api_key"], "probe never touches real keys")

	assert.False(t, AnyUsable(statuses[:2]))
}
