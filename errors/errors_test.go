package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	original := New("original")
	wrapped := Wrap(original, "wrapped")

	assert.Equal(t, "wrapped: original", wrapped.Error())
	assert.True(t, Is(wrapped, original))
}

type customError struct {
	msg string
}

func (e *customError) Error() string {
	return e.msg
}

func TestAs(t *testing.T) {
	original := &customError{msg: "custom"}
	wrapped := Wrap(original, "wrapped")

	var target *customError
	require.True(t, As(wrapped, &target))
	assert.Equal(t, "custom", target.msg)
}

func TestMarkedSentinels(t *testing.T) {
	errEmpty := New("context is empty")
	errNoLead := New("no persona or prompt")
	errBusy := New("send already in flight")

	empty := Mark(errEmpty, ErrInvalidRequest)
	noLead := Mark(errNoLead, ErrInvalidRequest)
	busy := Mark(errBusy, ErrConflict)

	t.Run("marked error matches its class", func(t *testing.T) {
		assert.True(t, IsInvalidRequestError(empty))
		assert.True(t, IsConflictError(busy))
	})

	t.Run("marked error does not match other classes", func(t *testing.T) {
		assert.False(t, IsConflictError(empty))
		assert.False(t, IsInvalidRequestError(busy))
		assert.False(t, IsUpstreamError(empty))
	})

	t.Run("sentinels sharing a class stay distinct", func(t *testing.T) {
		assert.True(t, Is(empty, errEmpty))
		assert.False(t, Is(empty, errNoLead))
		assert.False(t, Is(noLead, errEmpty))
		assert.False(t, Is(errEmpty, errNoLead))
	})

	t.Run("a sentinel marked at declaration matches its siblings", func(t *testing.T) {
		a := Mark(New("first"), ErrInvalidRequest)
		b := Mark(New("second"), ErrInvalidRequest)
		assert.True(t, Is(a, b), "Is compares marks, so declare sentinels unmarked")
	})

	t.Run("class survives hints and wrapping", func(t *testing.T) {
		err := Wrap(WithHint(empty, "fill in a field"), "send")
		assert.True(t, Is(err, errEmpty))
		assert.True(t, IsInvalidRequestError(err))
	})

	t.Run("nil is never classified", func(t *testing.T) {
		assert.False(t, IsNotFoundError(nil))
		assert.False(t, IsInvalidRequestError(nil))
		assert.False(t, IsConflictError(nil))
		assert.False(t, IsServiceUnavailableError(nil))
		assert.False(t, IsUpstreamError(nil))
	})
}

func TestNewInvalidRequestError(t *testing.T) {
	err := NewInvalidRequestError("model %q is unknown", "foo/bar")
	assert.Equal(t, `model "foo/bar" is unknown`, err.Error())
	assert.True(t, IsInvalidRequestError(err))
}

func TestUserMessage(t *testing.T) {
	t.Run("message only", func(t *testing.T) {
		assert.Equal(t, "boom", UserMessage(New("boom")))
	})

	t.Run("message with hint", func(t *testing.T) {
		err := WithHint(New("invalid key"), `keys start with "sk-or-v1-"`)
		assert.Equal(t, `invalid key (keys start with "sk-or-v1-")`, UserMessage(err))
	})

	t.Run("nil", func(t *testing.T) {
		assert.Equal(t, "", UserMessage(nil))
	})
}

func TestStackTrace(t *testing.T) {
	err := New("with stack")
	assert.Contains(t, fmt.Sprintf("%+v", err), "errors_test.go")
}

func TestNilHandling(t *testing.T) {
	assert.Nil(t, Wrap(nil, "context"))
	assert.Nil(t, Wrapf(nil, "context %d", 1))
	assert.Nil(t, WithStack(nil))
	assert.Nil(t, WithHint(nil, "hint"))
}

func ExampleWrap() {
	baseErr := New("connection refused")
	err := Wrap(baseErr, "failed to reach openrouter")
	fmt.Println(err)
	// Output: failed to reach openrouter: connection refused
}
