package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInfo(t *testing.T) {
	dev := Info{Version: "dev", CommitHash: "abc", BuildTime: "unknown"}
	assert.False(t, dev.IsRelease())
	assert.Equal(t, "abc", dev.Short())
	assert.Equal(t, "ctxeng dev (commit abc, built unknown)", dev.String())

	rel := Info{Version: "v0.3.1", CommitHash: "0123456789", BuildTime: "2026-01-01"}
	assert.True(t, rel.IsRelease())
	assert.Equal(t, "ctxeng v0.3.1 (commit 0123456, built 2026-01-01)", rel.String())
}

func TestSatisfies(t *testing.T) {
	rel := Info{Version: "0.3.1"}
	ok, err := rel.Satisfies(">= 0.3")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = rel.Satisfies("^1.0")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = Info{Version: "dev"}.Satisfies("^9")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = rel.Satisfies("not a constraint")
	assert.Error(t, err)
}

func TestGet(t *testing.T) {
	info := Get()
	assert.NotEmpty(t, info.GoVersion)
	assert.Contains(t, info.Platform, "/")
}
