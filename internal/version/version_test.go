package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_Defaults(t *testing.T) {
	info := Get()

	require.NotEmpty(t, info.Version)
	require.NotEmpty(t, info.Commit)
	require.NotEmpty(t, info.Date)
	assert.Equal(t, info.Version, GetVersion())
}

func TestGet_Overridden(t *testing.T) {
	prevVersion, prevCommit, prevDate := version, commit, date
	t.Cleanup(func() { version, commit, date = prevVersion, prevCommit, prevDate })

	version, commit, date = "v1.2.0", "abc123", "2026-01-02"

	info := Get()
	assert.Equal(t, BuildInfo{Version: "v1.2.0", Commit: "abc123", Date: "2026-01-02"}, info)
	assert.Equal(t, "version=v1.2.0 commit=abc123 date=2026-01-02", String())
	assert.Equal(t, map[string]any{
		"version": "v1.2.0",
		"commit":  "abc123",
		"date":    "2026-01-02",
	}, info.Fields())
}
