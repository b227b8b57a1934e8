package statuscheck

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestSummaryReadiness(t *testing.T) {
	dir := t.TempDir()
	c := New(Options{OutputDir: filepath.Join(dir, "out"), ScratchDir: dir})

	sum := c.Summary(context.Background())
	require.True(t, sum.History.OK)
	require.Equal(t, "In-memory", sum.History.Message)
	require.False(t, sum.S3.OK)
	require.True(t, sum.Output.OK)
	require.True(t, sum.Ready())
	require.DirExists(t, filepath.Join(dir, "out"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		require.False(t, strings.HasPrefix(e.Name(), ".probe-"))
	}
}

func TestSummaryRedisDown(t *testing.T) {
	c := New(Options{Redis: pinger{err: errors.New(strings.Repeat("x", 300))}, OutputDir: t.TempDir(), ScratchDir: t.TempDir()})
	sum := c.Summary(context.Background())
	require.False(t, sum.History.OK)
	require.Len(t, sum.History.Message, 120)
	require.False(t, sum.Ready())
}
