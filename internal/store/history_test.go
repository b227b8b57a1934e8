package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/local/pdfstamp/internal/geometry"
)

func record(i int) MergeRecord {
	return MergeRecord{
		ID:         fmt.Sprintf("merge-%d", i),
		SessionID:  "s1",
		Variant:    "insert",
		Pages:      i + 1,
		Placement:  geometry.DocRect{X: 192, Y: 240, W: 72, H: 72},
		Output:     "output.pdf",
		DurationMs: 42,
		CreatedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestMemoryHistoryNewestFirstAndCapped(t *testing.T) {
	ctx := context.Background()
	h := NewMemoryHistory(3)
	for i := 0; i < 5; i++ {
		require.NoError(t, h.Record(ctx, record(i)))
	}

	recent, err := h.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	require.Equal(t, "merge-4", recent[0].ID)
	require.Equal(t, "merge-2", recent[2].ID)

	_, ok, err := h.Get(ctx, "merge-0")
	require.NoError(t, err)
	require.False(t, ok)

	rec, ok, err := h.Get(ctx, "merge-3")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 4, rec.Pages)
}

func TestMemoryHistoryRecordIsUpsert(t *testing.T) {
	ctx := context.Background()
	h := NewMemoryHistory(0)
	rec := record(1)
	require.NoError(t, h.Record(ctx, rec))
	rec.Location = "s3://bucket/key.pdf"
	require.NoError(t, h.Record(ctx, rec))

	recent, err := h.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, "s3://bucket/key.pdf", recent[0].Location)
}

// Runs against a real server only when REDIS_URL is set.
func TestRedisHistoryRoundTrip(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	ctx := context.Background()
	h, err := NewRedisHistory(url, 5)
	require.NoError(t, err)
	defer h.Close()
	h.keyNS = "pdfstamp-test-" + uuid.NewString()

	rec := record(7)
	require.NoError(t, h.Record(ctx, rec))
	got, ok, err := h.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rec, got)

	recent, err := h.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.NoError(t, h.client.Del(ctx, h.key(rec.ID), h.recentKey()).Err())
}
