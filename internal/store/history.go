// Package store keeps a record of completed merges.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/local/pdfstamp/internal/geometry"
)

// MergeRecord describes one finished merge.
type MergeRecord struct {
	ID         string           `json:"id"`
	SessionID  string           `json:"session_id"`
	Variant    string           `json:"variant"`
	Template   string           `json:"template"`
	Overlay    string           `json:"overlay"`
	Pages      int              `json:"pages"`
	Placement  geometry.DocRect `json:"placement"`
	Output     string           `json:"output"`
	Location   string           `json:"location,omitempty"`
	DurationMs int64            `json:"duration_ms"`
	CreatedAt  time.Time        `json:"created_at"`
}

// History stores merge records.
type History interface {
	Record(ctx context.Context, rec MergeRecord) error
	Get(ctx context.Context, id string) (MergeRecord, bool, error)
	// Recent returns up to n records, newest first.
	Recent(ctx context.Context, n int) ([]MergeRecord, error)
	Close() error
}

// MemoryHistory is a History kept in process memory. It is used when no Redis URL is
// configured.
type MemoryHistory struct {
	mu    sync.RWMutex
	byID  map[string]MergeRecord
	order []string
	limit int
}

// NewMemoryHistory keeps at most limit records (unbounded when limit <= 0).
func NewMemoryHistory(limit int) *MemoryHistory {
	return &MemoryHistory{byID: make(map[string]MergeRecord), limit: limit}
}

func (h *MemoryHistory) Record(_ context.Context, rec MergeRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.byID[rec.ID]; !ok {
		h.order = append([]string{rec.ID}, h.order...)
	}
	h.byID[rec.ID] = rec
	if h.limit > 0 && len(h.order) > h.limit {
		for _, id := range h.order[h.limit:] {
			delete(h.byID, id)
		}
		h.order = h.order[:h.limit]
	}
	return nil
}

func (h *MemoryHistory) Get(_ context.Context, id string) (MergeRecord, bool, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	rec, ok := h.byID[id]
	return rec, ok, nil
}

func (h *MemoryHistory) Recent(_ context.Context, n int) ([]MergeRecord, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if n <= 0 || n > len(h.order) {
		n = len(h.order)
	}
	out := make([]MergeRecord, 0, n)
	for _, id := range h.order[:n] {
		out = append(out, h.byID[id])
	}
	return out, nil
}

func (h *MemoryHistory) Close() error { return nil }
