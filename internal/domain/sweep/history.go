package sweep

import (
	"context"
	"sync"
)

// DefaultHistoryLimit is used when a caller asks for a non-positive limit.
const DefaultHistoryLimit = 20

// History keeps summaries of past sweeps.
type History interface {
	Record(ctx context.Context, r Result) error
	// Recent returns up to limit summaries, newest first.
	Recent(ctx context.Context, limit int) ([]Summary, error)
}

// MemoryHistory is a bounded in-process History for the file-backed setup.
type MemoryHistory struct {
	mu       sync.Mutex
	capacity int
	items    []Summary // oldest first
}

// NewMemoryHistory keeps at most capacity summaries.
func NewMemoryHistory(capacity int) *MemoryHistory {
	if capacity <= 0 {
		capacity = DefaultHistoryLimit
	}
	return &MemoryHistory{capacity: capacity}
}

// Record implements History.
func (h *MemoryHistory) Record(_ context.Context, r Result) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.items {
		if s.ID == r.ID {
			return nil
		}
	}
	h.items = append(h.items, r.Summarize())
	if over := len(h.items) - h.capacity; over > 0 {
		h.items = append(h.items[:0:0], h.items[over:]...)
	}
	return nil
}

// Recent implements History.
func (h *MemoryHistory) Recent(_ context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	n := min(limit, len(h.items))
	out := make([]Summary, 0, n)
	for i := len(h.items) - 1; i >= len(h.items)-n; i-- {
		out = append(out, h.items[i])
	}
	return out, nil
}

var _ History = (*MemoryHistory)(nil)
