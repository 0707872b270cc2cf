package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/leetbuddy/challenge-tracker/internal/domain/sweep"
)

// SweepHistory implements sweep.History over the sweep_runs table.
type SweepHistory struct {
	conn *Connection
}

// NewSweepHistory creates a SweepHistory.
func NewSweepHistory(conn *Connection) *SweepHistory {
	return &SweepHistory{conn: conn}
}

// Record stores the summary of a finished sweep. Recording the same sweep
// twice keeps the first row.
func (h *SweepHistory) Record(ctx context.Context, r sweep.Result) error {
	ctx, cancel := h.conn.queryContext(ctx)
	defer cancel()

	summary, err := json.Marshal(r.Summarize())
	if err != nil {
		return fmt.Errorf("failed to marshal sweep summary: %w", err)
	}

	_, err = h.conn.Exec(ctx, `
		INSERT INTO sweep_runs (id, started_at, finished_at, completed_count, incomplete_count, failed_count, summary)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, r.ID, r.StartedAt, r.FinishedAt, len(r.Completed), len(r.Incomplete), len(r.Failed), summary)
	if err != nil {
		return fmt.Errorf("failed to record sweep %s: %w", r.ID, err)
	}
	return nil
}

// Recent returns up to limit summaries, newest first.
func (h *SweepHistory) Recent(ctx context.Context, limit int) ([]sweep.Summary, error) {
	ctx, cancel := h.conn.queryContext(ctx)
	defer cancel()

	if limit <= 0 {
		limit = sweep.DefaultHistoryLimit
	}

	rows, err := h.conn.Query(ctx, `SELECT summary FROM sweep_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sweep history: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (sweep.Summary, error) {
		var raw []byte
		var s sweep.Summary
		if err := row.Scan(&raw); err != nil {
			return s, err
		}
		return s, json.Unmarshal(raw, &s)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan sweep history: %w", err)
	}
	return out, nil
}

var _ sweep.History = (*SweepHistory)(nil)
