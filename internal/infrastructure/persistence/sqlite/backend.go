package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/leetbuddy/challenge-tracker/internal/domain/participant"
	"github.com/leetbuddy/challenge-tracker/internal/domain/sweep"
	"github.com/leetbuddy/challenge-tracker/pkg/logger"
)

// Backend implements participant.Backend and sweep.History on one database.
type Backend struct {
	db     *sql.DB
	logger zerolog.Logger
	now    func() time.Time
}

// NewBackend wraps an opened database.
func NewBackend(db *sql.DB, log zerolog.Logger) *Backend {
	return &Backend{
		db:     db,
		logger: logger.Component(log, "sqlite"),
		now:    time.Now,
	}
}

// Name implements participant.Backend.
func (b *Backend) Name() string { return "sqlite" }

// Read implements participant.Backend.
func (b *Backend) Read(ctx context.Context) ([]participant.RawEntry, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT id, payload FROM participants ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants: %w", err)
	}
	defer rows.Close()

	var entries []participant.RawEntry
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		entries = append(entries, participant.RawEntry{ID: id, Value: json.RawMessage(payload)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read participants: %w", err)
	}
	return entries, nil
}

// Write implements participant.Backend by replacing every row in one
// transaction.
func (b *Backend) Write(ctx context.Context, entries []participant.Entry) (err error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM participants`); err != nil {
		return fmt.Errorf("failed to clear participants: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO participants (id, position, payload, updated_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	updatedAt := b.now().UTC().UnixNano()
	for i, e := range entries {
		payload, encErr := participant.Encode(e.Record)
		if encErr != nil {
			err = fmt.Errorf("encode participant %s: %w", e.ID, encErr)
			return err
		}
		if _, err = stmt.ExecContext(ctx, e.ID, i, string(payload), updatedAt); err != nil {
			return fmt.Errorf("failed to insert participant %s: %w", e.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit participants: %w", err)
	}
	b.logger.Debug().Int("entries", len(entries)).Msg("participants written")
	return nil
}

// Record implements sweep.History.
func (b *Backend) Record(ctx context.Context, r sweep.Result) error {
	summary, err := json.Marshal(r.Summarize())
	if err != nil {
		return fmt.Errorf("failed to marshal sweep summary: %w", err)
	}
	_, err = b.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO sweep_runs (id, started_at, finished_at, completed_count, incomplete_count, failed_count, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.StartedAt.UnixNano(), r.FinishedAt.UnixNano(), len(r.Completed), len(r.Incomplete), len(r.Failed), string(summary))
	if err != nil {
		return fmt.Errorf("failed to record sweep %s: %w", r.ID, err)
	}
	return nil
}

// Recent implements sweep.History.
func (b *Backend) Recent(ctx context.Context, limit int) ([]sweep.Summary, error) {
	if limit <= 0 {
		limit = sweep.DefaultHistoryLimit
	}
	rows, err := b.db.QueryContext(ctx, `SELECT summary FROM sweep_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sweep history: %w", err)
	}
	defer rows.Close()

	var out []sweep.Summary
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan sweep summary: %w", err)
		}
		var s sweep.Summary
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			return nil, fmt.Errorf("failed to decode sweep summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

var (
	_ participant.Backend = (*Backend)(nil)
	_ sweep.History       = (*Backend)(nil)
)
