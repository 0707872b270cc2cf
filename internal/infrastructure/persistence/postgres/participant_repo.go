package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/leetbuddy/challenge-tracker/internal/domain/participant"
	"github.com/leetbuddy/challenge-tracker/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// PARTICIPANT BACKEND
// ══════════════════════════════════════════════════════════════════════════════

// ParticipantBackend implements participant.Backend over the participants
// table. Rows carry the persisted document so decoding (including the legacy
// bare-string shape) stays in participant.Decode.
type ParticipantBackend struct {
	conn   *Connection
	logger zerolog.Logger
}

// NewParticipantBackend creates a backend on conn.
func NewParticipantBackend(conn *Connection, log zerolog.Logger) *ParticipantBackend {
	return &ParticipantBackend{
		conn:   conn,
		logger: logger.Component(log, "postgres"),
	}
}

// Name implements participant.Backend.
func (b *ParticipantBackend) Name() string { return "postgres" }

// Read implements participant.Backend. A missing table reads as empty.
func (b *ParticipantBackend) Read(ctx context.Context) ([]participant.RawEntry, error) {
	ctx, cancel := b.conn.queryContext(ctx)
	defer cancel()

	rows, err := b.conn.Query(ctx, `SELECT id, payload FROM participants ORDER BY position ASC`)
	if err != nil {
		if IsUndefinedTable(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query participants: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (participant.RawEntry, error) {
		var e participant.RawEntry
		var payload []byte
		if err := row.Scan(&e.ID, &payload); err != nil {
			return e, err
		}
		e.Value = payload
		return e, nil
	})
	if err != nil {
		if IsUndefinedTable(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan participants: %w", err)
	}
	return entries, nil
}

// Write implements participant.Backend. The table is replaced inside one
// transaction so readers see either the old or the new registry.
func (b *ParticipantBackend) Write(ctx context.Context, entries []participant.Entry) error {
	ctx, cancel := b.conn.queryContext(ctx)
	defer cancel()

	payloads := make([][]byte, len(entries))
	for i, e := range entries {
		v, err := participant.Encode(e.Record)
		if err != nil {
			return fmt.Errorf("encode participant %s: %w", e.ID, err)
		}
		payloads[i] = v
	}

	err := b.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM participants`); err != nil {
			return fmt.Errorf("failed to clear participants: %w", err)
		}
		if len(entries) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for i, e := range entries {
			batch.Queue(`
				INSERT INTO participants (id, position, payload, updated_at)
				VALUES ($1, $2, $3, NOW())
			`, e.ID, i, payloads[i])
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return err
	}

	b.logger.Debug().Int("entries", len(entries)).Msg("participants written")
	return nil
}

var _ participant.Backend = (*ParticipantBackend)(nil)
