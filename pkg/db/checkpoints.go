package db

import (
	"context"
	"fmt"
)

// Logical stream IDs. One row per stream; each stream has exactly one
// owning component.
const (
	StreamLedgerEvents       = "events:ledger"
	StreamPositionReconciler = "reconcile:positions"
	StreamStakeReconciler    = "reconcile:stakes"
)

// GetCheckpoint returns the stream's cursor, or 0 when the stream has never
// been checkpointed.
func (s *Store) GetCheckpoint(ctx context.Context, streamID string) (int64, error) {
	query := `SELECT last_position FROM checkpoints WHERE stream_id = $1`

	var pos int64
	err := s.QueryRow(ctx, query, streamID).Scan(&pos)
	if err != nil {
		if IsNoRows(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("get checkpoint %s: %w", streamID, err)
	}
	return pos, nil
}

// SetCheckpoint advances the stream cursor. Cursors are monotonic: a write
// below the stored position is a no-op, never a regression.
func (s *Store) SetCheckpoint(ctx context.Context, streamID string, position int64) error {
	query := `
		INSERT INTO checkpoints (stream_id, last_position, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (stream_id) DO UPDATE SET
			last_position = GREATEST(checkpoints.last_position, EXCLUDED.last_position),
			updated_at = now()
	`
	if err := s.Exec(ctx, query, streamID, position); err != nil {
		return fmt.Errorf("set checkpoint %s: %w", streamID, err)
	}
	return nil
}
