package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// NextSequence returns the next unused scenario sequence number for
// modelID, or 0 for a model that has never produced scenarios.
func (s *Store) NextSequence(ctx context.Context, modelID string) (int64, error) {
	var next int64
	err := s.db.QueryRowContext(ctx, `
		SELECT next_seq FROM sequences WHERE model_id = ?
	`, modelID).Scan(&next)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("next sequence %s: %w", modelID, err)
	}
	return next, nil
}

// SaveSequence records next as the next unused sequence number for
// modelID. A value lower than the stored one is ignored, so sequence
// numbers never move backwards.
func (s *Store) SaveSequence(ctx context.Context, modelID string, next int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sequences (model_id, next_seq) VALUES (?, ?)
		ON CONFLICT(model_id) DO UPDATE SET next_seq = MAX(next_seq, excluded.next_seq)
	`, modelID, next)
	if err != nil {
		return fmt.Errorf("save sequence %s: %w", modelID, err)
	}
	return nil
}
