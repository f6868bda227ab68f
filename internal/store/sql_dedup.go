package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

func (s *sqlStore) IsDuplicate(ctx context.Context, key string) (bool, error) {
	var found string
	err := s.db.QueryRowContext(ctx, s.q(`SELECT dedupe_key FROM notification_dedup WHERE dedupe_key = ?`), key).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dedup check failed: %w", err)
	}
	return true, nil
}

func (s *sqlStore) RecordOnce(ctx context.Context, key, userID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.q(
		`INSERT INTO notification_dedup (dedupe_key, user_id, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (dedupe_key) DO NOTHING`),
		key, userID, time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("record dedup failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record dedup rows affected failed: %w", err)
	}
	return n == 1, nil
}

func (s *sqlStore) PruneDedup(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM notification_dedup WHERE created_at < ?`), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune dedup failed: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
