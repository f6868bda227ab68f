package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/BTreeMap/JogPipe/internal/models"
)

func (s *sqlStore) RecordAttempt(ctx context.Context, a models.NotificationAttempt, counted bool) error {
	if a.ID == "" {
		a.ID = newID("ntf_")
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	now := a.CreatedAt.UTC()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, s.q(
			`INSERT INTO notification_log (id, user_id, type, title, body, status, error, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
			a.ID, a.UserID, string(a.Type), a.Title, a.Body, string(a.Status), nilIfEmpty(a.Error), now,
		)
		if err != nil {
			return fmt.Errorf("insert notification attempt failed: %w", err)
		}
		if !counted {
			return nil
		}
		_, err = tx.ExecContext(ctx, s.q(
			`INSERT INTO notification_interactions (user_id, type, total) VALUES (?, ?, 1)
			 ON CONFLICT (user_id, type) DO UPDATE SET total = notification_interactions.total + 1`),
			a.UserID, string(a.Type),
		)
		if err != nil {
			return fmt.Errorf("increment interaction counter failed: %w", err)
		}
		_, err = tx.ExecContext(ctx, s.q(
			`INSERT INTO user_stats (user_id, total_notifications_sent, updated_at) VALUES (?, 1, ?)
			 ON CONFLICT (user_id) DO UPDATE SET total_notifications_sent = user_stats.total_notifications_sent + 1,
			     updated_at = excluded.updated_at`),
			a.UserID, now,
		)
		if err != nil {
			return fmt.Errorf("increment notifications sent failed: %w", err)
		}
		return nil
	})
}

func (s *sqlStore) ListAttempts(ctx context.Context, userID string, limit int) ([]models.NotificationAttempt, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, s.q(
		`SELECT id, user_id, type, title, body, status, error, created_at FROM notification_log
		 WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`), userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list attempts query failed: %w", err)
	}
	defer rows.Close()
	var out []models.NotificationAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list attempts iteration failed: %w", err)
	}
	return out, nil
}
