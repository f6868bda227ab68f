package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const passColumns = `id, kind, slot_unix, status, attempt, last_error, locked_unix, dedupe_key, created_at, updated_at`

func (s *sqlStore) EnqueuePass(ctx context.Context, kind string, slot time.Time) (string, bool, error) {
	id := newID("pass_")
	now := time.Now().UTC()
	key := PassDedupeKey(kind, slot)

	res, err := s.db.ExecContext(ctx, s.q(
		`INSERT INTO pass_runs (id, kind, slot_unix, status, attempt, dedupe_key, created_at, updated_at)
		 VALUES (?, ?, ?, 'queued', 0, ?, ?, ?)
		 ON CONFLICT (dedupe_key) DO NOTHING`),
		id, kind, slot.Unix(), key, now, now,
	)
	if err != nil {
		return "", false, fmt.Errorf("enqueue pass failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		slog.Debug("sqlStore.EnqueuePass", "id", id, "kind", kind, "slot", slot)
		return id, true, nil
	}

	var existingID string
	if err := s.db.QueryRowContext(ctx, s.q(`SELECT id FROM pass_runs WHERE dedupe_key = ?`), key).Scan(&existingID); err != nil {
		return "", false, fmt.Errorf("dedupe lookup failed: %w", err)
	}
	slog.Debug("sqlStore.EnqueuePass: dedupe hit", "dedupeKey", key, "existingID", existingID)
	return existingID, false, nil
}

func (s *sqlStore) ClaimDuePasses(ctx context.Context, now time.Time, limit int) ([]PassRun, error) {
	rows, err := s.db.QueryContext(ctx, s.q(
		`SELECT `+passColumns+` FROM pass_runs WHERE status = 'queued' AND slot_unix <= ? ORDER BY slot_unix ASC LIMIT ?`),
		now.Unix(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim due passes query failed: %w", err)
	}
	var candidates []PassRun
	for rows.Next() {
		p, err := scanPassRun(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan pass run failed: %w", err)
		}
		candidates = append(candidates, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim due passes iteration failed: %w", err)
	}

	// The status guard makes each claim exclusive across workers.
	var claimed []PassRun
	for _, p := range candidates {
		res, err := s.db.ExecContext(ctx, s.q(
			`UPDATE pass_runs SET status = 'running', attempt = attempt + 1, locked_unix = ?, updated_at = ?
			 WHERE id = ? AND status = 'queued'`),
			now.Unix(), time.Now().UTC(), p.ID,
		)
		if err != nil {
			return claimed, fmt.Errorf("mark pass running failed: %w", err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			continue
		}
		locked := time.Unix(now.Unix(), 0).UTC()
		p.Status = PassStatusRunning
		p.Attempt++
		p.LockedAt = &locked
		claimed = append(claimed, p)
	}
	return claimed, nil
}

func (s *sqlStore) setPassStatus(ctx context.Context, id string, status PassStatus, errMsg string) error {
	_, err := s.db.ExecContext(ctx, s.q(
		`UPDATE pass_runs SET status = ?, last_error = ?, locked_unix = NULL, updated_at = ? WHERE id = ?`),
		string(status), nilIfEmpty(errMsg), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("mark pass %s %s failed: %w", id, status, err)
	}
	return nil
}

func (s *sqlStore) CompletePass(ctx context.Context, id string) error {
	return s.setPassStatus(ctx, id, PassStatusDone, "")
}

func (s *sqlStore) FailPass(ctx context.Context, id string, errMsg string) error {
	return s.setPassStatus(ctx, id, PassStatusFailed, errMsg)
}

func (s *sqlStore) CancelPass(ctx context.Context, id string) error {
	return s.setPassStatus(ctx, id, PassStatusCanceled, "")
}

func (s *sqlStore) RequeueStalePasses(ctx context.Context, staleBefore time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, s.q(
		`UPDATE pass_runs SET status = 'queued', locked_unix = NULL, updated_at = ? WHERE status = 'running' AND locked_unix < ?`),
		time.Now().UTC(), staleBefore.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("requeue stale passes failed: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		slog.Info("sqlStore.RequeueStalePasses", "requeued", n)
	}
	return int(n), nil
}

func (s *sqlStore) CancelLatePasses(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, s.q(
		`UPDATE pass_runs SET status = 'canceled', last_error = 'missed slot', updated_at = ? WHERE status = 'queued' AND slot_unix < ?`),
		time.Now().UTC(), cutoff.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("cancel late passes failed: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		slog.Warn("sqlStore.CancelLatePasses", "canceled", n, "cutoff", cutoff)
	}
	return int(n), nil
}

func (s *sqlStore) GetPass(ctx context.Context, id string) (*PassRun, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+passColumns+` FROM pass_runs WHERE id = ?`), id)
	p, err := scanPassRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get pass failed: %w", err)
	}
	return &p, nil
}
