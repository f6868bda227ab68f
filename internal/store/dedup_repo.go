// Package store provides the DedupRepo interface for one-shot notification deduplication.
package store

import (
	"context"
	"time"
)

// DedupRecord marks a one-shot notification as already emitted.
type DedupRecord struct {
	DedupeKey string    `json:"dedupe_key"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// DedupRepo defines the interface for one-shot notification deduplication.
type DedupRepo interface {
	// IsDuplicate checks if a key has already been recorded.
	IsDuplicate(ctx context.Context, key string) (bool, error)

	// RecordOnce inserts a dedup record. Returns false if the key was already
	// recorded (duplicate).
	RecordOnce(ctx context.Context, key, userID string) (bool, error)

	// PruneDedup removes records created before cutoff.
	PruneDedup(ctx context.Context, cutoff time.Time) (int, error)
}
