// Package store provides the PassRepo interface and model for durable pass scheduling.
package store

import (
	"context"
	"fmt"
	"time"
)

// PassStatus represents the lifecycle state of a pass run.
type PassStatus string

const (
	PassStatusQueued   PassStatus = "queued"
	PassStatusRunning  PassStatus = "running"
	PassStatusDone     PassStatus = "done"
	PassStatusFailed   PassStatus = "failed"
	PassStatusCanceled PassStatus = "canceled"
)

// PassRun is a durable record of one scheduled pass for one slot minute.
type PassRun struct {
	ID        string     `json:"id"`
	Kind      string     `json:"kind"`
	SlotAt    time.Time  `json:"slot_at"`
	Status    PassStatus `json:"status"`
	Attempt   int        `json:"attempt"`
	LastError string     `json:"last_error"`
	LockedAt  *time.Time `json:"locked_at"`
	DedupeKey string     `json:"dedupe_key"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// PassDedupeKey is the dedupe key of the run of kind for the minute containing slot.
func PassDedupeKey(kind string, slot time.Time) string {
	return fmt.Sprintf("%s:%d", kind, slot.Unix()/60)
}

// PassRepo defines the interface for durable pass run persistence.
type PassRepo interface {
	// EnqueuePass inserts a queued run of kind for slot. If a run for the same kind and
	// slot minute already exists, the call returns its ID and created=false.
	EnqueuePass(ctx context.Context, kind string, slot time.Time) (id string, created bool, err error)

	// ClaimDuePasses marks up to limit queued runs whose slot is at or before now as
	// running and returns them. A run claimed by another worker is not returned.
	ClaimDuePasses(ctx context.Context, now time.Time, limit int) ([]PassRun, error)

	// CompletePass marks a run as done.
	CompletePass(ctx context.Context, id string) error

	// FailPass marks a run as failed and stores the error. Runs are not retried.
	FailPass(ctx context.Context, id string, errMsg string) error

	// CancelPass marks a run as canceled.
	CancelPass(ctx context.Context, id string) error

	// RequeueStalePasses resets runs that have been running since before staleBefore
	// back to queued (crash recovery).
	RequeueStalePasses(ctx context.Context, staleBefore time.Time) (int, error)

	// CancelLatePasses cancels queued runs whose slot is before cutoff.
	CancelLatePasses(ctx context.Context, cutoff time.Time) (int, error)

	// GetPass retrieves a single run by ID.
	GetPass(ctx context.Context, id string) (*PassRun, error)
}
