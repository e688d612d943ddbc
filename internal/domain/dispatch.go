package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DispatchStatus is the lifecycle state of a scheduled dispatch.
type DispatchStatus string

const (
	// StatusPending means the record has not been picked up yet.
	StatusPending DispatchStatus = "pending"
	// StatusDispatching means an instance has claimed the record and is
	// broadcasting it. Claims expire: a crash between claim and completion
	// releases the record back to pending after the claim TTL.
	StatusDispatching DispatchStatus = "dispatching"
	// StatusCompleted is terminal: the event was broadcast once.
	StatusCompleted DispatchStatus = "completed"
	// StatusFailed is terminal: the broadcast retry budget was exhausted.
	StatusFailed DispatchStatus = "failed"
)

// ScheduledDispatch is a persisted animation event due for broadcast at
// ScheduledAt. SessionID and PatientID are opaque references owned by the
// scheduling side; Title and Src are forwarded verbatim to subscribers.
type ScheduledDispatch struct {
	ID          uuid.UUID
	SessionID   string
	PatientID   string
	Title       string
	Src         string
	ScheduledAt time.Time
	Status      DispatchStatus
	Attempts    int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Due reports whether the dispatch is eligible at the given instant.
// Comparison is minute-truncated to match the persisted resolution of
// ScheduledAt, so sub-minute skew never hides a due record.
func (d ScheduledDispatch) Due(now time.Time) bool {
	return d.Status == StatusPending && !d.ScheduledAt.After(now.Truncate(time.Minute))
}

// AnimationEvent is the wire payload fanned out to every connected client.
type AnimationEvent struct {
	SessionID string `json:"sessionId"`
	PatientID string `json:"patientId"`
	Title     string `json:"title"`
	Src       string `json:"src"`
}

// Event builds the broadcast payload for this dispatch.
func (d ScheduledDispatch) Event() AnimationEvent {
	return AnimationEvent{
		SessionID: d.SessionID,
		PatientID: d.PatientID,
		Title:     d.Title,
		Src:       d.Src,
	}
}

// NewDispatch is the creation payload for a scheduled dispatch.
type NewDispatch struct {
	SessionID   string
	PatientID   string
	Title       string
	Src         string
	ScheduledAt time.Time
}

// DispatchFilter narrows List results. Zero values mean "no filter".
type DispatchFilter struct {
	SessionID string
	Status    DispatchStatus
}

// DispatchStore is the persistence contract for scheduled dispatches.
type DispatchStore interface {
	// Create inserts a pending dispatch. ScheduledAt is stored truncated
	// to minute resolution.
	Create(ctx context.Context, d NewDispatch) (*ScheduledDispatch, error)

	// GetByID returns a single dispatch or ErrDispatchNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*ScheduledDispatch, error)

	// List returns dispatches matching the filter, newest schedule first.
	List(ctx context.Context, filter DispatchFilter) ([]ScheduledDispatch, error)

	// ClaimDue atomically moves up to limit due pending records
	// (scheduled_at <= now, minute-truncated) to dispatching and returns
	// them ordered by scheduled_at then id.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]ScheduledDispatch, error)

	// MarkCompleted finishes a claimed record. Returns ErrDispatchNotFound
	// if the record is not in dispatching state (deleted or raced).
	MarkCompleted(ctx context.Context, id uuid.UUID) error

	// ReleaseForRetry returns a claimed record to pending with an
	// incremented attempt counter, or moves it to failed once attempts
	// reach maxAttempts. Returns the resulting status.
	ReleaseForRetry(ctx context.Context, id uuid.UUID, maxAttempts int) (DispatchStatus, error)

	// ReleaseStaleClaims resets dispatching records claimed before the
	// cutoff back to pending and returns how many were released.
	ReleaseStaleClaims(ctx context.Context, claimedBefore time.Time) (int64, error)
}

// AnimationPublisher fans an event out to all currently connected
// subscribers. Delivery is best-effort and unacknowledged; publishing with
// zero subscribers succeeds as a no-op.
type AnimationPublisher interface {
	Publish(ctx context.Context, event AnimationEvent) error
}
