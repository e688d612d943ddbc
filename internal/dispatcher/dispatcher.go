// Package dispatcher runs the scheduled dispatch cycle: scan the store for
// due animation events, broadcast each one to all connected clients, and
// mark it completed. Ticks are independent; a failure in one tick is logged
// and the next tick retries from scratch.
package dispatcher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/medsimlabs/vitalcast/internal/coordination"
	"github.com/medsimlabs/vitalcast/internal/domain"
	"github.com/medsimlabs/vitalcast/internal/metrics"
	"github.com/sony/gobreaker"
)

const (
	defaultInterval    = time.Minute
	defaultBatchLimit  = 100
	defaultMaxAttempts = 3
	defaultOpTimeout   = 10 * time.Second

	// claimTTL bounds how long a crashed instance can hold a claim before
	// another tick releases it back to pending. This window is the only
	// place a duplicate broadcast can originate.
	claimTTL = 5 * time.Minute
)

// Options tune the dispatch cycle. Zero values fall back to defaults.
type Options struct {
	// Interval is the tick cadence. Any cadence at or below one minute
	// respects the minute resolution of scheduled times.
	Interval time.Duration
	// BatchLimit caps how many due records one tick claims.
	BatchLimit int
	// MaxAttempts bounds broadcast retries before a record goes to the
	// terminal failed state.
	MaxAttempts int
	// OpTimeout bounds each store call and each publish, so a hung
	// operation fails one record instead of stalling the tick forever.
	OpTimeout time.Duration
}

func (o *Options) applyDefaults() {
	if o.Interval <= 0 {
		o.Interval = defaultInterval
	}
	if o.BatchLimit <= 0 {
		o.BatchLimit = defaultBatchLimit
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = defaultMaxAttempts
	}
	if o.OpTimeout <= 0 {
		o.OpTimeout = defaultOpTimeout
	}
}

// Dispatcher sequences scan, broadcast and status update on a fixed cadence.
// All collaborators are injected; nothing is looked up through globals.
type Dispatcher struct {
	store      domain.DispatchStore
	publisher  domain.AnimationPublisher
	leadership coordination.Leadership
	clock      clockwork.Clock
	opts       Options
	breaker    *gobreaker.CircuitBreaker

	tickInProgress atomic.Bool
	stopOnce       sync.Once
	stopCh         chan struct{}
	doneCh         chan struct{}
}

// New creates a dispatcher. leadership may be coordination.Standalone{} for
// single-instance deployments.
func New(store domain.DispatchStore, publisher domain.AnimationPublisher, leadership coordination.Leadership, clock clockwork.Clock, opts Options) *Dispatcher {
	opts.applyDefaults()

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "dispatch-scan",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Scan circuit breaker state changed", "from", from.String(), "to", to.String())
			metrics.DispatcherBreakerState.Set(breakerStateToFloat(to))
		},
	})

	return &Dispatcher{
		store:      store,
		publisher:  publisher,
		leadership: leadership,
		clock:      clock,
		opts:       opts,
		breaker:    breaker,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

func breakerStateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}

// Run drives the tick loop. It blocks until ctx is cancelled or Stop is
// called. Each tick runs in its own goroutine behind an in-progress guard,
// so a slow tick is skipped over rather than piled onto.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.doneCh)

	slog.Info("Dispatcher started", "interval", d.opts.Interval, "batch_limit", d.opts.BatchLimit)

	ticker := d.clock.NewTicker(d.opts.Interval)
	defer ticker.Stop()

	var tickWg sync.WaitGroup
	defer tickWg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopCh:
			return
		case <-ticker.Chan():
			if !d.tickInProgress.CompareAndSwap(false, true) {
				slog.Warn("Skipping tick: previous tick still in progress")
				metrics.DispatcherTicksTotal.WithLabelValues("skipped_overlap").Inc()
				continue
			}
			tickWg.Add(1)
			go func() {
				defer tickWg.Done()
				defer d.tickInProgress.Store(false)
				d.runTick(ctx)
			}()
		}
	}
}

// Stop terminates the loop and waits for it (and any in-flight tick) to
// finish. Safe to call multiple times.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
	<-d.doneCh
}

// runTick is one dispatch cycle. Nothing in here may panic the process or
// stop the loop; every failure is logged and bounded to the current tick
// (or, within the loop over due records, to the current record).
func (d *Dispatcher) runTick(ctx context.Context) {
	start := d.clock.Now()
	defer func() {
		metrics.DispatcherTickDuration.Observe(d.clock.Since(start).Seconds())
	}()

	leadCtx, cancel := context.WithTimeout(ctx, d.opts.OpTimeout)
	isLeader, err := d.leadership.Acquire(leadCtx)
	cancel()
	if err != nil {
		slog.Warn("Leadership check failed, skipping tick", "error", err)
		metrics.DispatcherTicksTotal.WithLabelValues("skipped_not_leader").Inc()
		return
	}
	if !isLeader {
		slog.Debug("Not the dispatch leader, skipping tick")
		metrics.DispatcherTicksTotal.WithLabelValues("skipped_not_leader").Inc()
		return
	}

	d.releaseStaleClaims(ctx)

	due, err := d.claimDue(ctx)
	if err != nil {
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			slog.Warn("Scan skipped: circuit breaker open")
		case errors.Is(err, domain.ErrStoreUnavailable):
			slog.Error("Schedule store unavailable, will retry next tick", "error", err)
		default:
			slog.Error("Failed to claim due dispatches", "error", err)
		}
		metrics.DispatcherTicksTotal.WithLabelValues("scan_error").Inc()
		return
	}

	if len(due) > 0 {
		slog.Info("Dispatching due animation events", "count", len(due))
	}

	for _, record := range due {
		d.dispatchOne(ctx, record)
	}

	metrics.DispatcherTicksTotal.WithLabelValues("ok").Inc()
}

func (d *Dispatcher) releaseStaleClaims(ctx context.Context) {
	opCtx, cancel := context.WithTimeout(ctx, d.opts.OpTimeout)
	defer cancel()

	released, err := d.store.ReleaseStaleClaims(opCtx, d.clock.Now().Add(-claimTTL))
	if err != nil {
		slog.Warn("Failed to release stale claims", "error", err)
		return
	}
	if released > 0 {
		slog.Warn("Released stale dispatch claims", "count", released)
		metrics.DispatchStaleClaimsReleased.Add(float64(released))
	}
}

func (d *Dispatcher) claimDue(ctx context.Context) ([]domain.ScheduledDispatch, error) {
	opCtx, cancel := context.WithTimeout(ctx, d.opts.OpTimeout)
	defer cancel()

	result, err := d.breaker.Execute(func() (any, error) {
		return d.store.ClaimDue(opCtx, d.clock.Now().UTC().Truncate(time.Minute), d.opts.BatchLimit)
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.ScheduledDispatch), nil
}

// dispatchOne broadcasts one record and persists the outcome. Broadcast and
// status update are strictly sequenced: the update happens only after a
// successful publish, so a broadcast failure leaves the record retryable
// instead of silently lost.
func (d *Dispatcher) dispatchOne(ctx context.Context, record domain.ScheduledDispatch) {
	pubCtx, cancel := context.WithTimeout(ctx, d.opts.OpTimeout)
	err := d.publisher.Publish(pubCtx, record.Event())
	cancel()

	if err != nil {
		slog.Error("Broadcast failed, releasing dispatch for retry",
			"dispatch_id", record.ID.String(),
			"session_id", record.SessionID,
			"attempts", record.Attempts,
			"error", err,
		)
		d.releaseForRetry(ctx, record)
		return
	}

	opCtx, cancel := context.WithTimeout(ctx, d.opts.OpTimeout)
	err = d.store.MarkCompleted(opCtx, record.ID)
	cancel()

	switch {
	case errors.Is(err, domain.ErrDispatchNotFound):
		// Record deleted or raced between scan and update: skip.
		slog.Warn("Dispatch vanished before completion", "dispatch_id", record.ID.String())
		metrics.DispatchesTotal.WithLabelValues("update_error").Inc()
	case err != nil:
		slog.Error("Failed to mark dispatch completed", "dispatch_id", record.ID.String(), "error", err)
		metrics.DispatchesTotal.WithLabelValues("update_error").Inc()
	default:
		slog.Info("Animation event dispatched",
			"dispatch_id", record.ID.String(),
			"session_id", record.SessionID,
			"title", record.Title,
		)
		metrics.DispatchesTotal.WithLabelValues("completed").Inc()
	}
}

func (d *Dispatcher) releaseForRetry(ctx context.Context, record domain.ScheduledDispatch) {
	opCtx, cancel := context.WithTimeout(ctx, d.opts.OpTimeout)
	defer cancel()

	status, err := d.store.ReleaseForRetry(opCtx, record.ID, d.opts.MaxAttempts)
	if err != nil {
		slog.Error("Failed to release dispatch for retry", "dispatch_id", record.ID.String(), "error", err)
		metrics.DispatchesTotal.WithLabelValues("update_error").Inc()
		return
	}

	if status == domain.StatusFailed {
		slog.Error("Dispatch failed permanently: retry budget exhausted",
			"dispatch_id", record.ID.String(),
			"max_attempts", d.opts.MaxAttempts,
		)
		metrics.DispatchesTotal.WithLabelValues("failed").Inc()
		return
	}
	metrics.DispatchesTotal.WithLabelValues("retried").Inc()
}
