package domain

import "errors"

var (
	// ErrDispatchNotFound means the record disappeared or changed state
	// between scan and update.
	ErrDispatchNotFound = errors.New("dispatch not found")
	// ErrStoreUnavailable means the schedule store could not be reached.
	// Recovered per tick: logged, remaining work for that failure point
	// aborted, next tick retries from scratch.
	ErrStoreUnavailable = errors.New("schedule store unavailable")
	// ErrPublisherClosed means the broadcast hub has been stopped.
	ErrPublisherClosed = errors.New("publisher closed")
)
