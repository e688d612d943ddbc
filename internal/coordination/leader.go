// Package coordination guards multi-instance deployments: only the elected
// leader runs dispatch ticks, so horizontally scaled instances do not all
// scan the schedule store on every tick. Correctness does not depend on the
// election (claims are atomic either way); leadership avoids wasted work.
package coordination

import (
	"context"
	"errors"
	"time"

	"github.com/medsimlabs/vitalcast/internal/metrics"
	"github.com/redis/go-redis/v9"
)

// ErrNotLeader is reported internally when the lease is held by another instance.
var ErrNotLeader = errors.New("not leader")

// Leadership gates the dispatch loop. Acquire is called at the start of each
// tick; a false result means another instance is dispatching.
type Leadership interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// LeaderElection implements Leadership using Redis SETNX with a TTL lease.
// The leader renews the lease on every tick; if it crashes, the key expires
// and another instance takes over.
type LeaderElection struct {
	redis      *redis.Client
	instanceID string
	key        string
	ttl        time.Duration
}

// NewLeaderElection creates a leader election instance.
// instanceID should be unique per instance (e.g. hostname-PID).
// ttl must comfortably exceed the dispatch interval, or leadership flaps.
func NewLeaderElection(rdb *redis.Client, instanceID string, ttl time.Duration) *LeaderElection {
	return &LeaderElection{
		redis:      rdb,
		instanceID: instanceID,
		key:        "vitalcast:dispatch:leader",
		ttl:        ttl,
	}
}

// Acquire attempts to take or renew the dispatch lease.
// Returns true if this instance is the leader after the call.
func (l *LeaderElection) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.redis.SetNX(ctx, l.key, l.instanceID, l.ttl).Result()
	if err != nil {
		return false, err
	}
	if ok {
		metrics.LeaderElections.Inc()
		metrics.IsLeader.Set(1)
		return true, nil
	}

	// Key exists: renew if we already hold it
	err = l.renew(ctx)
	if errors.Is(err, ErrNotLeader) {
		metrics.IsLeader.Set(0)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	metrics.IsLeader.Set(1)
	return true, nil
}

func (l *LeaderElection) renew(ctx context.Context) error {
	// Lua script ensures atomic check-and-renew
	script := `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	else
		return 0
	end
	`

	result, err := l.redis.Eval(ctx, script, []string{l.key}, l.instanceID, l.ttl.Milliseconds()).Result()
	if err != nil {
		return err
	}
	if result == int64(0) {
		return ErrNotLeader
	}
	return nil
}

// Release voluntarily gives up leadership. Called during graceful shutdown
// so a standby instance can take over without waiting for the TTL.
func (l *LeaderElection) Release(ctx context.Context) error {
	// Only delete if we still hold the lease
	script := `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
	`

	metrics.IsLeader.Set(0)
	return l.redis.Eval(ctx, script, []string{l.key}, l.instanceID).Err()
}

// Standalone is the single-instance Leadership: always the leader.
type Standalone struct{}

func (Standalone) Acquire(context.Context) (bool, error) { return true, nil }
func (Standalone) Release(context.Context) error         { return nil }
