package server

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/medsimlabs/vitalcast/internal/broadcast"
	"github.com/medsimlabs/vitalcast/internal/config"
	"github.com/medsimlabs/vitalcast/internal/domain"
)

// stubStore backs handler tests with an in-memory DispatchStore. Scheduler
// operations are not reachable from HTTP handlers and panic if called.
type stubStore struct {
	mu         sync.Mutex
	dispatches map[uuid.UUID]*domain.ScheduledDispatch
	err        error
}

func newStubStore() *stubStore {
	return &stubStore{dispatches: make(map[uuid.UUID]*domain.ScheduledDispatch)}
}

func (s *stubStore) Create(_ context.Context, d domain.NewDispatch) (*domain.ScheduledDispatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	now := time.Now().UTC()
	dispatch := &domain.ScheduledDispatch{
		ID:          uuid.New(),
		SessionID:   d.SessionID,
		PatientID:   d.PatientID,
		Title:       d.Title,
		Src:         d.Src,
		ScheduledAt: d.ScheduledAt.UTC().Truncate(time.Minute),
		Status:      domain.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.dispatches[dispatch.ID] = dispatch
	return dispatch, nil
}

func (s *stubStore) GetByID(_ context.Context, id uuid.UUID) (*domain.ScheduledDispatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	d, ok := s.dispatches[id]
	if !ok {
		return nil, domain.ErrDispatchNotFound
	}
	return d, nil
}

func (s *stubStore) List(_ context.Context, filter domain.DispatchFilter) ([]domain.ScheduledDispatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var out []domain.ScheduledDispatch
	for _, d := range s.dispatches {
		if filter.SessionID != "" && d.SessionID != filter.SessionID {
			continue
		}
		if filter.Status != "" && d.Status != filter.Status {
			continue
		}
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.After(out[j].ScheduledAt) })
	return out, nil
}

func (s *stubStore) ClaimDue(context.Context, time.Time, int) ([]domain.ScheduledDispatch, error) {
	panic("not used")
}

func (s *stubStore) MarkCompleted(context.Context, uuid.UUID) error {
	panic("not used")
}

func (s *stubStore) ReleaseForRetry(context.Context, uuid.UUID, int) (domain.DispatchStatus, error) {
	panic("not used")
}

func (s *stubStore) ReleaseStaleClaims(context.Context, time.Time) (int64, error) {
	panic("not used")
}

// mockPgxPool provides a minimal mock for PostgreSQL health checks
type mockPgxPool struct {
	pingErr error
}

func (m *mockPgxPool) Ping(context.Context) error {
	return m.pingErr
}

type serverOption func(*Server)

func withPostgresHealthCheck(db postgresHealthChecker) serverOption {
	return func(s *Server) { s.db = db }
}

func withRedisHealthCheck(r redisHealthChecker) serverOption {
	return func(s *Server) { s.redis = r }
}

func withConnectionLimits(limits *ConnectionLimits) serverOption {
	return func(s *Server) { s.limits = limits }
}

func newTestServer(t *testing.T, store domain.DispatchStore, opts ...serverOption) *Server {
	t.Helper()

	cfg := &config.Config{
		Port:            "8080",
		MaxClients:      100,
		MaxClientsPerIP: 100,
		ConnRatePerSec:  1000,
		ConnRateBurst:   1000,
	}

	hub := broadcast.NewHub(clockwork.NewRealClock())
	t.Cleanup(hub.Stop)

	srv := NewServer(cfg, store, hub, &mockPgxPool{}, nil)
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}
