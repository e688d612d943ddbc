package server

import (
	"context"
	"errors"
	"net/http"
	"testing"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRedisClient provides a minimal mock for health check testing
type mockRedisClient struct {
	pingErr error
}

func (m *mockRedisClient) Ping(ctx context.Context) *goredis.StatusCmd {
	cmd := goredis.NewStatusCmd(ctx)
	if m.pingErr != nil {
		cmd.SetErr(m.pingErr)
	} else {
		cmd.SetVal("PONG")
	}
	return cmd
}

func TestHandleLiveness(t *testing.T) {
	srv := newTestServer(t, newStubStore())

	rec := getJSON(srv, "/health/live")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"clients":0`)
}

func TestHandleReadiness_AllHealthy(t *testing.T) {
	srv := newTestServer(t, newStubStore(),
		withPostgresHealthCheck(&mockPgxPool{}),
		withRedisHealthCheck(&mockRedisClient{}),
	)

	rec := getJSON(srv, "/health/ready")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready"}`, rec.Body.String())
}

func TestHandleReadiness_PostgresDown(t *testing.T) {
	srv := newTestServer(t, newStubStore(),
		withPostgresHealthCheck(&mockPgxPool{pingErr: errors.New("connection refused")}),
	)

	rec := getJSON(srv, "/health/ready")

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"failed_check":"postgres"`)
}

func TestHandleReadiness_RedisDown(t *testing.T) {
	srv := newTestServer(t, newStubStore(),
		withPostgresHealthCheck(&mockPgxPool{}),
		withRedisHealthCheck(&mockRedisClient{pingErr: errors.New("connection refused")}),
	)

	rec := getJSON(srv, "/health/ready")

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"failed_check":"redis"`)
}

func TestHandleReadiness_NoRedisConfigured(t *testing.T) {
	// Standalone deployments have no Redis; readiness must not require it
	srv := newTestServer(t, newStubStore(), withPostgresHealthCheck(&mockPgxPool{}))

	rec := getJSON(srv, "/health/ready")

	assert.Equal(t, http.StatusOK, rec.Code)
}
