package database

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/medsimlabs/vitalcast/internal/domain"
	"github.com/stretchr/testify/require"
)

// CreateTestDispatch creates a pending dispatch scheduled at the given time.
func CreateTestDispatch(t *testing.T, pool *pgxpool.Pool, sessionID string, scheduledAt time.Time) *domain.ScheduledDispatch {
	t.Helper()

	repo := NewDispatchRepo(pool)
	d, err := repo.Create(context.Background(), domain.NewDispatch{
		SessionID:   sessionID,
		PatientID:   "patient-" + sessionID,
		Title:       "Vitals Drop",
		Src:         "clip.mp4",
		ScheduledAt: scheduledAt,
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, d.ID)

	return d
}
