package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDue(t *testing.T) {
	base := time.Date(2026, 8, 30, 14, 32, 0, 0, time.UTC)

	tests := []struct {
		name        string
		scheduledAt time.Time
		status      DispatchStatus
		now         time.Time
		want        bool
	}{
		{"past pending is due", base.Add(-time.Hour), StatusPending, base, true},
		{"exact minute is due", base, StatusPending, base, true},
		{"due within same minute despite later seconds", base, StatusPending, base.Add(45 * time.Second), true},
		{"future is not due", base.Add(time.Minute), StatusPending, base, false},
		{"future not due even seconds before", base.Add(time.Minute), StatusPending, base.Add(59 * time.Second), false},
		{"dispatching is not due", base.Add(-time.Hour), StatusDispatching, base, false},
		{"completed is not due", base.Add(-time.Hour), StatusCompleted, base, false},
		{"failed is not due", base.Add(-time.Hour), StatusFailed, base, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := ScheduledDispatch{ScheduledAt: tt.scheduledAt, Status: tt.status}
			assert.Equal(t, tt.want, d.Due(tt.now))
		})
	}
}

func TestEvent(t *testing.T) {
	d := ScheduledDispatch{
		SessionID: "S1",
		PatientID: "P1",
		Title:     "Respiratory Distress",
		Src:       "distress.mp4",
		Status:    StatusDispatching,
		Attempts:  2,
	}

	event := d.Event()
	assert.Equal(t, AnimationEvent{
		SessionID: "S1",
		PatientID: "P1",
		Title:     "Respiratory Distress",
		Src:       "distress.mp4",
	}, event)
}
