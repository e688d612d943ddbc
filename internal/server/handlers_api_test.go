package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/medsimlabs/vitalcast/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postJSON(srv *Server, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

func getJSON(srv *Server, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

func TestHandleCreateDispatch(t *testing.T) {
	store := newStubStore()
	srv := newTestServer(t, store)

	rec := postJSON(srv, "/api/dispatches", `{
		"sessionId": "S42",
		"patientId": "P7",
		"title": "Cardiac Arrest",
		"src": "animations/arrest.mp4",
		"scheduledTime": "2026-08-30T14:32:45Z"
	}`)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp dispatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "S42", resp.SessionID)
	assert.Equal(t, "P7", resp.PatientID)
	assert.Equal(t, "Cardiac Arrest", resp.Title)
	assert.Equal(t, "animations/arrest.mp4", resp.Src)
	assert.Equal(t, string(domain.StatusPending), resp.Status)
	assert.Zero(t, resp.Attempts)

	// Seconds are dropped at the persistence boundary
	expected := time.Date(2026, 8, 30, 14, 32, 0, 0, time.UTC)
	assert.True(t, resp.ScheduledTime.Equal(expected), "scheduledTime must be minute-truncated, got %s", resp.ScheduledTime)
}

func TestHandleCreateDispatch_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing sessionId", `{"patientId":"P7","title":"T","src":"s.mp4","scheduledTime":"2026-08-30T14:32:00Z"}`},
		{"missing patientId", `{"sessionId":"S42","title":"T","src":"s.mp4","scheduledTime":"2026-08-30T14:32:00Z"}`},
		{"missing title", `{"sessionId":"S42","patientId":"P7","src":"s.mp4","scheduledTime":"2026-08-30T14:32:00Z"}`},
		{"missing src", `{"sessionId":"S42","patientId":"P7","title":"T","scheduledTime":"2026-08-30T14:32:00Z"}`},
		{"missing scheduledTime", `{"sessionId":"S42","patientId":"P7","title":"T","src":"s.mp4"}`},
		{"malformed body", `{not json`},
	}

	store := newStubStore()
	srv := newTestServer(t, store)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(srv, "/api/dispatches", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Empty(t, store.dispatches, "invalid requests must not create records")
}

func TestHandleCreateDispatch_StoreUnavailable(t *testing.T) {
	store := newStubStore()
	store.err = fmt.Errorf("create: %w", domain.ErrStoreUnavailable)
	srv := newTestServer(t, store)

	rec := postJSON(srv, "/api/dispatches", `{
		"sessionId": "S42",
		"patientId": "P7",
		"title": "T",
		"src": "s.mp4",
		"scheduledTime": "2026-08-30T14:32:00Z"
	}`)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleGetDispatch(t *testing.T) {
	store := newStubStore()
	srv := newTestServer(t, store)

	created, err := store.Create(t.Context(), domain.NewDispatch{
		SessionID:   "S1",
		PatientID:   "P1",
		Title:       "Seizure",
		Src:         "seizure.mp4",
		ScheduledAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	rec := getJSON(srv, "/api/dispatches/"+created.ID.String())
	require.Equal(t, http.StatusOK, rec.Code)

	var resp dispatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, created.ID.String(), resp.ID)
	assert.Equal(t, "Seizure", resp.Title)
}

func TestHandleGetDispatch_NotFound(t *testing.T) {
	srv := newTestServer(t, newStubStore())

	rec := getJSON(srv, "/api/dispatches/"+uuid.NewString())
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleGetDispatch_InvalidID(t *testing.T) {
	srv := newTestServer(t, newStubStore())

	rec := getJSON(srv, "/api/dispatches/not-a-uuid")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleListDispatches(t *testing.T) {
	store := newStubStore()
	srv := newTestServer(t, store)

	mk := func(session string) *domain.ScheduledDispatch {
		d, err := store.Create(t.Context(), domain.NewDispatch{
			SessionID:   session,
			PatientID:   "P1",
			Title:       "T",
			Src:         "s.mp4",
			ScheduledAt: time.Now().Add(time.Hour),
		})
		require.NoError(t, err)
		return d
	}
	first := mk("S1")
	mk("S1")
	mk("S2")

	var resp []dispatchResponse

	rec := getJSON(srv, "/api/dispatches")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp, 3)

	rec = getJSON(srv, "/api/dispatches?sessionId=S1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp, 2)

	// Status filter excludes everything but completed records
	store.mu.Lock()
	store.dispatches[first.ID].Status = domain.StatusCompleted
	store.mu.Unlock()

	rec = getJSON(srv, "/api/dispatches?status=completed")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, first.ID.String(), resp[0].ID)
}

func TestHandleListDispatches_InvalidStatus(t *testing.T) {
	srv := newTestServer(t, newStubStore())

	rec := getJSON(srv, "/api/dispatches?status=bogus")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleListDispatches_EmptyResultIsArray(t *testing.T) {
	srv := newTestServer(t, newStubStore())

	rec := getJSON(srv, "/api/dispatches")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}
