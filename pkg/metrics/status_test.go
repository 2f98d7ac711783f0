package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cuemby/fleetload/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetStatus() {
	run = newTracker()
}

func TestHealth(t *testing.T) {
	resetStatus()
	SetVersion("1.0.0")
	SetPhase("release")

	UpdateComponent(ComponentMonitor, true, "running")
	UpdateComponent(ComponentScheduler, true, "releasing")

	st := Health()
	assert.Equal(t, "healthy", st.Status)
	assert.Equal(t, "release", st.Phase)
	assert.Equal(t, "1.0.0", st.Version)
	assert.Len(t, st.Components, 2)

	UpdateComponent(ComponentMonitor, false, "3 consecutive poll failures")
	st = Health()
	assert.Equal(t, "unhealthy", st.Status)
	assert.Equal(t, "monitor: 3 consecutive poll failures", st.Message)
}

func TestReadiness(t *testing.T) {
	tests := []struct {
		name       string
		setup      func()
		wantStatus string
		wantMsg    string
	}{
		{
			name:       "nothing reported",
			setup:      func() {},
			wantStatus: "not_ready",
			wantMsg:    "waiting for the first fleet sample",
		},
		{
			name: "sampled before the scheduler started",
			setup: func() {
				ObserveSnapshot(types.Snapshot{})
			},
			wantStatus: "not_ready",
			wantMsg:    "waiting for the scheduler to start",
		},
		{
			name: "failing scheduler still counts as started",
			setup: func() {
				ObserveSnapshot(types.Snapshot{})
				UpdateComponent(ComponentScheduler, false, "release failed")
			},
			wantStatus: "ready",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetStatus()
			tt.setup()
			st := Readiness()
			assert.Equal(t, tt.wantStatus, st.Status)
			assert.Equal(t, tt.wantMsg, st.Message)
		})
	}
}

func TestStatusHandlers(t *testing.T) {
	resetStatus()
	UpdateComponent(ComponentMonitor, true, "running")

	rec := httptest.NewRecorder()
	ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var snap types.Snapshot
	snap[types.CounterInstalling] = 42
	ObserveSnapshot(snap)

	rec = httptest.NewRecorder()
	StatusHandler()(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var st RunStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&st))
	assert.Equal(t, "healthy", st.Status)
	assert.Equal(t, int64(42), st.Counters["installing"])

	UpdateComponent(ComponentMonitor, false, "poll failed")
	rec = httptest.NewRecorder()
	HealthHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
