package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/cuemby/fleetload/pkg/types"
)

// Components that report into the run status
const (
	ComponentMonitor   = "monitor"
	ComponentScheduler = "scheduler"
)

// ComponentStatus is the last state a run component reported
type ComponentStatus struct {
	Healthy bool      `json:"healthy"`
	Message string    `json:"message,omitempty"`
	Updated time.Time `json:"updated"`
}

// RunStatus is the body of the /health, /ready and /status endpoints
type RunStatus struct {
	Status     string                     `json:"status"`
	Version    string                     `json:"version,omitempty"`
	Phase      string                     `json:"phase,omitempty"`
	Elapsed    string                     `json:"elapsed"`
	Message    string                     `json:"message,omitempty"`
	Components map[string]ComponentStatus `json:"components,omitempty"`
	Counters   map[string]int64           `json:"counters,omitempty"`
}

type tracker struct {
	mu         sync.RWMutex
	started    time.Time
	version    string
	phase      string
	components map[string]ComponentStatus
	counters   types.Snapshot
	sampled    bool
}

var run = newTracker()

func newTracker() *tracker {
	return &tracker{
		started:    time.Now(),
		components: make(map[string]ComponentStatus),
	}
}

// SetVersion sets the version reported by the status endpoints
func SetVersion(version string) {
	run.mu.Lock()
	defer run.mu.Unlock()
	run.version = version
}

// SetPhase records the step the run is in (start-delay, release, install-wait, ...)
func SetPhase(phase string) {
	run.mu.Lock()
	defer run.mu.Unlock()
	run.phase = phase
}

// UpdateComponent records the state of a run component
func UpdateComponent(name string, healthy bool, message string) {
	run.mu.Lock()
	defer run.mu.Unlock()
	run.components[name] = ComponentStatus{Healthy: healthy, Message: message, Updated: time.Now()}
}

func recordSnapshot(s types.Snapshot) {
	run.mu.Lock()
	defer run.mu.Unlock()
	run.counters = s
	run.sampled = true
}

// base copies the shared fields; callers hold the read lock
func (t *tracker) base(status string) RunStatus {
	components := make(map[string]ComponentStatus, len(t.components))
	for name, c := range t.components {
		components[name] = c
	}
	return RunStatus{
		Status:     status,
		Version:    t.version,
		Phase:      t.phase,
		Elapsed:    time.Since(t.started).Round(time.Second).String(),
		Components: components,
	}
}

// Health is unhealthy while any component reports a failure, typically the
// monitor failing polls
func Health() RunStatus {
	run.mu.RLock()
	defer run.mu.RUnlock()

	st := run.base("healthy")
	for name, c := range run.components {
		if !c.Healthy {
			st.Status = "unhealthy"
			st.Message = name + ": " + c.Message
		}
	}
	return st
}

// Readiness is ready once the monitor has taken its first sample and the
// scheduler has registered
func Readiness() RunStatus {
	run.mu.RLock()
	defer run.mu.RUnlock()

	st := run.base("ready")
	switch {
	case !run.sampled:
		st.Status = "not_ready"
		st.Message = "waiting for the first fleet sample"
	case run.components[ComponentScheduler].Updated.IsZero():
		st.Status = "not_ready"
		st.Message = "waiting for the scheduler to start"
	}
	return st
}

// Status returns the health status together with the latest counters
func Status() RunStatus {
	st := Health()

	run.mu.RLock()
	defer run.mu.RUnlock()
	if run.sampled {
		st.Counters = run.counters.Map()
	}
	return st
}

// HealthHandler serves Health, 503 when unhealthy
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := Health()
		code := http.StatusOK
		if st.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, st)
	}
}

// ReadyHandler serves Readiness, 503 until ready
func ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := Readiness()
		code := http.StatusOK
		if st.Status != "ready" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, st)
	}
}

// StatusHandler serves Status, always 200
func StatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, Status())
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
