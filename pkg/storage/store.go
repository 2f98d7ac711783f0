package storage

import (
	"time"

	"github.com/cuemby/fleetload/pkg/types"
)

// RunRecord describes one rollout run
type RunRecord struct {
	ID         string    `json:"id"`
	Method     string    `json:"method"`
	Cadence    string    `json:"cadence"`
	ResultsDir string    `json:"results_dir"`
	Units      int       `json:"units"`
	Start      int       `json:"start"`
	End        int       `json:"end"`
	Batch      int       `json:"batch"`
	DryRun     bool      `json:"dry_run"`
	Started    time.Time `json:"started"`
	Finished   time.Time `json:"finished,omitempty"`
	Error      string    `json:"error,omitempty"`

	ReleaseStarted time.Time `json:"release_started,omitempty"`
	ReleaseEnded   time.Time `json:"release_ended,omitempty"`
}

// SampleRecord is one monitor tick
type SampleRecord struct {
	Timestamp      time.Time      `json:"timestamp"`
	ElapsedSeconds int64          `json:"elapsed_seconds"`
	Counters       types.Snapshot `json:"counters"`
}

// BatchRecord is one released window
type BatchRecord struct {
	Step     int       `json:"step"`
	Start    int       `json:"start"`
	End      int       `json:"end"`
	Released time.Time `json:"released"`
	Applied  int64     `json:"applied"`
}

// PhaseRecord is the outcome of one phase wait
type PhaseRecord struct {
	Phase   string         `json:"phase"`
	State   string         `json:"state"`
	Started time.Time      `json:"started"`
	Ended   time.Time      `json:"ended"`
	Final   types.Snapshot `json:"final"`
}

// Duration returns how long the phase lasted
func (p *PhaseRecord) Duration() time.Duration {
	return p.Ended.Sub(p.Started)
}

// Store persists the records of a single run
type Store interface {
	// Run
	SaveRun(run *RunRecord) error
	GetRun() (*RunRecord, error)

	// Samples, in tick order
	AppendSample(sample *SampleRecord) error
	ListSamples() ([]*SampleRecord, error)

	// Batches, in release order
	AppendBatch(batch *BatchRecord) error
	ListBatches() ([]*BatchRecord, error)

	// Phases, in completion order
	AppendPhase(phase *PhaseRecord) error
	ListPhases() ([]*PhaseRecord, error)

	// Utility
	Close() error
}
