package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cuemby/fleetload/pkg/deploy"
	"github.com/cuemby/fleetload/pkg/events"
	"github.com/cuemby/fleetload/pkg/log"
	"github.com/cuemby/fleetload/pkg/metrics"
	"github.com/cuemby/fleetload/pkg/types"
	"github.com/rs/zerolog"
	"k8s.io/utils/clock"
)

// State is the scheduler lifecycle state
type State int

const (
	Idle State = iota
	Releasing
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Releasing:
		return "Releasing"
	case Done:
		return "Done"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// AppliedRecorder counts released units. The progress monitor implements it.
type AppliedRecorder interface {
	RecordApplied(n int) int64
	Snapshot() types.Snapshot
}

// Plan splits [start, end) into windows of batch units. An end of 0, or one
// past total, means total.
func Plan(total, start, end, batch int) []types.Window {
	if batch < 1 || start < 0 {
		return nil
	}
	if end <= 0 || end > total {
		end = total
	}

	var windows []types.Window
	for step, s := 1, start; s < end; step, s = step+1, s+batch {
		e := s + batch
		if e > end {
			e = end
		}
		windows = append(windows, types.Window{Step: step, Start: s, End: e})
	}
	return windows
}

// Options configures a Scheduler
type Options struct {
	Clock  clock.PassiveClock
	Broker *events.Broker
}

// Summary describes a finished release pass
type Summary struct {
	Steps    int
	Released int
	Started  time.Time
	Ended    time.Time
	Results  []*deploy.BatchResult
}

// Scheduler releases windows in order, waiting on the cadence between them
type Scheduler struct {
	releaser deploy.Releaser
	cadence  Cadence
	applied  AppliedRecorder
	clock    clock.PassiveClock
	broker   *events.Broker
	logger   zerolog.Logger

	mu    sync.RWMutex
	state State
}

// NewScheduler creates a scheduler in the Idle state
func NewScheduler(releaser deploy.Releaser, cadence Cadence, applied AppliedRecorder, opts Options) *Scheduler {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	return &Scheduler{
		releaser: releaser,
		cadence:  cadence,
		applied:  applied,
		clock:    opts.Clock,
		broker:   opts.Broker,
		logger:   log.WithComponent("scheduler"),
	}
}

// State returns the current lifecycle state
func (s *Scheduler) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Scheduler) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// Run releases every window. The cadence waits between windows but not after
// the last one. A release failure aborts the pass and names the window.
func (s *Scheduler) Run(ctx context.Context, windows []types.Window) (*Summary, error) {
	if s.State() != Idle {
		return nil, fmt.Errorf("scheduler is %s", s.State())
	}
	s.setState(Releasing)
	defer s.setState(Done)
	metrics.UpdateComponent(metrics.ComponentScheduler, true, "releasing")
	metrics.SetPhase("release")

	summary := &Summary{Started: s.clock.Now()}
	log.PhaseBreak()
	s.logger.Info().Msgf("Starting %s based deployment rate - %d", s.cadence.Name(), summary.Started.UnixMilli())
	log.PhaseBreak()

	for i, w := range windows {
		stepStarted := s.clock.Now()
		s.logger.Info().Msgf("Deploying %s %d with %d unit(s) - %d", s.cadence.Name(), w.Step, w.Size(), stepStarted.UnixMilli())

		res, err := s.releaser.Release(ctx, w)
		if err != nil {
			metrics.UpdateComponent(metrics.ComponentScheduler, false, err.Error())
			return summary, fmt.Errorf("release of %s failed: %w", w, err)
		}

		applied := s.applied.RecordApplied(w.Size())
		metrics.BatchesReleased.Inc()
		metrics.UnitsReleased.Add(float64(w.Size()))
		summary.Steps++
		summary.Released += w.Size()
		summary.Results = append(summary.Results, res)
		s.publish(w, applied)

		if i == len(windows)-1 {
			break
		}
		if err := s.cadence.Wait(ctx, stepStarted); err != nil {
			return summary, err
		}
	}

	summary.Ended = s.clock.Now()
	log.PhaseBreak()
	s.logger.Info().Int("units", summary.Released).Msgf("Finished deploying units - %d", summary.Ended.UnixMilli())
	metrics.UpdateComponent(metrics.ComponentScheduler, true, "done")
	return summary, nil
}

func (s *Scheduler) publish(w types.Window, applied int64) {
	if s.broker == nil {
		return
	}
	snap := s.applied.Snapshot()
	snap[types.CounterAppliedCommitted] = applied
	s.broker.Publish(&events.Event{
		Type:    events.EventBatchReleased,
		Message: fmt.Sprintf("Released %s", w),
		Metadata: map[string]string{
			events.MetaStep:  strconv.Itoa(w.Step),
			events.MetaStart: strconv.Itoa(w.Start),
			events.MetaEnd:   strconv.Itoa(w.End),
		},
		Counters: &snap,
	})
}
