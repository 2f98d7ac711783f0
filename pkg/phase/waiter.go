package phase

import (
	"context"
	"time"

	"github.com/cuemby/fleetload/pkg/events"
	"github.com/cuemby/fleetload/pkg/log"
	"github.com/cuemby/fleetload/pkg/metrics"
	"github.com/cuemby/fleetload/pkg/monitor"
	"github.com/cuemby/fleetload/pkg/types"
	"k8s.io/utils/clock"
)

const (
	// DefaultPollInterval is how often the predicate is evaluated
	DefaultPollInterval = 30 * time.Second

	// DefaultLogEvery logs progress every this many polls
	DefaultLogEvery = 5
)

// Options configures a Waiter
type Options struct {
	Clock        clock.Clock
	PollInterval time.Duration
	LogEvery     int
	Broker       *events.Broker

	// RunStarted is used for the elapsed run time in progress logs
	RunStarted time.Time
}

// Waiter blocks until a phase predicate completes or its timeout elapses
type Waiter struct {
	counters types.SnapshotReader
	opts     Options
}

// NewWaiter creates a waiter reading counters
func NewWaiter(counters types.SnapshotReader, opts Options) *Waiter {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.LogEvery <= 0 {
		opts.LogEvery = DefaultLogEvery
	}
	if opts.RunStarted.IsZero() {
		opts.RunStarted = opts.Clock.Now()
	}
	return &Waiter{counters: counters, opts: opts}
}

// Wait polls the predicate until it completes or times out. A timeout is a
// normal outcome; only cancellation returns an error.
func (w *Waiter) Wait(ctx context.Context, spec Spec) (Outcome, error) {
	logger := log.WithPhase(spec.Name)
	log.PhaseBreak()
	logger.Info().Msgf("Waiting for %s - %d", spec.Name, w.opts.Clock.Now().UnixMilli())
	log.PhaseBreak()

	out := Outcome{Phase: spec.Name, Started: w.opts.Clock.Now()}
	metrics.SetPhase(spec.Name)
	w.publish(events.EventPhaseStarted, out)

	// First progress log after the first poll
	polls := w.opts.LogEvery - 1
	for {
		timer := w.opts.Clock.NewTimer(w.opts.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			out.State = Cancelled
			return w.finish(out), ctx.Err()
		case <-timer.C():
		}

		snap := w.counters.Snapshot()
		elapsed := w.opts.Clock.Since(out.Started)

		switch Evaluate(spec, snap, elapsed) {
		case Completed:
			logger.Info().Msgf("%s completed", spec.Name)
			monitor.LogSnapshot(logger, snap, w.opts.Clock.Since(w.opts.RunStarted))
			out.State = Completed
			return w.finish(out), nil
		case TimedOut:
			logger.Warn().Msgf("%s exceeded timeout: %ds", spec.Name, int64(spec.Timeout/time.Second))
			monitor.LogSnapshot(logger, snap, w.opts.Clock.Since(w.opts.RunStarted))
			out.State = TimedOut
			return w.finish(out), nil
		}

		polls++
		if polls >= w.opts.LogEvery {
			elapsed = elapsed.Round(time.Second)
			logger.Info().Msgf("Waiting for %s", spec.Name)
			logger.Info().Msgf("Elapsed %s time: %ds :: %s / %ds :: %s",
				spec.Name, int64(elapsed/time.Second), elapsed, int64(spec.Timeout/time.Second), spec.Timeout)
			monitor.LogSnapshot(logger, snap, w.opts.Clock.Since(w.opts.RunStarted))
			polls = 0
		}
	}
}

// Skip records a phase that was not waited for
func (w *Waiter) Skip(spec Spec) Outcome {
	now := w.opts.Clock.Now()
	logger := log.WithPhase(spec.Name)
	logger.Info().Msgf("Skipping %s", spec.Name)
	return w.finish(Outcome{Phase: spec.Name, State: Skipped, Started: now})
}

func (w *Waiter) finish(out Outcome) Outcome {
	out.Ended = w.opts.Clock.Now()
	if out.State == Skipped {
		out.Ended = out.Started
	}
	out.Final = w.counters.Snapshot()
	metrics.PhaseDuration.WithLabelValues(out.Phase, out.State.String()).Set(out.Duration().Seconds())
	w.publish(events.EventPhaseFinished, out)
	return out
}

func (w *Waiter) publish(t events.EventType, out Outcome) {
	if w.opts.Broker == nil {
		return
	}
	meta := map[string]string{
		events.MetaPhase:   out.Phase,
		events.MetaStarted: out.Started.Format(time.RFC3339Nano),
	}
	if t == events.EventPhaseFinished {
		meta[events.MetaState] = out.State.String()
		meta[events.MetaEnded] = out.Ended.Format(time.RFC3339Nano)
	}
	snap := out.Final
	w.opts.Broker.Publish(&events.Event{
		Type:     t,
		Message:  out.Phase,
		Metadata: meta,
		Counters: &snap,
	})
}
