package scheduler

import (
	"context"
	"time"

	"github.com/cuemby/fleetload/pkg/log"
	"github.com/cuemby/fleetload/pkg/monitor"
	"github.com/cuemby/fleetload/pkg/types"
	"k8s.io/utils/clock"
)

const (
	// DefaultLogEvery is how often a waiting interval cadence reports progress
	DefaultLogEvery = 300 * time.Second

	// DefaultConcurrencyPoll is how often the concurrency cadence re-reads counters
	DefaultConcurrencyPoll = 30 * time.Second
)

// Cadence decides when the next window may be released
type Cadence interface {
	Name() string
	// Wait blocks until the next window may start. stepStarted is when the
	// previous window began releasing.
	Wait(ctx context.Context, stepStarted time.Time) error
}

// IntervalCadence releases a window every Interval, measured from the start
// of the previous window
type IntervalCadence struct {
	Interval   time.Duration
	LogEvery   time.Duration
	Clock      clock.Clock
	Counters   types.SnapshotReader
	RunStarted time.Time
}

// Name implements Cadence
func (c *IntervalCadence) Name() string {
	return "interval"
}

// Wait sleeps until stepStarted + Interval in slices of LogEvery, logging the
// remaining time and counters after each full slice
func (c *IntervalCadence) Wait(ctx context.Context, stepStarted time.Time) error {
	if c.Interval <= 0 {
		return nil
	}
	clk := c.clock()
	logEvery := c.LogEvery
	if logEvery <= 0 {
		logEvery = DefaultLogEvery
	}
	logger := log.WithComponent("scheduler")

	deadline := stepStarted.Add(c.Interval)
	remaining := deadline.Sub(clk.Now())
	logger.Info().Msgf("Sleep for %ds with %ds remaining", seconds(c.Interval), seconds(remaining))

	for remaining > 0 {
		slice := remaining
		if slice > logEvery {
			slice = logEvery
		}

		timer := clk.NewTimer(slice)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C():
		}

		remaining = deadline.Sub(clk.Now())
		if remaining > 0 {
			logger.Info().Msgf("Remaining interval time: %ds", seconds(remaining))
			if c.Counters != nil {
				monitor.LogSnapshot(logger, c.Counters.Snapshot(), clk.Since(c.RunStarted))
			}
		}
	}
	return nil
}

func (c *IntervalCadence) clock() clock.Clock {
	if c.Clock == nil {
		return clock.RealClock{}
	}
	return c.Clock
}

// ConcurrencyCadence holds the next window until fewer than Target units are installing
type ConcurrencyCadence struct {
	Target       int
	PollInterval time.Duration
	Clock        clock.Clock
	Counters     types.SnapshotReader
}

// Name implements Cadence
func (c *ConcurrencyCadence) Name() string {
	return "concurrent"
}

// Wait re-reads the installing counter every PollInterval. The first read
// happens after one interval so the monitor can observe the last release.
func (c *ConcurrencyCadence) Wait(ctx context.Context, _ time.Time) error {
	clk := c.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	poll := c.PollInterval
	if poll <= 0 {
		poll = DefaultConcurrencyPoll
	}
	logger := log.WithComponent("scheduler")

	for {
		timer := clk.NewTimer(poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C():
		}

		installing := c.Counters.Snapshot().Get(types.CounterInstalling)
		if installing < int64(c.Target) {
			logger.Info().Int64("installing", installing).Int("target", c.Target).Msg("Below concurrency target, releasing next batch")
			return nil
		}
		logger.Debug().Int64("installing", installing).Int("target", c.Target).Msg("At concurrency target, waiting")
	}
}

func seconds(d time.Duration) int64 {
	return int64(d.Round(time.Second) / time.Second)
}
