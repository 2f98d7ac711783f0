package monitor

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/fleetload/pkg/events"
	"github.com/cuemby/fleetload/pkg/log"
	"github.com/cuemby/fleetload/pkg/metrics"
	"github.com/cuemby/fleetload/pkg/types"
	"github.com/rs/zerolog"
	"k8s.io/utils/clock"
)

// DefaultInterval is the poll cadence when none is configured
const DefaultInterval = 60 * time.Second

// Poller samples fleet state
type Poller interface {
	Poll(ctx context.Context) (types.Sample, error)
}

// Sink receives one row per successful tick
type Sink interface {
	Append(elapsed time.Duration, snap types.Snapshot) error
}

// Options configures a Monitor
type Options struct {
	Interval time.Duration
	Clock    clock.WithTicker
	Sink     Sink
	Broker   *events.Broker
}

// Monitor polls fleet state on a fixed cadence and keeps the progress counters
type Monitor struct {
	poller   Poller
	interval time.Duration
	clock    clock.WithTicker
	sink     Sink
	broker   *events.Broker
	logger   zerolog.Logger

	counters Counters
	started  time.Time
	polls    int
	failures atomic.Int64

	runOnce   sync.Once
	stopOnce  sync.Once
	runningCh chan struct{}
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// New creates a monitor. The first poll happens as soon as Run is called.
func New(poller Poller, opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	return &Monitor{
		poller:    poller,
		interval:  opts.Interval,
		clock:     opts.Clock,
		sink:      opts.Sink,
		broker:    opts.Broker,
		logger:    log.WithComponent("monitor"),
		runningCh: make(chan struct{}),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Snapshot returns a copy of the current counters
func (m *Monitor) Snapshot() types.Snapshot {
	return m.counters.Snapshot()
}

// RecordApplied adds n released units to applied_committed
func (m *Monitor) RecordApplied(n int) int64 {
	return m.counters.addApplied(int64(n))
}

// ResetApplied zeroes applied_committed. Only used in dry-run before a phase wait.
func (m *Monitor) ResetApplied() {
	m.counters.resetApplied()
}

// Failures returns how many polls failed
func (m *Monitor) Failures() int64 {
	return m.failures.Load()
}

// Run polls until Stop is called or ctx is cancelled. After Stop it performs
// one final poll and write before returning. Run may only be called once.
func (m *Monitor) Run(ctx context.Context) error {
	ran := false
	m.runOnce.Do(func() { ran = true })
	if !ran {
		return fmt.Errorf("monitor already running")
	}
	defer close(m.doneCh)
	close(m.runningCh)

	m.started = m.clock.Now()
	m.logger.Info().Dur("interval", m.interval).Msg("Starting monitor")
	metrics.UpdateComponent(metrics.ComponentMonitor, true, "running")

	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()

	m.tick(ctx)
	for {
		select {
		case <-ticker.C():
			m.tick(ctx)
		case <-m.stopCh:
			m.logger.Info().Msg("Monitor stopping, final sample")
			m.tick(ctx)
			metrics.UpdateComponent(metrics.ComponentMonitor, true, "stopped")
			return nil
		case <-ctx.Done():
			m.logger.Info().Msg("Monitor cancelled")
			metrics.UpdateComponent(metrics.ComponentMonitor, false, "cancelled")
			return nil
		}
	}
}

// Running is closed once Run has started. A Stop issued after that always
// gets the final sample.
func (m *Monitor) Running() <-chan struct{} {
	return m.runningCh
}

// Start runs the monitor in the background and returns once it is running
func (m *Monitor) Start(ctx context.Context) {
	go func() {
		if err := m.Run(ctx); err != nil {
			m.logger.Error().Err(err).Msg("Monitor failed")
		}
	}()
	<-m.runningCh
}

// Stop signals the monitor and waits for a started Run to exit. Counters
// are final once Stop returns. A Run that starts after Stop still takes
// its first and final samples and returns.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})

	select {
	case <-m.runningCh:
		<-m.doneCh
	default:
	}
}

func (m *Monitor) tick(ctx context.Context) {
	m.polls++
	timer := metrics.NewTimer()
	sample, err := m.poller.Poll(ctx)
	timer.ObserveDuration(metrics.MonitorPollDuration)
	metrics.MonitorPollsTotal.Inc()

	if err != nil {
		failures := m.failures.Add(1)
		metrics.MonitorPollFailures.Inc()
		metrics.UpdateComponent(metrics.ComponentMonitor, false, err.Error())
		m.logger.Warn().Err(err).Int64("failures", failures).Msg("Fleet poll failed, keeping previous counters")
		return
	}

	for _, c := range m.counters.apply(sample) {
		m.logger.Warn().
			Str("counter", c.Counter.String()).
			Int64("observed", c.Observed).
			Int64("kept", c.Kept).
			Msg("Terminal counter decreased, keeping previous value")
	}

	snap := m.counters.Snapshot()
	elapsed := m.clock.Since(m.started).Truncate(time.Second)
	metrics.ObserveSnapshot(snap)
	metrics.UpdateComponent(metrics.ComponentMonitor, true, "running")

	if m.sink != nil {
		if err := m.sink.Append(elapsed, snap); err != nil {
			m.logger.Error().Err(err).Msg("Failed to write monitor data")
		}
	}

	if m.broker != nil {
		m.broker.Publish(&events.Event{
			Type:     events.EventSampleRecorded,
			Message:  fmt.Sprintf("Sample %d", m.polls),
			Metadata: map[string]string{events.MetaElapsed: strconv.FormatInt(int64(elapsed/time.Second), 10)},
			Counters: &snap,
		})
	}

	m.logger.Debug().
		Int64("elapsed_seconds", int64(elapsed/time.Second)).
		Interface("counters", snap.Map()).
		Msg("Sampled fleet")
}
