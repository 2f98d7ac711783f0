package rollout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/fleetload/pkg/command"
	"github.com/cuemby/fleetload/pkg/config"
	"github.com/cuemby/fleetload/pkg/deploy"
	"github.com/cuemby/fleetload/pkg/events"
	"github.com/cuemby/fleetload/pkg/fleet"
	"github.com/cuemby/fleetload/pkg/git"
	"github.com/cuemby/fleetload/pkg/health"
	"github.com/cuemby/fleetload/pkg/inventory"
	"github.com/cuemby/fleetload/pkg/log"
	"github.com/cuemby/fleetload/pkg/metrics"
	"github.com/cuemby/fleetload/pkg/monitor"
	"github.com/cuemby/fleetload/pkg/phase"
	"github.com/cuemby/fleetload/pkg/report"
	"github.com/cuemby/fleetload/pkg/scheduler"
	"github.com/cuemby/fleetload/pkg/storage"
	"github.com/cuemby/fleetload/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"
)

// ErrUnhealthyHub is returned when the pre-flight health checks fail
var ErrUnhealthyHub = errors.New("hub failed pre-flight health checks")

// Deps are the run's external collaborators. Zero values select the real ones.
type Deps struct {
	// Runner executes oc and git; defaults to a local executor honoring DryRun
	Runner command.Runner

	// Clock drives every wait; defaults to the real clock
	Clock clock.WithTicker
}

// Result summarizes a finished run
type Result struct {
	RunID   string
	Dir     string
	Release *scheduler.Summary
	Phases  []phase.Outcome
	Final   types.Snapshot
	Stats   *report.Stats
}

// run holds the per-run state shared by the primary task
type run struct {
	cfg      *config.Config
	clock    clock.WithTicker
	windows  []types.Window
	releaser deploy.Releaser
	cadence  scheduler.Cadence
	monitor  *monitor.Monitor
	broker   *events.Broker
	started  time.Time
	logger   zerolog.Logger

	summary *scheduler.Summary
	phases  []phase.Outcome
}

// Run executes one rollout: discover, release every window at the configured
// cadence while the monitor samples the fleet, wait for the phases, then stop
// the monitor and write the report. Validation and discovery errors happen
// before anything is mutated.
func Run(ctx context.Context, cfg *config.Config, deps Deps) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Runner == nil {
		deps.Runner = command.NewExecutor(cfg.DryRun)
	}
	if deps.Clock == nil {
		deps.Clock = clock.RealClock{}
	}
	logger := log.WithComponent("rollout")

	inv, err := inventory.Discover(inventory.Options{
		Root:      cfg.UnitsDir,
		ArgoCDDir: cfg.ArgoCDDir,
		Method:    cfg.Method,
		Capacity:  cfg.UnitsPerApp,
		Prefix:    cfg.UnitPrefix,
	})
	if err != nil {
		return nil, err
	}

	windows := scheduler.Plan(len(inv.Units), cfg.Start, cfg.End, cfg.Batch)
	if len(windows) == 0 {
		return nil, fmt.Errorf("no units selected: start index %d with %d units available", cfg.Start, len(inv.Units))
	}

	oc, err := command.NewTool(cfg.OCCommand, deps.Runner)
	if err != nil {
		return nil, err
	}

	if cfg.PreflightHealth {
		if err := preflight(ctx, cfg, oc); err != nil {
			return nil, err
		}
	}

	started := deps.Clock.Now()
	runID := uuid.NewString()
	dir, err := report.CreateDir(cfg.ResultsDir, cfg.ResultsSuffix, started)
	if err != nil {
		return nil, err
	}
	detachLog, err := log.AttachRunFile(dir)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = detachLog()
	}()
	logger = log.WithRunID(runID)
	logger.Info().Msgf("Results data captured in: %s", dir)

	store, err := storage.NewBoltStore(dir)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	record := &storage.RunRecord{
		ID:         runID,
		Method:     string(cfg.Method),
		Cadence:    string(cfg.Cadence),
		ResultsDir: dir,
		Units:      len(inv.Units),
		Start:      cfg.Start,
		End:        cfg.EffectiveEnd(len(inv.Units)),
		Batch:      cfg.Batch,
		DryRun:     cfg.DryRun,
		Started:    started,
	}
	if err := store.SaveRun(record); err != nil {
		return nil, fmt.Errorf("failed to save run: %w", err)
	}

	sink, err := report.NewCSVSink(dir)
	if err != nil {
		return nil, err
	}
	defer sink.Close()
	logger.Info().Msgf("Monitoring data captured to: %s", report.MonitorDataFile)

	broker := events.NewBroker()
	broker.Start()
	recorder := storage.NewRecorder(store, broker)
	recorder.Start()
	stopEvents := func() {
		broker.Stop()
		recorder.Stop()
	}

	if cfg.MetricsAddr != "" {
		srv := metrics.NewServer(cfg.MetricsAddr)
		errCh := srv.Start()
		go func() {
			for err := range errCh {
				logger.Error().Err(err).Str("addr", cfg.MetricsAddr).Msg("Metrics server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Stop(shutdownCtx)
		}()
	}

	broker.Publish(&events.Event{
		Type:     events.EventRunStarted,
		Message:  fmt.Sprintf("Run %s started", runID),
		Metadata: map[string]string{events.MetaRunID: runID},
	})

	talmMinor, err := fleet.DetectTALMMinor(ctx, oc, cfg.TALMVersion)
	if err != nil {
		stopEvents()
		return nil, err
	}

	var repo *git.Repo
	if cfg.Method == types.MethodZTP {
		repo = git.NewRepo(cfg.ArgoCDDir, deps.Runner).WithRetries(cfg.CommandRetries)
		if err := inv.SeedMembers(cfg.Start); err != nil {
			stopEvents()
			return nil, err
		}
	}
	releaser, err := deploy.NewReleaser(inv, repo, oc, deploy.Options{
		ClientTemplates: cfg.ZTPClientTemplates,
		DryRun:          cfg.DryRun,
	})
	if err != nil {
		stopEvents()
		return nil, err
	}

	mon := monitor.New(fleet.NewCollector(oc, talmMinor), monitor.Options{
		Interval: cfg.MonitorInterval,
		Clock:    deps.Clock,
		Sink:     sink,
		Broker:   broker,
	})

	r := &run{
		cfg:      cfg,
		clock:    deps.Clock,
		windows:  windows,
		releaser: releaser,
		cadence:  newCadence(cfg, deps.Clock, mon, started),
		monitor:  mon,
		broker:   broker,
		started:  started,
		logger:   logger,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return mon.Run(gctx)
	})
	select {
	case <-mon.Running():
	case <-gctx.Done():
	}
	g.Go(func() error {
		defer func() {
			logger.Info().Msgf("Stopping monitor, may take up to %s", cfg.MonitorInterval)
			mon.Stop()
		}()
		return r.primary(gctx)
	})
	runErr := g.Wait()
	metrics.SetPhase("finished")

	final := mon.Snapshot()
	finished := deps.Clock.Now()
	record.Finished = finished
	if r.summary != nil {
		record.ReleaseStarted = r.summary.Started
		record.ReleaseEnded = r.summary.Ended
	}
	if runErr != nil {
		record.Error = runErr.Error()
	}

	counters := final
	broker.Publish(&events.Event{
		Type:     events.EventRunFinished,
		Message:  fmt.Sprintf("Run %s finished", runID),
		Metadata: map[string]string{events.MetaRunID: runID},
		Counters: &counters,
	})
	stopEvents()

	result := &Result{RunID: runID, Dir: dir, Release: r.summary, Phases: r.phases, Final: final}
	if err := r.writeReport(store, record, result); err != nil {
		if runErr == nil {
			return result, err
		}
		logger.Error().Err(err).Msg("Failed to write report")
	}

	log.PhaseBreak()
	logger.Info().Dur("elapsed", finished.Sub(started)).Msgf("Run finished, results in %s", dir)
	monitor.LogSnapshot(logger, final, finished.Sub(started))
	return result, runErr
}

func (r *run) writeReport(store storage.Store, record *storage.RunRecord, result *Result) error {
	if err := store.SaveRun(record); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	stats, err := report.Load(store)
	if err != nil {
		return fmt.Errorf("failed to load run stats: %w", err)
	}
	result.Stats = stats
	return report.WriteStats(record.ResultsDir, stats)
}

// primary is the sequential rollout task: start delay, releases, phase
// waits, end delay
func (r *run) primary(ctx context.Context) error {
	if err := r.delay(ctx, "start", r.cfg.StartDelay); err != nil {
		return err
	}

	sched := scheduler.NewScheduler(r.releaser, r.cadence, r.monitor, scheduler.Options{
		Clock:  r.clock,
		Broker: r.broker,
	})
	summary, err := sched.Run(ctx, r.windows)
	r.summary = summary
	if err != nil {
		return err
	}

	waiter := phase.NewWaiter(r.monitor, phase.Options{
		Clock:      r.clock,
		Broker:     r.broker,
		RunStarted: r.started,
	})

	if r.cfg.SkipWaitInstall {
		r.phases = append(r.phases, waiter.Skip(phase.InstallWait))
	} else if err := r.wait(ctx, waiter, phase.InstallWait.WithTimeout(r.cfg.WaitInstallMax)); err != nil {
		return err
	}

	if r.cfg.WaitPolicy {
		if err := r.wait(ctx, waiter, phase.PolicyWait.WithTimeout(r.cfg.WaitPolicyMax)); err != nil {
			return err
		}
	} else {
		r.phases = append(r.phases, waiter.Skip(phase.PolicyWait))
	}

	return r.delay(ctx, "end", r.cfg.EndDelay)
}

func (r *run) wait(ctx context.Context, waiter *phase.Waiter, spec phase.Spec) error {
	if r.cfg.DryRun {
		// Nothing was really released, so nothing will ever start
		r.monitor.ResetApplied()
	}
	out, err := waiter.Wait(ctx, spec)
	r.phases = append(r.phases, out)
	return err
}

func (r *run) delay(ctx context.Context, name string, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	log.PhaseBreak()
	r.logger.Info().Msgf("Sleeping %ds for %s delay", int64(d/time.Second), name)
	metrics.SetPhase(name + "-delay")

	timer := r.clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C():
		return nil
	}
}

func newCadence(cfg *config.Config, clk clock.Clock, mon *monitor.Monitor, started time.Time) scheduler.Cadence {
	if cfg.Cadence == config.CadenceConcurrent {
		return &scheduler.ConcurrencyCadence{Target: cfg.Concurrency, Clock: clk, Counters: mon}
	}
	return &scheduler.IntervalCadence{Interval: cfg.Interval, Clock: clk, Counters: mon, RunStarted: started}
}

// preflight runs every hub health check and fails on any unhealthy result.
// Dry runs skip it since the dry executor returns no hub state.
func preflight(ctx context.Context, cfg *config.Config, oc *command.Tool) error {
	logger := log.WithComponent("rollout")
	if cfg.DryRun {
		logger.Info().Msg("Dry run, skipping pre-flight health checks")
		return nil
	}

	version, err := health.HubVersion(ctx, oc)
	if err != nil {
		return err
	}
	logger.Info().Msgf("oc version reports hub is %s", version)

	rep := health.Run(ctx, health.NewCheckers(oc, version), health.Options{})
	if !rep.Healthy() {
		return fmt.Errorf("%w: %d check(s) failed", ErrUnhealthyHub, rep.Failed())
	}
	return nil
}
