/*
Package metrics provides Prometheus metrics and health endpoints for a fleetload run.

A rollout can last many hours, so the run optionally exposes its progress for
scraping while it is in flight (--metrics-addr). All metrics are registered
with the default registry at package init; callers update them directly.

# Architecture

	┌─────────────── fleetload process ────────────────┐
	│                                                   │
	│  monitor ──ObserveSnapshot──► fleetload_counter   │
	│     │                                             │
	│     └── polls/failures/duration                   │
	│                                                   │
	│  scheduler ──► batches/units released             │
	│  deploy    ──► shard renders (boundary|final)     │
	│  phase     ──► phase duration {phase,outcome}     │
	│  command   ──► command duration / failures        │
	│                                                   │
	│  Server: /metrics /health /ready /status          │
	└───────────────────────────────────────────────────┘

# Metrics Catalog

fleetload_counter{counter}:
  - Type: Gauge
  - Latest value of every progress counter (applied_committed, installing,
    install_completed, policy_compliant, ...)

fleetload_monitor_polls_total, fleetload_monitor_poll_failures_total:
  - Type: Counter
  - Polls attempted, and polls that failed and were skipped

fleetload_monitor_poll_duration_seconds:
  - Type: Histogram

fleetload_batches_released_total, fleetload_units_released_total:
  - Type: Counter

fleetload_shard_renders_total{kind}:
  - Type: Counter
  - kind is "boundary" when a shard was closed mid-batch, "final" for the
    unconditional render at the end of a batch

fleetload_phase_duration_seconds{phase, outcome}:
  - Type: Gauge
  - Set once per phase when it ends (completed, timed_out, skipped, cancelled)

fleetload_command_duration_seconds{command}, fleetload_command_failures_total{command}:
  - Histogram / Counter keyed by the executable name (oc, git)

# Run status

UpdateComponent records the state of the monitor and scheduler and SetPhase
the step the run is in. /ready turns green once the monitor has taken its
first sample and the scheduler has started; /health turns red while any
component reports a failure. /status adds the latest counters.

# Timer

	timer := metrics.NewTimer()
	sample, err := poller.Poll(ctx)
	timer.ObserveDuration(metrics.MonitorPollDuration)
*/
package metrics
