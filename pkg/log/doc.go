/*
Package log provides structured logging for fleetload using zerolog.

The package wraps a single global zerolog.Logger with helpers that attach the
context a rollout operator filters on: the component emitting the line, the
run ID, and the unit, shard or phase involved. Timestamps are always UTC so
that monitor samples, release log lines and hub events line up.

# Configuration

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: false,
		Output:     os.Stdout,
	})

Level filters messages below the threshold (debug, info, warn, error).
JSONOutput switches from the human console writer to one JSON object per line,
which is what you want when the rollout log is shipped somewhere.

# Context Loggers

	schedLog := log.WithComponent("scheduler")
	schedLog.Info().Int("step", 3).Int("size", 100).Msg("Releasing batch")

	shardLog := log.WithShard("/argocd/cluster/ztp-00002")
	shardLog.Debug().Strs("members", members).Msg("Rendering kustomization")

	phaseLog := log.WithPhase("install-wait")
	phaseLog.Warn().Dur("timeout", budget).Msg("Phase exceeded timeout")

# Run Log

AttachRunFile tees the log, as JSON lines, into fleetload.log inside a run's
results directory until the returned detach func is called. Loggers created
before the attach keep writing to the console only.

PhaseBreak prints a visual separator between the major stages of a run
(discovery, release, each wait phase, report).
*/
package log
