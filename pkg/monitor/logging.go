package monitor

import (
	"time"

	"github.com/cuemby/fleetload/pkg/types"
	"github.com/rs/zerolog"
)

// LogSnapshot writes the counters as one line per counter, prefixed by the
// elapsed run time
func LogSnapshot(logger zerolog.Logger, snap types.Snapshot, elapsed time.Duration) {
	elapsed = elapsed.Round(time.Second)
	logger.Info().Msgf("Elapsed total time: %ds :: %s", int64(elapsed/time.Second), elapsed)
	for _, c := range types.AllCounters() {
		logger.Info().Msgf("%s: %d", c.Label(), snap.Get(c))
	}
}
