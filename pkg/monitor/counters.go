package monitor

import (
	"sync/atomic"

	"github.com/cuemby/fleetload/pkg/types"
)

// Counters holds the live progress counters. Each counter has a single
// writer: applied_committed is written by the release path, every other
// counter by the poll goroutine. Readers take a Snapshot.
type Counters struct {
	values [types.NumCounters]atomic.Int64
}

// Snapshot copies every counter
func (c *Counters) Snapshot() types.Snapshot {
	var s types.Snapshot
	for i := range c.values {
		s[i] = c.values[i].Load()
	}
	return s
}

// Get returns a single counter
func (c *Counters) Get(counter types.Counter) int64 {
	return c.values[counter].Load()
}

func (c *Counters) addApplied(n int64) int64 {
	return c.values[types.CounterAppliedCommitted].Add(n)
}

func (c *Counters) resetApplied() {
	c.values[types.CounterAppliedCommitted].Store(0)
}

// Clamp describes a terminal counter whose observed value went backwards
type Clamp struct {
	Counter  types.Counter
	Observed int64
	Kept     int64
}

// apply stores a polled sample. Terminal counters never decrease; a lower
// observation keeps the previous value and is reported back.
func (c *Counters) apply(sample types.Sample) []Clamp {
	var clamps []Clamp
	for _, counter := range types.AllCounters() {
		if counter == types.CounterAppliedCommitted {
			continue
		}
		observed := sample.Values.Get(counter)
		if observed < 0 {
			observed = 0
		}
		if counter.Terminal() {
			if prev := c.values[counter].Load(); observed < prev {
				clamps = append(clamps, Clamp{Counter: counter, Observed: observed, Kept: prev})
				continue
			}
		}
		c.values[counter].Store(observed)
	}
	return clamps
}
