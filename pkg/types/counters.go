package types

import "fmt"

// Counter names a progress counter maintained by the monitor
type Counter int

const (
	CounterAppliedCommitted Counter = iota
	CounterInitialized
	CounterNotStarted
	CounterBooted
	CounterDiscovered
	CounterInstalling
	CounterInstallFailed
	CounterInstallCompleted
	CounterManaged
	CounterPolicyInitialized
	CounterPolicyNotStarted
	CounterPolicyApplying
	CounterPolicyTimedOut
	CounterPolicyCompliant

	// NumCounters is the size of the counter set
	NumCounters
)

var counterNames = [NumCounters]string{
	"applied_committed",
	"initialized",
	"not_started",
	"booted",
	"discovered",
	"installing",
	"install_failed",
	"install_completed",
	"managed",
	"policy_initialized",
	"policy_not_started",
	"policy_applying",
	"policy_timed_out",
	"policy_compliant",
}

var counterLabels = [NumCounters]string{
	"Applied/Committed",
	"Initialized",
	"Not Started",
	"Booted",
	"Discovered",
	"Installing",
	"Install Failed",
	"Install Completed",
	"Managed",
	"Policy Initialized",
	"Policy Not Started",
	"Policy Applying",
	"Policy Timed Out",
	"Policy Compliant",
}

func (c Counter) String() string {
	if c < 0 || c >= NumCounters {
		return fmt.Sprintf("counter(%d)", int(c))
	}
	return counterNames[c]
}

// Label returns a human readable counter name
func (c Counter) Label() string {
	if c < 0 || c >= NumCounters {
		return c.String()
	}
	return counterLabels[c]
}

// Terminal reports whether the counter tracks a terminal outcome.
// Terminal counters never decrease within a run.
func (c Counter) Terminal() bool {
	switch c {
	case CounterInstallFailed, CounterInstallCompleted, CounterPolicyTimedOut, CounterPolicyCompliant:
		return true
	}
	return false
}

// AllCounters returns every counter in report column order
func AllCounters() []Counter {
	all := make([]Counter, NumCounters)
	for i := range all {
		all[i] = Counter(i)
	}
	return all
}

// ParseCounter looks a counter up by name
func ParseCounter(name string) (Counter, error) {
	for i, n := range counterNames {
		if n == name {
			return Counter(i), nil
		}
	}
	return 0, fmt.Errorf("unknown counter %q", name)
}

// Snapshot is a point-in-time copy of every counter
type Snapshot [NumCounters]int64

// Get returns a counter's value
func (s Snapshot) Get(c Counter) int64 {
	return s[c]
}

// Map returns the snapshot keyed by counter name
func (s Snapshot) Map() map[string]int64 {
	m := make(map[string]int64, NumCounters)
	for i, v := range s {
		m[counterNames[i]] = v
	}
	return m
}

// SnapshotFromMap builds a snapshot from counter names, ignoring unknown names
func SnapshotFromMap(m map[string]int64) Snapshot {
	var s Snapshot
	for name, v := range m {
		if c, err := ParseCounter(name); err == nil {
			s[c] = v
		}
	}
	return s
}

// Sample is one poll of fleet state. The applied counter is not part of a
// sample; it is recorded by the release path.
type Sample struct {
	Values Snapshot
}

// Set stores a counter value in the sample
func (s *Sample) Set(c Counter, v int64) {
	s.Values[c] = v
}

// Inc increments a counter in the sample
func (s *Sample) Inc(c Counter) {
	s.Values[c]++
}

// SnapshotReader exposes a consistent read of the counters
type SnapshotReader interface {
	Snapshot() Snapshot
}
