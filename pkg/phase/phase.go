package phase

import (
	"fmt"
	"time"

	"github.com/cuemby/fleetload/pkg/types"
)

// State is the status of a phase wait
type State int

const (
	Waiting State = iota
	Completed
	TimedOut
	Cancelled
	Skipped
)

func (s State) String() string {
	switch s {
	case Waiting:
		return "Waiting"
	case Completed:
		return "Completed"
	case TimedOut:
		return "TimedOut"
	case Cancelled:
		return "Cancelled"
	case Skipped:
		return "Skipped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Spec describes a phase predicate. The phase completes once at least
// Expected units have started and every started unit reached a terminal state.
type Spec struct {
	Name     string
	Start    types.Counter // S
	Expected types.Counter // E
	Failed   types.Counter // F
	Done     types.Counter // C
	Timeout  time.Duration // 0 waits forever
}

var (
	// InstallWait waits for released units to finish installing
	InstallWait = Spec{
		Name:     "install-wait",
		Start:    types.CounterInitialized,
		Expected: types.CounterAppliedCommitted,
		Failed:   types.CounterInstallFailed,
		Done:     types.CounterInstallCompleted,
	}

	// PolicyWait waits for installed units to finish post-install policy remediation
	PolicyWait = Spec{
		Name:     "policy-wait",
		Start:    types.CounterPolicyInitialized,
		Expected: types.CounterInstallCompleted,
		Failed:   types.CounterPolicyTimedOut,
		Done:     types.CounterPolicyCompliant,
	}
)

// WithTimeout returns a copy of the spec with the given timeout
func (s Spec) WithTimeout(d time.Duration) Spec {
	s.Timeout = d
	return s
}

// Evaluate applies the phase predicate to a snapshot. Completion wins over
// timeout when both hold.
func Evaluate(spec Spec, snap types.Snapshot, elapsed time.Duration) State {
	started := snap.Get(spec.Start)
	terminal := snap.Get(spec.Failed) + snap.Get(spec.Done)

	if started >= snap.Get(spec.Expected) && terminal == started {
		return Completed
	}
	if spec.Timeout > 0 && elapsed > spec.Timeout {
		return TimedOut
	}
	return Waiting
}

// Outcome records how a phase ended
type Outcome struct {
	Phase   string
	State   State
	Started time.Time
	Ended   time.Time
	Final   types.Snapshot
}

// Duration returns the time spent in the phase
func (o Outcome) Duration() time.Duration {
	return o.Ended.Sub(o.Started)
}
