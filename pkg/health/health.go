package health

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/blang/semver"
	"github.com/cuemby/fleetload/pkg/command"
	"github.com/cuemby/fleetload/pkg/log"
)

// CheckType names a hub health check
type CheckType string

const (
	CheckClusterVersion     CheckType = "clusterversion"
	CheckClusterOperators   CheckType = "clusteroperators"
	CheckNodes              CheckType = "nodes"
	CheckMachineConfigPools CheckType = "machineconfigpools"
	CheckEtcdElections      CheckType = "etcd-elections"
)

// AllChecks returns every check in the order they run
func AllChecks() []CheckType {
	return []CheckType{
		CheckClusterVersion,
		CheckClusterOperators,
		CheckNodes,
		CheckMachineConfigPools,
		CheckEtcdElections,
	}
}

// Result represents the outcome of a health check
type Result struct {
	Type      CheckType
	Healthy   bool
	Skipped   bool
	Message   string
	Problems  []string
	CheckedAt time.Time
	Duration  time.Duration
}

// Checker is the interface that all health checkers must implement
type Checker interface {
	// Check performs the health check and returns the result
	Check(ctx context.Context) Result

	// Type returns the type of health check
	Type() CheckType
}

// Options controls a health run
type Options struct {
	// Force keeps running checks after one fails
	Force bool

	// Skip lists checks that are not run
	Skip map[CheckType]bool
}

// Report is the outcome of a health run
type Report struct {
	Version  semver.Version
	Results  []Result
	Aborted  bool
	Started  time.Time
	Duration time.Duration
}

// Failed returns the number of unhealthy checks
func (r *Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		if !res.Healthy && !res.Skipped {
			n++
		}
	}
	return n
}

// Healthy reports whether every check that ran passed
func (r *Report) Healthy() bool {
	return r.Failed() == 0
}

// NewCheckers returns every hub checker in run order
func NewCheckers(oc *command.Tool, version semver.Version) []Checker {
	return []Checker{
		NewClusterVersionChecker(oc),
		NewClusterOperatorsChecker(oc),
		NewNodesChecker(oc),
		NewMachineConfigPoolsChecker(oc),
		NewEtcdElectionChecker(oc, version),
	}
}

// Run executes checkers in order. Without Force the run stops at the first
// unhealthy check.
func Run(ctx context.Context, checkers []Checker, opts Options) *Report {
	logger := log.WithComponent("health")
	report := &Report{Started: time.Now()}

	logger.Info().Msg("Checking cluster")
	for _, c := range checkers {
		if opts.Skip[c.Type()] {
			logger.Info().Msgf("Skip checking %s", c.Type())
			report.Results = append(report.Results, Result{Type: c.Type(), Healthy: true, Skipped: true, Message: "skipped"})
			continue
		}

		logger.Info().Msgf("Checking %s", c.Type())
		res := c.Check(ctx)
		report.Results = append(report.Results, res)

		if res.Healthy {
			logger.Info().Msg(res.Message)
			continue
		}
		for _, p := range res.Problems {
			logger.Error().Str("check", string(c.Type())).Msg(p)
		}
		logger.Error().Str("check", string(c.Type())).Msg(res.Message)
		if !opts.Force {
			report.Aborted = true
			break
		}
	}

	report.Duration = time.Since(report.Started)
	if report.Healthy() {
		logger.Info().Msg("Cluster appears healthy")
	} else {
		logger.Warn().Int("failed", report.Failed()).Msg("Cluster failed one or more checks")
	}
	logger.Info().Msgf("Took %.1fs", report.Duration.Seconds())
	return report
}

// HubVersion returns the hub's OpenShift version as reported by "oc version"
func HubVersion(ctx context.Context, oc *command.Tool) (semver.Version, error) {
	res, err := oc.Run(ctx, command.Options{Quiet: true}, "version", "-o", "json")
	if err != nil {
		return semver.Version{}, fmt.Errorf("failed to get hub version: %w", err)
	}

	var out struct {
		OpenshiftVersion string `json:"openshiftVersion"`
	}
	if err := json.Unmarshal([]byte(res.Output), &out); err != nil {
		return semver.Version{}, fmt.Errorf("failed to decode hub version: %w", err)
	}
	if out.OpenshiftVersion == "" {
		return semver.Version{}, fmt.Errorf("hub did not report an OpenShift version")
	}

	v, err := semver.ParseTolerant(out.OpenshiftVersion)
	if err != nil {
		return semver.Version{}, fmt.Errorf("invalid hub version %q: %w", out.OpenshiftVersion, err)
	}
	return v, nil
}

func failed(t CheckType, start time.Time, err error) Result {
	return Result{
		Type:      t,
		Healthy:   false,
		Message:   err.Error(),
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}
