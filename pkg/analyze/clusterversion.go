package analyze

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/cuemby/fleetload/pkg/command"
	"github.com/cuemby/fleetload/pkg/log"
	"golang.org/x/sync/errgroup"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

const (
	stateCompleted = "Completed"
	statePartial   = "Partial"

	// DefaultConcurrency bounds the parallel per-unit history queries
	DefaultConcurrency = 10
)

// DuplicatePolicy decides how conflicting history entries for the same unit
// and version are counted
type DuplicatePolicy string

const (
	// CompletedWins drops any other state once a unit has a Completed entry
	// for a version, and removes an earlier Partial entry
	CompletedWins DuplicatePolicy = "completed-wins"

	// KeepAll counts every distinct state a unit reported
	KeepAll DuplicatePolicy = "keep-all"
)

// ParseDuplicatePolicy validates a policy name
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch DuplicatePolicy(s) {
	case CompletedWins, KeepAll:
		return DuplicatePolicy(s), nil
	}
	return "", fmt.Errorf("unknown duplicate policy %q (want %s or %s)", s, CompletedWins, KeepAll)
}

// HistoryEntry is one clusterversion history record
type HistoryEntry struct {
	Version   string
	State     string
	Started   time.Time
	Completed time.Time
}

// Duration returns the upgrade duration of a completed entry
func (h HistoryEntry) Duration() (time.Duration, bool) {
	if h.State != stateCompleted || h.Started.IsZero() || h.Completed.IsZero() {
		return 0, false
	}
	return h.Completed.Sub(h.Started), true
}

// UnitHistory is the clusterversion history of one unit. Err is set when the
// unit could not be reached.
type UnitHistory struct {
	Unit    string
	Entries []HistoryEntry
	Err     error
}

// Options configures a clusterversion analysis
type Options struct {
	// ManifestsDir holds <unit>/kubeconfig for every unit
	ManifestsDir string
	Policy       DuplicatePolicy
	Concurrency  int
}

// Collect lists units with a completed install on the hub and reads the
// clusterversion history of each one through its own kubeconfig
func Collect(ctx context.Context, oc *command.Tool, opts Options) ([]UnitHistory, error) {
	logger := log.WithComponent("analyze")

	res, err := oc.Run(ctx, command.Options{Retries: 3, Quiet: true}, "get", "agentclusterinstalls", "-A", "-o", "json")
	if err != nil {
		return nil, fmt.Errorf("failed to list agentclusterinstalls: %w", err)
	}
	units, err := installedUnits(res.Output)
	if err != nil {
		return nil, err
	}
	logger.Info().Msgf("Number of clusterversions to examine: %d", len(units))

	limit := opts.Concurrency
	if limit < 1 {
		limit = DefaultConcurrency
	}

	histories := make([]UnitHistory, len(units))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, unit := range units {
		g.Go(func() error {
			histories[i] = fetchHistory(gctx, oc, opts.ManifestsDir, unit)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return histories, nil
}

// installedUnits returns the names of installs whose Completed condition is
// True with reason InstallationCompleted
func installedUnits(output string) ([]string, error) {
	if strings.TrimSpace(output) == "" {
		return nil, nil
	}
	list := &unstructured.UnstructuredList{}
	if err := list.UnmarshalJSON([]byte(output)); err != nil {
		return nil, fmt.Errorf("failed to decode agentclusterinstalls: %w", err)
	}

	var units []string
	for i := range list.Items {
		conditions, _, _ := unstructured.NestedSlice(list.Items[i].Object, "status", "conditions")
		for _, raw := range conditions {
			c, ok := raw.(map[string]interface{})
			if !ok || c["type"] != "Completed" {
				continue
			}
			if c["status"] == "True" && c["reason"] == "InstallationCompleted" {
				units = append(units, list.Items[i].GetName())
			}
			break
		}
	}
	return units, nil
}

func fetchHistory(ctx context.Context, oc *command.Tool, manifestsDir, unit string) UnitHistory {
	kubeconfig := filepath.Join(manifestsDir, unit, "kubeconfig")
	res, err := oc.Run(ctx, command.Options{Retries: 2, Quiet: true},
		"--kubeconfig", kubeconfig, "get", "clusterversion", "version", "-o", "json")
	if err != nil {
		logger := log.WithUnit(unit)
		logger.Error().Err(err).Msg("Failed to get clusterversion")
		return UnitHistory{Unit: unit, Err: err}
	}

	entries, err := parseHistory(res.Output)
	if err != nil {
		return UnitHistory{Unit: unit, Err: err}
	}
	return UnitHistory{Unit: unit, Entries: entries}
}

func parseHistory(output string) ([]HistoryEntry, error) {
	obj := &unstructured.Unstructured{}
	if err := obj.UnmarshalJSON([]byte(output)); err != nil {
		return nil, fmt.Errorf("failed to decode clusterversion: %w", err)
	}
	history, _, err := unstructured.NestedSlice(obj.Object, "status", "history")
	if err != nil {
		return nil, fmt.Errorf("invalid clusterversion history: %w", err)
	}

	entries := make([]HistoryEntry, 0, len(history))
	for _, raw := range history {
		h, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		entry := HistoryEntry{}
		entry.Version, _, _ = unstructured.NestedString(h, "version")
		entry.State, _, _ = unstructured.NestedString(h, "state")
		entry.Started = parseTime(h, "startedTime")
		entry.Completed = parseTime(h, "completionTime")
		entries = append(entries, entry)
	}
	return entries, nil
}

func parseTime(obj map[string]interface{}, field string) time.Time {
	raw, _, _ := unstructured.NestedString(obj, field)
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
