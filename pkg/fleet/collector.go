package fleet

import (
	"context"
	"fmt"
	"sync"

	"github.com/cuemby/fleetload/pkg/command"
	"github.com/cuemby/fleetload/pkg/log"
	"github.com/cuemby/fleetload/pkg/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

const (
	localCluster = "local-cluster"

	// ZTPInstallNamespace holds the post-install ClusterGroupUpgrades
	ZTPInstallNamespace = "ztp-install"

	// TALM 4.12 moved CGU progress from the Ready condition to Progressing/Succeeded
	talmConditionsMinor = 12
)

// Collector samples fleet state through read-only "oc get" queries
type Collector struct {
	oc        *command.Tool
	talmMinor uint64
	logger    zerolog.Logger
}

// NewCollector creates a collector. talmMinor selects the policy condition layout.
func NewCollector(oc *command.Tool, talmMinor uint64) *Collector {
	return &Collector{
		oc:        oc,
		talmMinor: talmMinor,
		logger:    log.WithComponent("fleet"),
	}
}

type query struct {
	args  []string
	count func(items []unstructured.Unstructured, s *types.Sample)
}

// Poll runs every query concurrently and merges the counts. Any failed query
// fails the whole poll.
func (c *Collector) Poll(ctx context.Context) (types.Sample, error) {
	queries := []query{
		{args: []string{"get", "agentclusterinstalls", "-A", "-o", "json"}, count: countInstalls},
		{args: []string{"get", "baremetalhosts", "-A", "-o", "json"}, count: countBooted},
		{args: []string{"get", "agents", "-A", "-o", "json"}, count: countDiscovered},
		{args: []string{"get", "managedclusters", "-o", "json"}, count: countManaged},
		{args: []string{"get", "clustergroupupgrades", "-n", ZTPInstallNamespace, "-o", "json"}, count: c.countPolicies},
	}

	var (
		mu     sync.Mutex
		sample types.Sample
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, q := range queries {
		g.Go(func() error {
			res, err := c.oc.Run(gctx, command.Options{Quiet: true}, q.args...)
			if err != nil {
				return fmt.Errorf("oc %s: %w", q.args[1], err)
			}
			items, err := parseList(res.Output)
			if err != nil {
				return fmt.Errorf("oc %s: %w", q.args[1], err)
			}

			var partial types.Sample
			q.count(items, &partial)

			mu.Lock()
			defer mu.Unlock()
			for i, v := range partial.Values {
				sample.Values[i] += v
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return types.Sample{}, err
	}
	c.logger.Debug().
		Int64("initialized", sample.Values.Get(types.CounterInitialized)).
		Int64("policy_initialized", sample.Values.Get(types.CounterPolicyInitialized)).
		Msg("Polled fleet")
	return sample, nil
}

// countInstalls maps the AgentClusterInstall "Completed" condition reason
func countInstalls(items []unstructured.Unstructured, s *types.Sample) {
	for i := range items {
		s.Inc(types.CounterInitialized)
		cond, ok := findCondition(&items[i], "Completed")
		if !ok {
			continue
		}
		switch cond.Reason {
		case "InstallationNotStarted":
			s.Inc(types.CounterNotStarted)
		case "InstallationInProgress":
			s.Inc(types.CounterInstalling)
		case "InstallationFailed":
			s.Inc(types.CounterInstallFailed)
		case "InstallationCompleted":
			s.Inc(types.CounterInstallCompleted)
		}
	}
}

func countBooted(items []unstructured.Unstructured, s *types.Sample) {
	for i := range items {
		state, _, _ := unstructured.NestedString(items[i].Object, "status", "provisioning", "state")
		if state == "provisioned" {
			s.Inc(types.CounterBooted)
		}
	}
}

func countDiscovered(items []unstructured.Unstructured, s *types.Sample) {
	s.Set(types.CounterDiscovered, int64(len(items)))
}

func countManaged(items []unstructured.Unstructured, s *types.Sample) {
	for i := range items {
		if items[i].GetName() == localCluster {
			continue
		}
		if cond, ok := findCondition(&items[i], "ManagedClusterConditionAvailable"); ok && cond.Status == "True" {
			s.Inc(types.CounterManaged)
		}
	}
}

func (c *Collector) countPolicies(items []unstructured.Unstructured, s *types.Sample) {
	for i := range items {
		s.Inc(types.CounterPolicyInitialized)
		if c.talmMinor >= talmConditionsMinor {
			countPolicyConditions(&items[i], s)
		} else {
			countPolicyReady(&items[i], s)
		}
	}
}

// countPolicyConditions reads TALM 4.12+ CGUs
func countPolicyConditions(cgu *unstructured.Unstructured, s *types.Sample) {
	if cond, ok := findCondition(cgu, "Succeeded"); ok {
		switch {
		case cond.Status == "True":
			s.Inc(types.CounterPolicyCompliant)
			return
		case cond.Reason == "TimedOut":
			s.Inc(types.CounterPolicyTimedOut)
			return
		}
	}
	if cond, ok := findCondition(cgu, "Progressing"); ok && cond.Status == "True" && cond.Reason == "InProgress" {
		s.Inc(types.CounterPolicyApplying)
		return
	}
	s.Inc(types.CounterPolicyNotStarted)
}

// countPolicyReady reads pre 4.12 CGUs
func countPolicyReady(cgu *unstructured.Unstructured, s *types.Sample) {
	cond, ok := findCondition(cgu, "Ready")
	if !ok {
		s.Inc(types.CounterPolicyNotStarted)
		return
	}
	switch cond.Reason {
	case "UpgradeCompleted":
		s.Inc(types.CounterPolicyCompliant)
	case "UpgradeTimedOut":
		s.Inc(types.CounterPolicyTimedOut)
	case "UpgradeNotStarted", "UpgradeCannotStart":
		s.Inc(types.CounterPolicyNotStarted)
	default:
		s.Inc(types.CounterPolicyApplying)
	}
}
