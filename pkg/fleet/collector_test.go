package fleet

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/cuemby/fleetload/pkg/command"
	"github.com/cuemby/fleetload/pkg/command/commandtest"
	"github.com/cuemby/fleetload/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cond struct {
	Type   string `json:"type"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// listJSON builds "oc get -o json" output with one item per entry
func listJSON(t *testing.T, kind string, items []map[string]interface{}) string {
	t.Helper()
	for _, item := range items {
		item["apiVersion"] = "v1"
		item["kind"] = kind
	}
	out, err := json.Marshal(map[string]interface{}{
		"apiVersion": "v1",
		"kind":       "List",
		"items":      items,
	})
	require.NoError(t, err)
	return string(out)
}

func object(name string, status map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"metadata": map[string]interface{}{"name": name},
		"status":   status,
	}
}

func withConditions(name string, conds ...cond) map[string]interface{} {
	list := make([]interface{}, len(conds))
	for i, c := range conds {
		list[i] = map[string]interface{}{"type": c.Type, "status": c.Status, "reason": c.Reason}
	}
	return object(name, map[string]interface{}{"conditions": list})
}

func fleetRunner(t *testing.T, cgus string) *commandtest.Runner {
	aci := listJSON(t, "AgentClusterInstall", []map[string]interface{}{
		withConditions("sno00001", cond{"Completed", "True", "InstallationCompleted"}),
		withConditions("sno00002", cond{"Completed", "False", "InstallationFailed"}),
		withConditions("sno00003", cond{"Completed", "False", "InstallationInProgress"}),
		withConditions("sno00004", cond{"Completed", "False", "InstallationNotStarted"}),
		object("sno00005", map[string]interface{}{}),
	})
	bmh := listJSON(t, "BareMetalHost", []map[string]interface{}{
		object("sno00001", map[string]interface{}{"provisioning": map[string]interface{}{"state": "provisioned"}}),
		object("sno00002", map[string]interface{}{"provisioning": map[string]interface{}{"state": "provisioning"}}),
		object("sno00003", map[string]interface{}{"provisioning": map[string]interface{}{"state": "provisioned"}}),
	})
	agents := listJSON(t, "Agent", []map[string]interface{}{
		object("a1", nil), object("a2", nil), object("a3", nil), object("a4", nil),
	})
	mcs := listJSON(t, "ManagedCluster", []map[string]interface{}{
		withConditions("local-cluster", cond{"ManagedClusterConditionAvailable", "True", ""}),
		withConditions("sno00001", cond{"ManagedClusterConditionAvailable", "True", ""}),
		withConditions("sno00002", cond{"ManagedClusterConditionAvailable", "Unknown", ""}),
	})

	return commandtest.New().
		On("get agentclusterinstalls", aci).
		On("get baremetalhosts", bmh).
		On("get agents", agents).
		On("get managedclusters", mcs).
		On("get clustergroupupgrades", cgus)
}

func tool(t *testing.T, runner command.Runner) *command.Tool {
	oc, err := command.NewTool("oc", runner)
	require.NoError(t, err)
	return oc
}

func TestPollInstallCounters(t *testing.T) {
	runner := fleetRunner(t, "")
	sample, err := NewCollector(tool(t, runner), 12).Poll(context.Background())
	require.NoError(t, err)

	s := sample.Values
	assert.Equal(t, int64(0), s.Get(types.CounterAppliedCommitted))
	assert.Equal(t, int64(5), s.Get(types.CounterInitialized))
	assert.Equal(t, int64(1), s.Get(types.CounterNotStarted))
	assert.Equal(t, int64(1), s.Get(types.CounterInstalling))
	assert.Equal(t, int64(1), s.Get(types.CounterInstallFailed))
	assert.Equal(t, int64(1), s.Get(types.CounterInstallCompleted))
	assert.Equal(t, int64(2), s.Get(types.CounterBooted))
	assert.Equal(t, int64(4), s.Get(types.CounterDiscovered))
	assert.Equal(t, int64(1), s.Get(types.CounterManaged))
	assert.Equal(t, int64(0), s.Get(types.CounterPolicyInitialized))

	assert.Equal(t, 1, runner.Count("get clustergroupupgrades -n ztp-install -o json"))
}

func TestPollPolicyCountersTALM412(t *testing.T) {
	cgus := listJSON(t, "ClusterGroupUpgrade", []map[string]interface{}{
		withConditions("sno00001", cond{"Succeeded", "True", "Completed"}),
		withConditions("sno00002", cond{"Progressing", "False", "TimedOut"}, cond{"Succeeded", "False", "TimedOut"}),
		withConditions("sno00003", cond{"Progressing", "True", "InProgress"}),
		withConditions("sno00004", cond{"Progressing", "False", "NotStarted"}),
	})

	sample, err := NewCollector(tool(t, fleetRunner(t, cgus)), 14).Poll(context.Background())
	require.NoError(t, err)

	s := sample.Values
	assert.Equal(t, int64(4), s.Get(types.CounterPolicyInitialized))
	assert.Equal(t, int64(1), s.Get(types.CounterPolicyCompliant))
	assert.Equal(t, int64(1), s.Get(types.CounterPolicyTimedOut))
	assert.Equal(t, int64(1), s.Get(types.CounterPolicyApplying))
	assert.Equal(t, int64(1), s.Get(types.CounterPolicyNotStarted))
}

func TestPollPolicyCountersLegacyTALM(t *testing.T) {
	cgus := listJSON(t, "ClusterGroupUpgrade", []map[string]interface{}{
		withConditions("sno00001", cond{"Ready", "True", "UpgradeCompleted"}),
		withConditions("sno00002", cond{"Ready", "False", "UpgradeTimedOut"}),
		withConditions("sno00003", cond{"Ready", "False", "UpgradeNotCompleted"}),
		withConditions("sno00004", cond{"Ready", "False", "UpgradeNotStarted"}),
		withConditions("sno00005", cond{"Ready", "False", "UpgradeCannotStart"}),
		object("sno00006", map[string]interface{}{}),
	})

	sample, err := NewCollector(tool(t, fleetRunner(t, cgus)), 11).Poll(context.Background())
	require.NoError(t, err)

	s := sample.Values
	assert.Equal(t, int64(6), s.Get(types.CounterPolicyInitialized))
	assert.Equal(t, int64(1), s.Get(types.CounterPolicyCompliant))
	assert.Equal(t, int64(1), s.Get(types.CounterPolicyTimedOut))
	assert.Equal(t, int64(1), s.Get(types.CounterPolicyApplying))
	assert.Equal(t, int64(3), s.Get(types.CounterPolicyNotStarted))
}

func TestPollDryRunIsZero(t *testing.T) {
	sample, err := NewCollector(tool(t, commandtest.New()), 12).Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.Snapshot{}, sample.Values)
}

func TestPollFailsOnQueryError(t *testing.T) {
	runner := commandtest.New().Fail("get managedclusters", 1)

	_, err := NewCollector(tool(t, runner), 12).Poll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "managedclusters")

	var cmdErr *command.ExternalCommandError
	assert.ErrorAs(t, err, &cmdErr)
}

func TestPollFailsOnGarbage(t *testing.T) {
	runner := commandtest.New().On("get agents", "{not json")
	_, err := NewCollector(tool(t, runner), 12).Poll(context.Background())
	assert.Error(t, err)
}

func TestDetectTALMMinor(t *testing.T) {
	csvs := `{"apiVersion":"v1","kind":"List","items":[
		{"apiVersion":"operators.coreos.com/v1alpha1","kind":"ClusterServiceVersion","metadata":{"name":"packageserver"},"spec":{"version":"0.0.1"}},
		{"apiVersion":"operators.coreos.com/v1alpha1","kind":"ClusterServiceVersion","metadata":{"name":"topology-aware-lifecycle-manager.v4.14.2"},"spec":{"version":"4.14.2"}}
	]}`

	minor, err := DetectTALMMinor(context.Background(), tool(t, commandtest.New().On("get csv", csvs)), "4.12")
	require.NoError(t, err)
	assert.Equal(t, uint64(14), minor)
}

func TestDetectTALMMinorFallback(t *testing.T) {
	// Dry run: no output
	minor, err := DetectTALMMinor(context.Background(), tool(t, commandtest.New()), "4.11")
	require.NoError(t, err)
	assert.Equal(t, uint64(11), minor)

	// Command failure
	minor, err = DetectTALMMinor(context.Background(), tool(t, commandtest.New().Fail("get csv", 1)), "v4.12")
	require.NoError(t, err)
	assert.Equal(t, uint64(12), minor)

	_, err = DetectTALMMinor(context.Background(), tool(t, commandtest.New()), "not-a-version")
	assert.Error(t, err)
}
