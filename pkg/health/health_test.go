package health

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/blang/semver"
	"github.com/cuemby/fleetload/pkg/command"
	"github.com/cuemby/fleetload/pkg/command/commandtest"
	"github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTool(t *testing.T, runner *commandtest.Runner) *command.Tool {
	t.Helper()
	oc, err := command.NewTool("oc --kubeconfig /root/bm/kubeconfig", runner)
	require.NoError(t, err)
	return oc
}

func conditions(kv ...string) map[string]interface{} {
	var conds []interface{}
	for i := 0; i+1 < len(kv); i += 2 {
		conds = append(conds, map[string]interface{}{"type": kv[i], "status": kv[i+1]})
	}
	return map[string]interface{}{"conditions": conds}
}

func object(kind, name string, status map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"apiVersion": "v1",
		"kind":       kind,
		"metadata":   map[string]interface{}{"name": name},
		"status":     status,
	}
}

func toJSON(t *testing.T, v interface{}) string {
	t.Helper()
	out, err := json.Marshal(v)
	require.NoError(t, err)
	return string(out)
}

func list(t *testing.T, items ...map[string]interface{}) string {
	t.Helper()
	return toJSON(t, map[string]interface{}{"apiVersion": "v1", "kind": "List", "items": items})
}

func TestClusterVersionChecker(t *testing.T) {
	tests := []struct {
		name     string
		status   map[string]interface{}
		healthy  bool
		problems []string
	}{
		{
			name:    "available",
			status:  conditions("Available", "True", "Failing", "False", "Progressing", "False"),
			healthy: true,
		},
		{
			name:     "progressing",
			status:   conditions("Available", "True", "Failing", "False", "Progressing", "True"),
			problems: []string{"Clusterversion version is Progressing"},
		},
		{
			name:   "unavailable and failing",
			status: conditions("Available", "False", "Failing", "True", "Progressing", "False"),
			problems: []string{
				"Clusterversion version is not Available",
				"Clusterversion version is Failing",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := commandtest.New().On("get clusterversion version", toJSON(t, object("ClusterVersion", "version", tt.status)))
			res := NewClusterVersionChecker(newTool(t, runner)).Check(context.Background())

			assert.Equal(t, tt.healthy, res.Healthy)
			assert.Equal(t, tt.problems, res.Problems)
			assert.Equal(t, CheckClusterVersion, res.Type)
		})
	}
}

func TestListCheckersReportEveryProblem(t *testing.T) {
	runner := commandtest.New().
		On("get clusteroperators", list(t,
			object("ClusterOperator", "authentication", conditions("Available", "True", "Degraded", "True", "Progressing", "False")),
			object("ClusterOperator", "dns", conditions("Available", "False", "Degraded", "False", "Progressing", "True")),
			object("ClusterOperator", "etcd", conditions("Available", "True", "Degraded", "False", "Progressing", "False")),
		)).
		On("get nodes", list(t,
			object("Node", "master-0", conditions("Ready", "True", "MemoryPressure", "False", "DiskPressure", "False", "PIDPressure", "False")),
			object("Node", "worker-2", conditions("Ready", "True", "MemoryPressure", "False", "DiskPressure", "True", "PIDPressure", "False")),
		)).
		On("get machineconfigpools", list(t,
			object("MachineConfigPool", "master", conditions("Updated", "True", "Updating", "False", "NodeDegraded", "False", "Degraded", "False")),
		))
	oc := newTool(t, runner)

	res := NewClusterOperatorsChecker(oc).Check(context.Background())
	assert.False(t, res.Healthy)
	assert.Equal(t, []string{
		"Clusteroperator authentication is Degraded",
		"Clusteroperator dns is not Available",
		"Clusteroperator dns is Progressing",
	}, res.Problems)
	assert.Equal(t, "3 clusteroperators problem(s)", res.Message)

	res = NewNodesChecker(oc).Check(context.Background())
	assert.Equal(t, []string{"Node worker-2 has DiskPressure"}, res.Problems)

	res = NewMachineConfigPoolsChecker(oc).Check(context.Background())
	assert.True(t, res.Healthy)
	assert.Equal(t, "All machineconfigpools are Updated", res.Message)
}

func TestMissingConditionFailsRequiredStatus(t *testing.T) {
	runner := commandtest.New().On("get nodes", list(t, object("Node", "master-0", map[string]interface{}{})))
	res := NewNodesChecker(newTool(t, runner)).Check(context.Background())
	assert.Equal(t, []string{"Node master-0 is not Ready"}, res.Problems)
}

func TestCheckerQueryFailure(t *testing.T) {
	runner := commandtest.New().Fail("get nodes", 1)
	res := NewNodesChecker(newTool(t, runner)).Check(context.Background())
	assert.False(t, res.Healthy)
	assert.Contains(t, res.Message, "exit code 1")
}

func TestHubVersion(t *testing.T) {
	runner := commandtest.New().On("version -o json", `{"clientVersion":{},"openshiftVersion":"4.14.3"}`)
	v, err := HubVersion(context.Background(), newTool(t, runner))
	require.NoError(t, err)
	assert.Equal(t, semver.MustParse("4.14.3"), v)

	runner = commandtest.New().On("version -o json", `{"clientVersion":{}}`)
	_, err = HubVersion(context.Background(), newTool(t, runner))
	assert.Error(t, err)
}

func queryServer(t *testing.T, body string, gotAuth *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*gotAuth = r.Header.Get("Authorization")
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, LeaderChangesQuery, r.Form.Get("query"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testAPI(srvURL string) func(address, token string) (promv1.API, error) {
	return func(_, token string) (promv1.API, error) {
		client, err := api.NewClient(api.Config{
			Address:      srvURL,
			RoundTripper: &bearerRoundTripper{token: token, next: http.DefaultTransport},
		})
		if err != nil {
			return nil, err
		}
		return promv1.NewAPI(client), nil
	}
}

const electionsVector = `{"status":"success","data":{"resultType":"vector","result":[
	{"metric":{"pod":"etcd-master-0","instance":"10.0.0.1:9979"},"value":[1700000000,"0"]},
	{"metric":{"pod":"etcd-master-1","instance":"10.0.0.2:9979"},"value":[1700000000,"2"]}
]}}`

func TestEtcdElectionCheckerBoundToken(t *testing.T) {
	var auth string
	srv := queryServer(t, electionsVector, &auth)

	runner := commandtest.New().
		On("get route thanos-querier", "thanos-querier-openshift-monitoring.apps.hub.example.com").
		On("create token prometheus-k8s", "tok-123\n")
	c := NewEtcdElectionChecker(newTool(t, runner), semver.MustParse("4.14.0"))
	c.newAPI = testAPI(srv.URL)

	res := c.Check(context.Background())
	assert.False(t, res.Healthy)
	assert.Equal(t, []string{"Pod: etcd-master-1, Instance: 10.0.0.2:9979, Result: 2"}, res.Problems)
	assert.Equal(t, "Bearer tok-123", auth)
	assert.Zero(t, runner.Count("get serviceaccount"))
}

func TestEtcdElectionCheckerSecretToken(t *testing.T) {
	var auth string
	srv := queryServer(t, `{"status":"success","data":{"resultType":"vector","result":[]}}`, &auth)

	runner := commandtest.New().
		On("get route thanos-querier", "thanos-querier-openshift-monitoring.apps.hub.example.com").
		On("get serviceaccount prometheus-k8s", `{"secrets":[{"name":"prometheus-k8s-dockercfg-x"},{"name":"prometheus-k8s-token-abcde"}]}`).
		On("get secret prometheus-k8s-token-abcde", toJSON(t, map[string]interface{}{
			"data": map[string]string{"token": base64.StdEncoding.EncodeToString([]byte("legacy-token"))},
		}))
	c := NewEtcdElectionChecker(newTool(t, runner), semver.MustParse("4.10.8"))
	c.newAPI = testAPI(srv.URL)

	res := c.Check(context.Background())
	assert.True(t, res.Healthy, res.Message)
	assert.Equal(t, "Bearer legacy-token", auth)
	assert.Zero(t, runner.Count("create token"))
}

func TestEtcdElectionCheckerMissingRoute(t *testing.T) {
	runner := commandtest.New().On("get route thanos-querier", "")
	c := NewEtcdElectionChecker(newTool(t, runner), semver.MustParse("4.14.0"))

	res := c.Check(context.Background())
	assert.False(t, res.Healthy)
	assert.Contains(t, res.Message, "failed to find route")
}

type staticChecker struct {
	typ     CheckType
	healthy bool
	calls   int
}

func (s *staticChecker) Type() CheckType { return s.typ }

func (s *staticChecker) Check(context.Context) Result {
	s.calls++
	return Result{Type: s.typ, Healthy: s.healthy, Message: string(s.typ)}
}

func TestRunStopsWithoutForce(t *testing.T) {
	first := &staticChecker{typ: CheckClusterVersion, healthy: false}
	second := &staticChecker{typ: CheckNodes, healthy: true}

	report := Run(context.Background(), []Checker{first, second}, Options{})
	assert.True(t, report.Aborted)
	assert.Equal(t, 1, report.Failed())
	assert.Zero(t, second.calls)
}

func TestRunForceAndSkip(t *testing.T) {
	checkers := []Checker{
		&staticChecker{typ: CheckClusterVersion, healthy: false},
		&staticChecker{typ: CheckNodes, healthy: false},
		&staticChecker{typ: CheckEtcdElections, healthy: false},
	}

	report := Run(context.Background(), checkers, Options{Force: true, Skip: map[CheckType]bool{CheckEtcdElections: true}})
	assert.False(t, report.Aborted)
	assert.Equal(t, 2, report.Failed())
	require.Len(t, report.Results, 3)
	assert.True(t, report.Results[2].Skipped)
	assert.Zero(t, checkers[2].(*staticChecker).calls)
}

func TestPrintReport(t *testing.T) {
	report := &Report{
		Version: semver.MustParse("4.14.3"),
		Results: []Result{
			{Type: CheckClusterVersion, Healthy: true, Message: "Clusterversion is Available and not failing"},
			{Type: CheckNodes, Message: "1 nodes problem(s)", Problems: []string{"Node worker-2 has DiskPressure"}},
			{Type: CheckEtcdElections, Healthy: true, Skipped: true, Message: "skipped"},
		},
	}

	var buf bytes.Buffer
	PrintReport(&buf, report, false)
	out := buf.String()

	assert.Contains(t, out, "4.14.3")
	assert.Contains(t, out, "Unhealthy")
	assert.Contains(t, out, "Node worker-2 has DiskPressure")
	assert.Contains(t, out, "Skipped")
	assert.Contains(t, out, "Cluster failed 1 check(s)")
	assert.NotContains(t, out, "\x1b[", "colors disabled")
}
