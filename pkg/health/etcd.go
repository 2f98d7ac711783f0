package health

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/blang/semver"
	"github.com/cuemby/fleetload/pkg/command"
	"github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

const (
	monitoringNamespace = "openshift-monitoring"
	querierRoute        = "thanos-querier"
	prometheusAccount   = "prometheus-k8s"

	// LeaderChangesQuery counts etcd leader changes over the last hour
	LeaderChangesQuery = "increase(etcd_server_leader_changes_seen_total[1h])"
)

// Hubs from 4.11 on no longer create service account token secrets
var boundTokenVersion = semver.MustParse("4.11.0")

// EtcdElectionChecker queries the hub's thanos-querier for etcd leader
// elections in the last hour
type EtcdElectionChecker struct {
	oc      *command.Tool
	version semver.Version

	// newAPI builds the query client; replaced in tests
	newAPI func(address, token string) (promv1.API, error)
}

// NewEtcdElectionChecker creates a checker for a hub at version
func NewEtcdElectionChecker(oc *command.Tool, version semver.Version) *EtcdElectionChecker {
	return &EtcdElectionChecker{oc: oc, version: version, newAPI: newPrometheusAPI}
}

// Type implements Checker
func (c *EtcdElectionChecker) Type() CheckType {
	return CheckEtcdElections
}

// Check implements Checker
func (c *EtcdElectionChecker) Check(ctx context.Context) Result {
	start := time.Now()

	host, err := c.route(ctx)
	if err != nil {
		return failed(CheckEtcdElections, start, err)
	}
	token, err := c.token(ctx)
	if err != nil {
		return failed(CheckEtcdElections, start, err)
	}

	client, err := c.newAPI("https://"+host, token)
	if err != nil {
		return failed(CheckEtcdElections, start, err)
	}
	value, _, err := client.Query(ctx, LeaderChangesQuery, time.Now())
	if err != nil {
		return failed(CheckEtcdElections, start, fmt.Errorf("failed to query %s: %w", host, err))
	}
	vector, ok := value.(model.Vector)
	if !ok {
		return failed(CheckEtcdElections, start, fmt.Errorf("unexpected query result type %s", value.Type()))
	}

	var problems []string
	for _, sample := range vector {
		if float64(sample.Value) > 0 {
			problems = append(problems, fmt.Sprintf("Pod: %s, Instance: %s, Result: %g",
				sample.Metric["pod"], sample.Metric["instance"], float64(sample.Value)))
		}
	}

	result := Result{
		Type:      CheckEtcdElections,
		Healthy:   len(problems) == 0,
		Message:   "No detected etcd leader elections in the last hour",
		Problems:  problems,
		CheckedAt: start,
		Duration:  time.Since(start),
	}
	if !result.Healthy {
		result.Message = "etcd encountered leader election(s) in the last hour"
	}
	return result
}

func (c *EtcdElectionChecker) route(ctx context.Context) (string, error) {
	res, err := c.oc.Run(ctx, command.Options{Quiet: true},
		"get", "route", querierRoute, "-n", monitoringNamespace, "-o", "jsonpath={.spec.host}")
	if err != nil {
		return "", fmt.Errorf("failed to get %s route: %w", querierRoute, err)
	}
	host := strings.TrimSpace(res.Output)
	if !strings.Contains(host, querierRoute) {
		return "", fmt.Errorf("failed to find route for %s", querierRoute)
	}
	return host, nil
}

func (c *EtcdElectionChecker) token(ctx context.Context) (string, error) {
	if c.version.GTE(boundTokenVersion) {
		res, err := c.oc.Run(ctx, command.Options{Quiet: true},
			"create", "token", prometheusAccount, "-n", monitoringNamespace)
		if err != nil {
			return "", fmt.Errorf("failed to create %s token: %w", prometheusAccount, err)
		}
		return strings.TrimSpace(res.Output), nil
	}
	return c.secretToken(ctx)
}

// secretToken reads the service account token secret used by hubs before 4.11
func (c *EtcdElectionChecker) secretToken(ctx context.Context) (string, error) {
	res, err := c.oc.Run(ctx, command.Options{Quiet: true},
		"get", "serviceaccount", prometheusAccount, "-n", monitoringNamespace, "-o", "json")
	if err != nil {
		return "", fmt.Errorf("failed to get %s service account: %w", prometheusAccount, err)
	}

	var sa struct {
		Secrets []struct {
			Name string `json:"name"`
		} `json:"secrets"`
	}
	if err := json.Unmarshal([]byte(res.Output), &sa); err != nil {
		return "", fmt.Errorf("failed to decode service account: %w", err)
	}

	var secretName string
	for _, s := range sa.Secrets {
		if strings.Contains(s.Name, "token") {
			secretName = s.Name
			break
		}
	}
	if secretName == "" {
		return "", fmt.Errorf("unable to identify %s token secret", prometheusAccount)
	}

	res, err = c.oc.Run(ctx, command.Options{Quiet: true},
		"get", "secret", secretName, "-n", monitoringNamespace, "-o", "json")
	if err != nil {
		return "", fmt.Errorf("failed to get secret %s: %w", secretName, err)
	}

	var secret struct {
		Data map[string]string `json:"data"`
	}
	if err := json.Unmarshal([]byte(res.Output), &secret); err != nil {
		return "", fmt.Errorf("failed to decode secret %s: %w", secretName, err)
	}
	token, err := base64.StdEncoding.DecodeString(secret.Data["token"])
	if err != nil {
		return "", fmt.Errorf("failed to decode token in %s: %w", secretName, err)
	}
	if len(token) == 0 {
		return "", fmt.Errorf("secret %s holds an empty token", secretName)
	}
	return string(token), nil
}

func newPrometheusAPI(address, token string) (promv1.API, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	// Hub ingress certificates are usually self-signed
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}

	client, err := api.NewClient(api.Config{
		Address:      address,
		RoundTripper: &bearerRoundTripper{token: token, next: transport},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create query client: %w", err)
	}
	return promv1.NewAPI(client), nil
}

type bearerRoundTripper struct {
	token string
	next  http.RoundTripper
}

func (b *bearerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+b.token)
	return b.next.RoundTrip(req)
}
