package health

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cuemby/fleetload/pkg/command"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// rule is one status condition expectation. When wantTrue is set the
// condition must be "True", otherwise it must not be.
type rule struct {
	condition string
	wantTrue  bool
	problem   string // %s is the object name
}

// ConditionChecker checks the status conditions of hub resources
type ConditionChecker struct {
	typ     CheckType
	oc      *command.Tool
	args    []string
	single  bool
	rules   []rule
	healthy string
}

// NewClusterVersionChecker checks that the cluster version is Available and
// neither Failing nor Progressing
func NewClusterVersionChecker(oc *command.Tool) *ConditionChecker {
	return &ConditionChecker{
		typ:    CheckClusterVersion,
		oc:     oc,
		args:   []string{"get", "clusterversion", "version", "-o", "json"},
		single: true,
		rules: []rule{
			{"Available", true, "Clusterversion %s is not Available"},
			{"Failing", false, "Clusterversion %s is Failing"},
			{"Progressing", false, "Clusterversion %s is Progressing"},
		},
		healthy: "Clusterversion is Available and not failing",
	}
}

// NewClusterOperatorsChecker checks that every cluster operator is Available
// and neither Degraded nor Progressing
func NewClusterOperatorsChecker(oc *command.Tool) *ConditionChecker {
	return &ConditionChecker{
		typ:  CheckClusterOperators,
		oc:   oc,
		args: []string{"get", "clusteroperators", "-o", "json"},
		rules: []rule{
			{"Available", true, "Clusteroperator %s is not Available"},
			{"Degraded", false, "Clusteroperator %s is Degraded"},
			{"Progressing", false, "Clusteroperator %s is Progressing"},
		},
		healthy: "All clusteroperators are Available",
	}
}

// NewNodesChecker checks that every node is Ready without resource pressure
func NewNodesChecker(oc *command.Tool) *ConditionChecker {
	return &ConditionChecker{
		typ:  CheckNodes,
		oc:   oc,
		args: []string{"get", "nodes", "-o", "json"},
		rules: []rule{
			{"Ready", true, "Node %s is not Ready"},
			{"MemoryPressure", false, "Node %s has MemoryPressure"},
			{"DiskPressure", false, "Node %s has DiskPressure"},
			{"PIDPressure", false, "Node %s has PIDPressure"},
		},
		healthy: "All nodes are Ready",
	}
}

// NewMachineConfigPoolsChecker checks that every pool is Updated and not
// updating or degraded
func NewMachineConfigPoolsChecker(oc *command.Tool) *ConditionChecker {
	return &ConditionChecker{
		typ:  CheckMachineConfigPools,
		oc:   oc,
		args: []string{"get", "machineconfigpools", "-o", "json"},
		rules: []rule{
			{"Updated", true, "MCP %s is not Updated"},
			{"Updating", false, "MCP %s is Updating"},
			{"NodeDegraded", false, "MCP %s is NodeDegraded"},
			{"Degraded", false, "MCP %s is Degraded"},
		},
		healthy: "All machineconfigpools are Updated",
	}
}

// Type implements Checker
func (c *ConditionChecker) Type() CheckType {
	return c.typ
}

// Check implements Checker. Every object is inspected so the result lists all
// problems, not only the first.
func (c *ConditionChecker) Check(ctx context.Context) Result {
	start := time.Now()

	res, err := c.oc.Run(ctx, command.Options{Quiet: true}, c.args...)
	if err != nil {
		return failed(c.typ, start, err)
	}

	objs, err := c.decode(res.Output)
	if err != nil {
		return failed(c.typ, start, err)
	}

	var problems []string
	for i := range objs {
		for _, r := range c.rules {
			status := conditionStatus(&objs[i], r.condition)
			if (status == "True") != r.wantTrue {
				problems = append(problems, fmt.Sprintf(r.problem, objs[i].GetName()))
			}
		}
	}

	result := Result{
		Type:      c.typ,
		Healthy:   len(problems) == 0,
		Message:   c.healthy,
		Problems:  problems,
		CheckedAt: start,
		Duration:  time.Since(start),
	}
	if !result.Healthy {
		result.Message = fmt.Sprintf("%d %s problem(s)", len(problems), c.typ)
	}
	return result
}

func (c *ConditionChecker) decode(output string) ([]unstructured.Unstructured, error) {
	if strings.TrimSpace(output) == "" {
		return nil, nil
	}
	if c.single {
		obj := unstructured.Unstructured{}
		if err := obj.UnmarshalJSON([]byte(output)); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", c.typ, err)
		}
		return []unstructured.Unstructured{obj}, nil
	}

	list := &unstructured.UnstructuredList{}
	if err := list.UnmarshalJSON([]byte(output)); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", c.typ, err)
	}
	return list.Items, nil
}

// conditionStatus returns the status of a condition, or "" when absent
func conditionStatus(obj *unstructured.Unstructured, condType string) string {
	conditions, found, err := unstructured.NestedSlice(obj.Object, "status", "conditions")
	if !found || err != nil {
		return ""
	}
	for _, raw := range conditions {
		c, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if t, _, _ := unstructured.NestedString(c, "type"); t == condType {
			status, _, _ := unstructured.NestedString(c, "status")
			return status
		}
	}
	return ""
}
