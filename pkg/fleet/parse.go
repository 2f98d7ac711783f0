package fleet

import (
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// parseList decodes "oc get -o json" output. Empty output, as returned by a
// dry-run executor, decodes to no items.
func parseList(output string) ([]unstructured.Unstructured, error) {
	if strings.TrimSpace(output) == "" {
		return nil, nil
	}
	list := &unstructured.UnstructuredList{}
	if err := list.UnmarshalJSON([]byte(output)); err != nil {
		return nil, fmt.Errorf("failed to decode list: %w", err)
	}
	return list.Items, nil
}

// condition holds the fields of a status condition that the collector reads
type condition struct {
	Status string
	Reason string
}

// findCondition returns the status condition of the given type
func findCondition(obj *unstructured.Unstructured, condType string) (condition, bool) {
	conditions, found, err := unstructured.NestedSlice(obj.Object, "status", "conditions")
	if !found || err != nil {
		return condition{}, false
	}
	for _, raw := range conditions {
		c, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if t, _, _ := unstructured.NestedString(c, "type"); t != condType {
			continue
		}
		status, _, _ := unstructured.NestedString(c, "status")
		reason, _, _ := unstructured.NestedString(c, "reason")
		return condition{Status: status, Reason: reason}, true
	}
	return condition{}, false
}
