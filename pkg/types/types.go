package types

import (
	"fmt"
	"strings"
)

// Method selects how units are released onto the fleet
type Method string

const (
	// MethodZTP commits siteconfigs into GitOps cluster applications
	MethodZTP Method = "ztp"
	// MethodManifests applies manifest directories directly with the CLI
	MethodManifests Method = "manifests"
)

// ParseMethod validates a method name
func ParseMethod(s string) (Method, error) {
	switch Method(strings.ToLower(s)) {
	case MethodZTP:
		return MethodZTP, nil
	case MethodManifests:
		return MethodManifests, nil
	default:
		return "", fmt.Errorf("unknown release method %q (want ztp or manifests)", s)
	}
}

// Sharded reports whether the method maps units onto shards
func (m Method) Sharded() bool {
	return m == MethodZTP
}

// Unit represents one deployable site
type Unit struct {
	Index int      // Position in the sorted inventory
	Name  string   // Derived from the manifest filename
	Files []string // Required artifact files, validated at discovery
}

// Shard represents a fixed-capacity GitOps cluster application
type Shard struct {
	Index    int
	Location string // Working-copy directory committed as one unit
	Capacity int
	Members  []string // Unit names in assignment order
}

// ShardIndex returns the shard a unit index maps onto
func ShardIndex(unitIndex, capacity int) int {
	return unitIndex / capacity
}

// Window is one batch of units released by a scheduler step
type Window struct {
	Step  int // 1-based
	Start int
	End   int // Exclusive
}

// Size returns the number of units in the window
func (w Window) Size() int {
	return w.End - w.Start
}

func (w Window) String() string {
	return fmt.Sprintf("step %d [%d, %d)", w.Step, w.Start, w.End)
}
