/*
Package types defines the domain model shared by every fleetload package.

# Units and Shards

A Unit is one deployable site. Units are discovered in lexicographic order and
identified by their stable 0-based Index. A Shard is a GitOps cluster
application directory holding at most Capacity units; a unit lands in shard
ShardIndex(unit.Index, capacity).

	units:   sno00001 sno00002 sno00003 sno00004 sno00005
	index:       0        1        2        3        4
	shard:       0        0        0        1        1     (capacity 3)

# Counters

Counter enumerates the progress counters sampled by the monitor. A Snapshot is
a fixed-size array indexed by Counter, so copying a snapshot is a value copy
and readers never observe a partially written map. Terminal counters
(install failed/completed, policy timed out/compliant) only grow within a run.

# Windows

A Window is the [Start, End) index range released by one scheduler step.
*/
package types
