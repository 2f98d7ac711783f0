/*
Package health checks that the hub cluster is healthy and stable before a
rollout, and backs the `fleetload health` command.

# Checks

Checks run in a fixed order. Each implements Checker and reads the hub
through the control-plane CLI:

	┌────────────────────┬──────────────────────────────────────────────┐
	│ clusterversion     │ Available, not Failing, not Progressing      │
	│ clusteroperators   │ every operator Available, not Degraded,      │
	│                    │ not Progressing                              │
	│ nodes              │ every node Ready, no Memory/Disk/PID pressure│
	│ machineconfigpools │ every pool Updated, not Updating, not        │
	│                    │ NodeDegraded, not Degraded                   │
	│ etcd-elections     │ no etcd leader change in the last hour       │
	└────────────────────┴──────────────────────────────────────────────┘

The etcd check queries the hub's thanos-querier route with the Prometheus
HTTP API client. Its bearer token comes from `oc create token` on hubs at
4.11 or later and from the service account token secret on older hubs.

# Force and skips

By default Run stops at the first unhealthy check. With Options.Force every
check runs and the report counts the failures. Options.Skip removes checks
from the run; they are reported as skipped.

A condition check always inspects every object, so its Result lists every
problem found, for example:

	Clusteroperator authentication is Degraded
	Node worker-2 has DiskPressure

PrintReport renders the results as a colored table.
*/
package health
