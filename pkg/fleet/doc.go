// Package fleet samples hub state for the progress monitor.
//
// Collector implements monitor.Poller with read-only "oc get -o json" queries
// decoded as unstructured lists. The policy counters depend on the
// lifecycle-manager (TALM) minor version, see DetectTALMMinor.
package fleet
