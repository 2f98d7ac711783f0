// Package analyze examines the clusterversion history of every installed
// unit and reports upgrade outcomes and durations per version.
package analyze
