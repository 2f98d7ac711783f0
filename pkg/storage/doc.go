/*
Package storage provides the BoltDB-backed run database.

Every rollout run writes a run.db file into its results directory next to
monitor_data.csv and report.stats. The database keeps the run record plus
every monitor sample, released batch and phase outcome, so the report
subcommand can regenerate the stats file after the fact.

# Bucket Structure

	┌────────────────────────────┐
	│ run      (fixed key "run") │
	│ samples  (sequence)        │
	│ batches  (sequence)        │
	│ phases   (sequence)        │
	└────────────────────────────┘

Append-only buckets are keyed by the bucket sequence encoded big-endian, so a
cursor walks records in insertion order. Values are JSON.

# Recorder

Recorder subscribes to the event broker and turns sample.recorded,
batch.released and phase.finished events into records. Stop the broker first
so queued events are flushed, then stop the recorder.
*/
package storage
