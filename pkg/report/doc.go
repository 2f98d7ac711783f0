/*
Package report writes the per-run results directory.

A run owns one directory named <UTC yyyymmdd-HHMMSS>-<suffix> below the
results base:

	results/20240101-000000-int-ztp-0/
	├── monitor_data.csv   one row per monitor tick
	├── report.stats       run summary, phase durations, final counters
	└── run.db             bbolt run database

CSVSink is the monitor.Sink writing monitor_data.csv. The stats file is built
from the run database, so `fleetload report` can regenerate it after the fact.
*/
package report
