/*
Package rollout runs one batch rollout end to end.

A run discovers the units, plans the release windows and creates the results
directory. Two tasks then share the run: the monitor samples fleet state on
its own cadence while the primary task releases every window, waits for the
install and policy phases and sleeps the configured delays. When the primary
task returns the monitor is stopped, the event stream is drained into the run
database and report.stats is written next to monitor_data.csv.

	discover -> plan -> [preflight] -> results dir
	                                    |
	          +-------------------------+------------------------+
	          |                                                  |
	   monitor.Run (ticks)                 start delay -> scheduler.Run
	          |                            -> install-wait -> policy-wait
	          |                            -> end delay
	          +------------- stop <------------------------------+
	                          |
	          run.db + report.stats + fleetload.log

Cancelling the context ends both tasks; the partial report is still written.
*/
package rollout
