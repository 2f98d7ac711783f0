/*
Package phase implements the post-release wait state machine.

A phase is described by four counters: S (started), E (expected), F (failed)
and C (completed), plus an optional timeout M. Evaluate is pure:

	Completed  when S >= E and F + C == S
	TimedOut   otherwise, when M > 0 and elapsed > M
	Waiting    otherwise

Waiter.Wait polls the predicate every 30s on an injected clock and logs
progress every 5 polls. Timeouts are soft: they end the phase with a warning
and the run continues. Two phases are predefined, InstallWait and PolicyWait.
*/
package phase
