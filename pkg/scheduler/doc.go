/*
Package scheduler releases unit windows at a configured cadence.

Plan splits the selected index range into windows of at most batch units. The
scheduler hands each window to a deploy.Releaser, records the released count
on the progress monitor, and then waits on its Cadence before the next window:

	┌──────────┐   Release   ┌──────────┐  RecordApplied  ┌──────────┐
	│  window  │────────────▶│ releaser │────────────────▶│ monitor  │
	└──────────┘             └──────────┘                 └──────────┘
	      ▲                                                     │
	      │                 Cadence.Wait                        │
	      └─────────────────────────────────────────────────────┘

Two cadences exist. IntervalCadence waits until a fixed interval has passed
since the previous window started, logging the remaining time and counters
every five minutes. ConcurrencyCadence waits until fewer than Target units are
installing. No wait follows the last window.

All waits use an injected k8s.io/utils/clock so tests drive time with a fake
clock. Cancellation returns ctx.Err() immediately.
*/
package scheduler
