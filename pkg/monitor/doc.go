/*
Package monitor samples fleet progress on a fixed cadence.

Monitor.Run polls immediately and then once per interval until Stop is
called or its context ends, with one final poll on the way out. Each
successful poll is merged into the shared Counters:

  - terminal counters (install completed or failed, policy compliant or
    timed out) never decrease; a lower reading is clamped and logged
  - applied_committed is owned by the release path through RecordApplied
    and is never overwritten by a poll
  - a failed poll keeps the previous counters and is counted in Failures

Every tick appends a row to the Sink and publishes a sample event carrying
the snapshot. Readers take copies through Snapshot; nothing outside the
package mutates the counters directly.
*/
package monitor
