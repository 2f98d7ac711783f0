/*
Package events provides an in-memory event broker for rollout lifecycle events.

The scheduler, the monitor and the phase waiter publish events; the storage
recorder subscribes and persists them to the run database.

# Architecture

	┌──────────────────── EVENT BROKER ─────────────────────┐
	│                                                         │
	│  Publisher → Event Channel (buffer: 100)                │
	│       ↓                                                 │
	│  Broadcast Loop                                         │
	│       ↓                                                 │
	│  Subscriber Channels (buffer: 50 each)                  │
	│                                                         │
	│  Event Types:                                           │
	│    - run.started, run.finished                          │
	│    - batch.released                                     │
	│    - sample.recorded                                    │
	│    - phase.started, phase.finished                      │
	└─────────────────────────────────────────────────────────┘

Delivery to subscribers blocks, so no event is lost while a subscriber is
attached. Stop flushes the queued events before returning, which lets the
orchestrator stop the broker and then read a complete run database.

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	go func() {
		for ev := range sub {
			fmt.Println(ev.Type, ev.Message)
		}
	}()

	broker.Publish(&events.Event{
		Type:    events.EventBatchReleased,
		Message: "Released step 1 [0, 100)",
	})
*/
package events
