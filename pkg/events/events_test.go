package events

import (
	"sync"
	"testing"
	"time"

	"github.com/cuemby/fleetload/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestPublishSubscribe(t *testing.T) {
	defer goleak.VerifyNone(t)

	broker := NewBroker()
	broker.Start()

	sub := broker.Subscribe()
	assert.Equal(t, 1, broker.SubscriberCount())

	var snap types.Snapshot
	snap[types.CounterInitialized] = 7
	broker.Publish(&Event{Type: EventSampleRecorded, Counters: &snap})

	select {
	case ev := <-sub:
		assert.Equal(t, EventSampleRecorded, ev.Type)
		assert.NotEmpty(t, ev.ID)
		assert.False(t, ev.Timestamp.IsZero())
		require.NotNil(t, ev.Counters)
		assert.Equal(t, int64(7), ev.Counters.Get(types.CounterInitialized))
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}

	broker.Stop()
	broker.Unsubscribe(sub)
	assert.Equal(t, 0, broker.SubscriberCount())
}

func TestStopFlushesQueuedEvents(t *testing.T) {
	defer goleak.VerifyNone(t)

	broker := NewBroker()
	sub := broker.Subscribe()

	var (
		wg   sync.WaitGroup
		seen []EventType
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range sub {
			seen = append(seen, ev.Type)
		}
	}()

	// Queue before the loop runs so Stop has to drain them
	broker.Publish(&Event{Type: EventRunStarted})
	broker.Publish(&Event{Type: EventBatchReleased})
	broker.Publish(&Event{Type: EventRunFinished})

	broker.Start()
	broker.Stop()
	broker.Unsubscribe(sub)
	wg.Wait()

	assert.Equal(t, []EventType{EventRunStarted, EventBatchReleased, EventRunFinished}, seen)
}

func TestPublishAfterStopIsDropped(t *testing.T) {
	defer goleak.VerifyNone(t)

	broker := NewBroker()
	broker.Start()
	broker.Stop()

	done := make(chan struct{})
	go func() {
		broker.Publish(&Event{Type: EventRunFinished})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked after stop")
	}

	// Stop is idempotent
	broker.Stop()
}

func TestUnsubscribeTwice(t *testing.T) {
	broker := NewBroker()
	sub := broker.Subscribe()
	broker.Unsubscribe(sub)
	assert.NotPanics(t, func() { broker.Unsubscribe(sub) })
}
