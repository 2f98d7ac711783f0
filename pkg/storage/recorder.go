package storage

import (
	"strconv"
	"time"

	"github.com/cuemby/fleetload/pkg/events"
	"github.com/cuemby/fleetload/pkg/log"
	"github.com/cuemby/fleetload/pkg/types"
	"github.com/rs/zerolog"
)

// Recorder persists rollout events published on the broker
type Recorder struct {
	store  Store
	broker *events.Broker
	sub    events.Subscriber
	doneCh chan struct{}
	logger zerolog.Logger
}

// NewRecorder subscribes to broker and writes into store. Call Start to begin
// consuming and Stop once the broker has been stopped.
func NewRecorder(store Store, broker *events.Broker) *Recorder {
	return &Recorder{
		store:  store,
		broker: broker,
		sub:    broker.Subscribe(),
		doneCh: make(chan struct{}),
		logger: log.WithComponent("recorder"),
	}
}

// Start begins consuming events
func (r *Recorder) Start() {
	go r.run()
}

// Stop unsubscribes and waits for every received event to be written
func (r *Recorder) Stop() {
	r.broker.Unsubscribe(r.sub)
	<-r.doneCh
}

func (r *Recorder) run() {
	defer close(r.doneCh)
	for ev := range r.sub {
		if err := r.record(ev); err != nil {
			r.logger.Warn().Err(err).Str("event", string(ev.Type)).Msg("Failed to record event")
		}
	}
}

func (r *Recorder) record(ev *events.Event) error {
	switch ev.Type {
	case events.EventSampleRecorded:
		if ev.Counters == nil {
			return nil
		}
		return r.store.AppendSample(&SampleRecord{
			Timestamp:      ev.Timestamp,
			ElapsedSeconds: metaInt64(ev, events.MetaElapsed),
			Counters:       *ev.Counters,
		})

	case events.EventBatchReleased:
		batch := &BatchRecord{
			Step:     int(metaInt64(ev, events.MetaStep)),
			Start:    int(metaInt64(ev, events.MetaStart)),
			End:      int(metaInt64(ev, events.MetaEnd)),
			Released: ev.Timestamp,
		}
		if ev.Counters != nil {
			batch.Applied = ev.Counters.Get(types.CounterAppliedCommitted)
		}
		return r.store.AppendBatch(batch)

	case events.EventPhaseFinished:
		phase := &PhaseRecord{
			Phase:   ev.Metadata[events.MetaPhase],
			State:   ev.Metadata[events.MetaState],
			Started: metaTime(ev, events.MetaStarted),
			Ended:   metaTime(ev, events.MetaEnded),
		}
		if ev.Counters != nil {
			phase.Final = *ev.Counters
		}
		return r.store.AppendPhase(phase)
	}
	return nil
}

func metaInt64(ev *events.Event, key string) int64 {
	v, err := strconv.ParseInt(ev.Metadata[key], 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func metaTime(ev *events.Event, key string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, ev.Metadata[key])
	if err != nil {
		return time.Time{}
	}
	return t
}
