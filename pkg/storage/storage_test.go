package storage

import (
	"strconv"
	"testing"
	"time"

	"github.com/cuemby/fleetload/pkg/events"
	"github.com/cuemby/fleetload/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewBoltStore(dir)
	require.NoError(t, err)

	_, err = store.GetRun()
	assert.Error(t, err)

	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveRun(&RunRecord{ID: "run-1", Method: "ztp", Units: 250, Started: started}))

	run, err := store.GetRun()
	require.NoError(t, err)
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, 250, run.Units)
	assert.True(t, started.Equal(run.Started))
	require.NoError(t, store.Close())

	ro, err := OpenReadOnly(dir)
	require.NoError(t, err)
	defer ro.Close()
	run, err = ro.GetRun()
	require.NoError(t, err)
	assert.Equal(t, "run-1", run.ID)
}

func TestAppendKeepsOrder(t *testing.T) {
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	// More than 255 entries so byte-wise key ordering matters
	for i := 0; i < 300; i++ {
		var snap types.Snapshot
		snap[types.CounterInstallCompleted] = int64(i)
		require.NoError(t, store.AppendSample(&SampleRecord{ElapsedSeconds: int64(i * 60), Counters: snap}))
	}

	samples, err := store.ListSamples()
	require.NoError(t, err)
	require.Len(t, samples, 300)
	for i, s := range samples {
		assert.Equal(t, int64(i*60), s.ElapsedSeconds)
		assert.Equal(t, int64(i), s.Counters.Get(types.CounterInstallCompleted))
	}
}

func TestRecorderPersistsEvents(t *testing.T) {
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	broker := events.NewBroker()
	broker.Start()
	rec := NewRecorder(store, broker)
	rec.Start()

	var snap types.Snapshot
	snap[types.CounterAppliedCommitted] = 100
	snap[types.CounterInstallCompleted] = 97

	broker.Publish(&events.Event{
		Type:     events.EventSampleRecorded,
		Metadata: map[string]string{events.MetaElapsed: "60"},
		Counters: &snap,
	})
	broker.Publish(&events.Event{
		Type: events.EventBatchReleased,
		Metadata: map[string]string{
			events.MetaStep:  "1",
			events.MetaStart: "0",
			events.MetaEnd:   "100",
		},
		Counters: &snap,
	})

	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	ended := started.Add(90 * time.Minute)
	broker.Publish(&events.Event{
		Type: events.EventPhaseFinished,
		Metadata: map[string]string{
			events.MetaPhase:   "install-wait",
			events.MetaState:   "Completed",
			events.MetaStarted: started.Format(time.RFC3339Nano),
			events.MetaEnded:   ended.Format(time.RFC3339Nano),
		},
		Counters: &snap,
	})
	// Ignored by the recorder
	broker.Publish(&events.Event{Type: events.EventRunStarted})

	broker.Stop()
	rec.Stop()

	samples, err := store.ListSamples()
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, int64(60), samples[0].ElapsedSeconds)

	batches, err := store.ListBatches()
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, 1, batches[0].Step)
	assert.Equal(t, 100, batches[0].End)
	assert.Equal(t, int64(100), batches[0].Applied)

	phases, err := store.ListPhases()
	require.NoError(t, err)
	require.Len(t, phases, 1)
	assert.Equal(t, "install-wait", phases[0].Phase)
	assert.Equal(t, "Completed", phases[0].State)
	assert.Equal(t, 90*time.Minute, phases[0].Duration())
	assert.Equal(t, int64(97), phases[0].Final.Get(types.CounterInstallCompleted))
}

func TestRecorderManySamples(t *testing.T) {
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	broker := events.NewBroker()
	broker.Start()
	rec := NewRecorder(store, broker)
	rec.Start()

	// Exceeds both channel buffers, nothing may be dropped
	for i := 0; i < 400; i++ {
		var snap types.Snapshot
		broker.Publish(&events.Event{
			Type:     events.EventSampleRecorded,
			Metadata: map[string]string{events.MetaElapsed: strconv.Itoa(i)},
			Counters: &snap,
		})
	}
	broker.Stop()
	rec.Stop()

	samples, err := store.ListSamples()
	require.NoError(t, err)
	assert.Len(t, samples, 400)
}
