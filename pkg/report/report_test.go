package report

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cuemby/fleetload/pkg/storage"
	"github.com/cuemby/fleetload/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirName(t *testing.T) {
	started := time.Date(2024, 3, 9, 17, 4, 5, 0, time.FixedZone("EST", -5*3600))
	assert.Equal(t, "20240309-220405-int-ztp-0", DirName(started, "int-ztp-0"))
}

func TestCreateDir(t *testing.T) {
	base := filepath.Join(t.TempDir(), "results")
	started := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	dir, err := CreateDir(base, "run", started)
	require.NoError(t, err)
	assert.DirExists(t, dir)
	assert.Equal(t, "20240101-000000-run", filepath.Base(dir))

	_, err = CreateDir(base, "run", started)
	assert.Error(t, err, "results directory must not be reused")
}

func TestCSVSink(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewCSVSink(dir)
	require.NoError(t, err)

	var snap types.Snapshot
	snap[types.CounterAppliedCommitted] = 100
	snap[types.CounterInstalling] = 40
	require.NoError(t, sink.Append(0, types.Snapshot{}))
	require.NoError(t, sink.Append(61*time.Second+400*time.Millisecond, snap))
	require.NoError(t, sink.Close())

	f, err := os.Open(filepath.Join(dir, MonitorDataFile))
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 3)
	assert.Equal(t, Header(), rows[0])
	assert.Len(t, rows[0], int(types.NumCounters)+1)
	assert.Equal(t, "elapsed_seconds", rows[0][0])
	assert.Equal(t, "applied_committed", rows[0][1])

	assert.Equal(t, "61", rows[2][0])
	assert.Equal(t, "100", rows[2][1+int(types.CounterAppliedCommitted)])
	assert.Equal(t, "40", rows[2][1+int(types.CounterInstalling)])
}

func seedStore(t *testing.T, dir string) {
	t.Helper()
	store, err := storage.NewBoltStore(dir)
	require.NoError(t, err)
	defer store.Close()

	started := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveRun(&storage.RunRecord{
		ID:             "run-1",
		Method:         "ztp",
		Cadence:        "interval",
		ResultsDir:     dir,
		Units:          250,
		End:            250,
		Batch:          100,
		Started:        started,
		Finished:       started.Add(3 * time.Hour),
		ReleaseStarted: started.Add(15 * time.Second),
		ReleaseEnded:   started.Add(4*time.Hour + 15*time.Second),
	}))
	require.NoError(t, store.AppendBatch(&storage.BatchRecord{Step: 1, Start: 0, End: 100, Released: started, Applied: 100}))

	var final types.Snapshot
	final[types.CounterInstallCompleted] = 247
	require.NoError(t, store.AppendSample(&storage.SampleRecord{ElapsedSeconds: 0}))
	require.NoError(t, store.AppendSample(&storage.SampleRecord{ElapsedSeconds: 60, Counters: final}))
	require.NoError(t, store.AppendPhase(&storage.PhaseRecord{
		Phase: "install-wait", State: "Completed",
		Started: started.Add(time.Hour), Ended: started.Add(time.Hour + 90*time.Second),
	}))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	seedStore(t, dir)

	store, err := storage.OpenReadOnly(dir)
	require.NoError(t, err)
	defer store.Close()

	stats, err := Load(store)
	require.NoError(t, err)
	assert.Equal(t, "run-1", stats.Run.ID)
	assert.Equal(t, 2, stats.Samples)
	assert.Len(t, stats.Batches, 1)
	assert.Len(t, stats.Phases, 1)
	assert.Equal(t, int64(247), stats.Final.Get(types.CounterInstallCompleted))
}

func TestGenerate(t *testing.T) {
	dir := t.TempDir()
	seedStore(t, dir)

	_, err := Generate(dir)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, StatsFile))
	require.NoError(t, err)
	out := string(data)

	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "3h0m0s")
	assert.Contains(t, out, "install-wait")
	assert.Contains(t, out, "1m30s")
	assert.Contains(t, out, "Install Completed")
	assert.Contains(t, out, "247")

	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "release") {
			assert.Contains(t, line, "14400")
		}
	}
}

func TestGenerateMissingDatabase(t *testing.T) {
	_, err := Generate(t.TempDir())
	assert.Error(t, err)
}

func TestWriteWithoutRun(t *testing.T) {
	var sb strings.Builder
	assert.Error(t, (&Stats{}).Write(&sb))
}
