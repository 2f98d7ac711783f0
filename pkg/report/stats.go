package report

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/cheynewallace/tabby"
	"github.com/cuemby/fleetload/pkg/storage"
	"github.com/cuemby/fleetload/pkg/types"
)

// Stats is everything the stats file reports about one run
type Stats struct {
	Run     *storage.RunRecord
	Batches []*storage.BatchRecord
	Phases  []*storage.PhaseRecord
	Samples int
	Final   types.Snapshot
}

// Load reads a run's stats from its store. Final counters come from the
// last recorded sample.
func Load(store storage.Store) (*Stats, error) {
	run, err := store.GetRun()
	if err != nil {
		return nil, err
	}
	batches, err := store.ListBatches()
	if err != nil {
		return nil, err
	}
	phases, err := store.ListPhases()
	if err != nil {
		return nil, err
	}
	samples, err := store.ListSamples()
	if err != nil {
		return nil, err
	}

	stats := &Stats{Run: run, Batches: batches, Phases: phases, Samples: len(samples)}
	if n := len(samples); n > 0 {
		stats.Final = samples[n-1].Counters
	}
	return stats, nil
}

// WriteStats writes report.stats into dir
func WriteStats(dir string, stats *Stats) error {
	var buf bytes.Buffer
	if err := stats.Write(&buf); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, StatsFile), buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write stats file: %w", err)
	}
	return nil
}

// Generate rebuilds report.stats from the run database in dir
func Generate(dir string) (*Stats, error) {
	store, err := storage.OpenReadOnly(dir)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	stats, err := Load(store)
	if err != nil {
		return nil, err
	}
	return stats, WriteStats(dir, stats)
}

// Write renders the stats as aligned tables
func (s *Stats) Write(w io.Writer) error {
	run := s.Run
	if run == nil {
		return fmt.Errorf("stats have no run record")
	}

	t := newTable(w)
	t.AddHeader("Run Summary", "")
	t.AddLine("Run ID", run.ID)
	t.AddLine("Method", run.Method)
	t.AddLine("Cadence", run.Cadence)
	t.AddLine("Dry run", strconv.FormatBool(run.DryRun))
	t.AddLine("Results", run.ResultsDir)
	t.AddLine("Units", fmt.Sprintf("%d (indices %d to %d, batch %d)", run.Units, run.Start, run.End, run.Batch))
	t.AddLine("Started", formatTime(run.Started))
	t.AddLine("Finished", formatTime(run.Finished))
	t.AddLine("Total duration", formatDuration(run.Started, run.Finished))
	t.AddLine("Monitor samples", strconv.Itoa(s.Samples))
	if run.Error != "" {
		t.AddLine("Error", run.Error)
	}
	t.AddLine()
	t.Print()

	t = newTable(w)
	t.AddHeader("Phase", "State", "Started", "Ended", "Duration", "Seconds")
	if !run.ReleaseStarted.IsZero() {
		t.AddLine("release", "-", formatTime(run.ReleaseStarted), formatTime(run.ReleaseEnded),
			formatDuration(run.ReleaseStarted, run.ReleaseEnded), seconds(run.ReleaseStarted, run.ReleaseEnded))
	}
	for _, p := range s.Phases {
		t.AddLine(p.Phase, p.State, formatTime(p.Started), formatTime(p.Ended),
			formatDuration(p.Started, p.Ended), seconds(p.Started, p.Ended))
	}
	t.AddLine()
	t.Print()

	if len(s.Batches) > 0 {
		t = newTable(w)
		t.AddHeader("Step", "Start", "End", "Released", "Applied")
		for _, b := range s.Batches {
			t.AddLine(b.Step, b.Start, b.End, formatTime(b.Released), b.Applied)
		}
		t.AddLine()
		t.Print()
	}

	t = newTable(w)
	t.AddHeader("Counter", "Final")
	for _, c := range types.AllCounters() {
		t.AddLine(c.Label(), s.Final.Get(c))
	}
	t.Print()
	return nil
}

func newTable(w io.Writer) *tabby.Tabby {
	return tabby.NewCustom(tabwriter.NewWriter(w, 0, 0, 4, ' ', 0))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func formatDuration(start, end time.Time) string {
	if start.IsZero() || end.IsZero() {
		return "-"
	}
	return end.Sub(start).Round(time.Second).String()
}

func seconds(start, end time.Time) string {
	if start.IsZero() || end.IsZero() {
		return "-"
	}
	return strconv.FormatInt(int64(end.Sub(start).Round(time.Second)/time.Second), 10)
}
