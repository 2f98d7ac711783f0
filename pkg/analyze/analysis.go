package analyze

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/fleetload/pkg/log"
	"github.com/rs/zerolog"
)

// Row is one line of the clusterversion CSV
type Row struct {
	Unit      string
	Version   string
	State     string
	Started   string
	Completed string
	Duration  string
}

// VersionStats aggregates the history entries of one version
type VersionStats struct {
	Version   string
	Count     int
	States    []string // first-seen order
	Units     map[string][]string
	Durations []float64 // seconds, completed entries only
}

// Analysis is the result of aggregating every unit's history
type Analysis struct {
	Policy      DuplicatePolicy
	Total       int
	Unreachable []string
	Duplicates  []string
	Versions    []*VersionStats // first-seen order
	Rows        []Row
}

// Analyze aggregates histories in unit order under policy
func Analyze(histories []UnitHistory, policy DuplicatePolicy) *Analysis {
	logger := log.WithComponent("analyze")
	a := &Analysis{Policy: policy, Total: len(histories)}
	byVersion := make(map[string]*VersionStats)

	for _, h := range histories {
		if h.Err != nil {
			a.Unreachable = append(a.Unreachable, h.Unit)
			a.Rows = append(a.Rows, Row{Unit: h.Unit, Version: "NA", State: "NA"})
			continue
		}

		for _, e := range h.Entries {
			vs, ok := byVersion[e.Version]
			if !ok {
				vs = &VersionStats{Version: e.Version, Units: make(map[string][]string)}
				byVersion[e.Version] = vs
				a.Versions = append(a.Versions, vs)
			}
			if _, ok := vs.Units[e.State]; !ok {
				vs.Units[e.State] = nil
				vs.States = append(vs.States, e.State)
			}

			if !slices.Contains(vs.Units[e.State], h.Unit) {
				if policy == CompletedWins && slices.Contains(vs.Units[stateCompleted], h.Unit) {
					logger.Warn().Msgf("Unit %s has entry for Completed %s and a duplicate entry for %s", h.Unit, e.Version, e.State)
					a.addDuplicate(h.Unit)
				} else {
					vs.Units[e.State] = append(vs.Units[e.State], h.Unit)
					vs.Count++
				}
			}

			row := Row{Unit: h.Unit, Version: e.Version, State: e.State, Started: formatTime(e.Started)}
			if d, ok := e.Duration(); ok {
				row.Completed = formatTime(e.Completed)
				row.Duration = strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
				vs.Durations = append(vs.Durations, d.Seconds())

				if policy == CompletedWins {
					if i := slices.Index(vs.Units[statePartial], h.Unit); i >= 0 {
						logger.Warn().Msgf("Unit %s has a duplicate Partial entry for version %s", h.Unit, e.Version)
						vs.Units[statePartial] = slices.Delete(vs.Units[statePartial], i, i+1)
						vs.Count--
						a.addDuplicate(h.Unit)
					}
				}
			}
			a.Rows = append(a.Rows, row)
		}
	}
	return a
}

func (a *Analysis) addDuplicate(unit string) {
	if !slices.Contains(a.Duplicates, unit) {
		a.Duplicates = append(a.Duplicates, unit)
	}
}

// WriteCSV writes one row per history entry and one NA row per unreachable unit
func (a *Analysis) WriteCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"name", "version", "state", "startedTime", "completionTime", "duration"}); err != nil {
		return err
	}
	for _, r := range a.Rows {
		if err := w.Write([]string{r.Unit, r.Version, r.State, r.Started, r.Completed, r.Duration}); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// WriteStats writes the summary to path and logs every line
func (a *Analysis) WriteStats(path string) error {
	var lines []string
	add := func(format string, args ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, args...))
	}

	add("Stats only on clusterversion in Completed state")
	add("Duplicate policy: %s", a.Policy)
	add("Total units: %d", a.Total)
	add("Unreachable units count: %d", len(a.Unreachable))
	add("Unreachable units percent: %.1f%%", percentOf(len(a.Unreachable), a.Total))
	add("Unreachable units: %s", formatList(a.Unreachable))
	add("Duplicated clusterversion history units count: %d", len(a.Duplicates))
	add("Duplicated clusterversion history units: %s", formatList(a.Duplicates))

	for _, vs := range a.Versions {
		add("#############################################")
		add("Analyzing version: %s", vs.Version)
		add("Total entries: %d", vs.Count)
		for _, state := range vs.States {
			units := vs.Units[state]
			if state == stateCompleted {
				add("State: %s, Count: %d, Percent: %.1f%%", state, len(units), percentOf(len(units), vs.Count))
			} else {
				add("State: %s, Count: %d, Percent: %.1f%%, Units: %s", state, len(units), percentOf(len(units), vs.Count), formatList(units))
			}
		}
		if len(vs.Durations) == 0 {
			add("No completed entries")
			continue
		}
		d := Summarize(vs.Durations)
		add("Min: %g", d.Min)
		add("Average: %.1f", d.Mean)
		add("50 percentile: %.1f", d.P50)
		add("95 percentile: %.1f", d.P95)
		add("99 percentile: %.1f", d.P99)
		add("Max: %g", d.Max)
	}

	logger := log.WithComponent("analyze")
	logLines(logger, lines)
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Write stores the CSV and stats files in dir, named after ts
func (a *Analysis) Write(dir string, ts time.Time) (csvPath, statsPath string, err error) {
	stamp := ts.UTC().Format("20060102-150405")
	csvPath = filepath.Join(dir, fmt.Sprintf("clusterversion-%s.csv", stamp))
	statsPath = filepath.Join(dir, fmt.Sprintf("clusterversion-%s.stats", stamp))

	logger := log.WithComponent("analyze")
	logger.Info().Msgf("Writing CSV: %s", csvPath)
	if err := a.WriteCSV(csvPath); err != nil {
		return "", "", err
	}
	logger.Info().Msgf("Writing Stats: %s", statsPath)
	if err := a.WriteStats(statsPath); err != nil {
		return "", "", err
	}
	return csvPath, statsPath, nil
}

// Distribution summarizes a set of durations in seconds
type Distribution struct {
	Min, Mean, P50, P95, P99, Max float64
}

// Summarize computes the distribution of values, which must not be empty
func Summarize(values []float64) Distribution {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	return Distribution{
		Min:  sorted[0],
		Mean: sum / float64(len(sorted)),
		P50:  Percentile(sorted, 50),
		P95:  Percentile(sorted, 95),
		P99:  Percentile(sorted, 99),
		Max:  sorted[len(sorted)-1],
	}
}

// Percentile interpolates linearly between the closest ranks of sorted
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	return sorted[lo] + (sorted[hi]-sorted[lo])*(rank-float64(lo))
}

func percentOf(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(total)*1000) / 10
}

func formatList(items []string) string {
	return "[" + strings.Join(items, ", ") + "]"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func logLines(logger zerolog.Logger, lines []string) {
	for _, l := range lines {
		logger.Info().Msg(l)
	}
}
