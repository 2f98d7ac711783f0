package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/cuemby/fleetload/pkg/types"
)

// Header returns the monitor data column names
func Header() []string {
	header := []string{"elapsed_seconds"}
	for _, c := range types.AllCounters() {
		header = append(header, c.String())
	}
	return header
}

// CSVSink appends monitor ticks to monitor_data.csv. Every row is flushed
// so the file is usable while the run is in progress.
type CSVSink struct {
	mu   sync.Mutex
	file *os.File
	w    *csv.Writer
}

// NewCSVSink creates the data file in dir and writes the header
func NewCSVSink(dir string) (*CSVSink, error) {
	f, err := os.Create(filepath.Join(dir, MonitorDataFile))
	if err != nil {
		return nil, fmt.Errorf("failed to create monitor data file: %w", err)
	}

	s := &CSVSink{file: f, w: csv.NewWriter(f)}
	if err := s.write(Header()); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

// Append writes one tick. It implements monitor.Sink.
func (s *CSVSink) Append(elapsed time.Duration, snap types.Snapshot) error {
	row := make([]string, 0, types.NumCounters+1)
	row = append(row, strconv.FormatInt(int64(elapsed.Round(time.Second)/time.Second), 10))
	for _, v := range snap {
		row = append(row, strconv.FormatInt(v, 10))
	}
	return s.write(row)
}

func (s *CSVSink) write(row []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.w.Write(row); err != nil {
		return fmt.Errorf("failed to write monitor data: %w", err)
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("failed to flush monitor data: %w", err)
	}
	return nil
}

// Close closes the data file
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
