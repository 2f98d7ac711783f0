package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// MonitorDataFile holds one row per monitor tick
	MonitorDataFile = "monitor_data.csv"

	// StatsFile holds the human readable run summary
	StatsFile = "report.stats"

	dirTimeLayout = "20060102-150405"
)

// DirName returns the results directory name for a run started at started
func DirName(started time.Time, suffix string) string {
	return fmt.Sprintf("%s-%s", started.UTC().Format(dirTimeLayout), suffix)
}

// CreateDir creates the results directory for a run under base. A directory
// left by an earlier run with the same name is an error.
func CreateDir(base, suffix string, started time.Time) (string, error) {
	if err := os.MkdirAll(base, 0755); err != nil {
		return "", fmt.Errorf("failed to create results base directory: %w", err)
	}

	dir := filepath.Join(base, DirName(started, suffix))
	if err := os.Mkdir(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create results directory: %w", err)
	}
	return dir, nil
}
