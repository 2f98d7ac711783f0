package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// RunLogFile is the name of the log copy kept in a run's results directory
const RunLogFile = "fleetload.log"

var (
	// Logger is the global logger instance. Child loggers capture its writer
	// when they are created.
	Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

	mu      sync.Mutex
	current Config
)

// Level represents log level
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init initializes the global logger
func Init(cfg Config) {
	level, err := zerolog.ParseLevel(string(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Rollout timelines are compared across hosts, keep everything in UTC
	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }

	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}

	mu.Lock()
	defer mu.Unlock()
	current = cfg
	Logger = build(console(cfg))
}

func console(cfg Config) io.Writer {
	if cfg.JSONOutput {
		return cfg.Output
	}
	return zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: time.RFC3339}
}

func build(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}

// AttachRunFile copies every following log line, as JSON, into
// dir/fleetload.log. The returned func detaches the file and closes it.
func AttachRunFile(dir string) (detach func() error, err error) {
	path := filepath.Join(dir, RunLogFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open run log %s: %w", path, err)
	}

	mu.Lock()
	cfg := current
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	Logger = build(zerolog.MultiLevelWriter(console(cfg), f))
	mu.Unlock()

	return func() error {
		mu.Lock()
		Logger = build(console(cfg))
		mu.Unlock()
		return f.Close()
	}, nil
}

// WithComponent creates a child logger with component field
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithRunID creates a child logger with run_id field
func WithRunID(runID string) zerolog.Logger {
	return Logger.With().Str("run_id", runID).Logger()
}

// WithUnit creates a child logger with unit field
func WithUnit(unit string) zerolog.Logger {
	return Logger.With().Str("unit", unit).Logger()
}

// WithShard creates a child logger with shard field
func WithShard(location string) zerolog.Logger {
	return Logger.With().Str("shard", location).Logger()
}

// WithPhase creates a child logger with phase field
func WithPhase(phase string) zerolog.Logger {
	return Logger.With().Str("phase", phase).Logger()
}

// PhaseBreak logs a separator line between rollout phases
func PhaseBreak() {
	Logger.Info().Msg("###############################################################################")
}
