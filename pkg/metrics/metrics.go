package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cuemby/fleetload/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Fleet progress counters, one series per counter name
	FleetCounters = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleetload_counter",
			Help: "Latest value of each rollout progress counter",
		},
		[]string{"counter"},
	)

	MonitorPollsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetload_monitor_polls_total",
			Help: "Total number of fleet polls performed by the monitor",
		},
	)

	MonitorPollFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetload_monitor_poll_failures_total",
			Help: "Total number of fleet polls that failed and were skipped",
		},
	)

	MonitorPollDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleetload_monitor_poll_duration_seconds",
			Help:    "Time taken to poll fleet state in seconds",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 20, 40, 80},
		},
	)

	// Release metrics
	BatchesReleased = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetload_batches_released_total",
			Help: "Total number of batches released",
		},
	)

	UnitsReleased = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetload_units_released_total",
			Help: "Total number of units released",
		},
	)

	ShardRenders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetload_shard_renders_total",
			Help: "Total number of shard membership manifests rendered by kind",
		},
		[]string{"kind"},
	)

	// Phase metrics
	PhaseDuration = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleetload_phase_duration_seconds",
			Help: "Duration of each rollout phase by outcome",
		},
		[]string{"phase", "outcome"},
	)

	// Command metrics
	CommandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleetload_command_duration_seconds",
			Help:    "External command duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)

	CommandFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetload_command_failures_total",
			Help: "External commands that failed after retries",
		},
		[]string{"command"},
	)
)

func init() {
	prometheus.MustRegister(FleetCounters)
	prometheus.MustRegister(MonitorPollsTotal)
	prometheus.MustRegister(MonitorPollFailures)
	prometheus.MustRegister(MonitorPollDuration)
	prometheus.MustRegister(BatchesReleased)
	prometheus.MustRegister(UnitsReleased)
	prometheus.MustRegister(ShardRenders)
	prometheus.MustRegister(PhaseDuration)
	prometheus.MustRegister(CommandDuration)
	prometheus.MustRegister(CommandFailures)
}

// ObserveSnapshot publishes every counter of a snapshot
func ObserveSnapshot(s types.Snapshot) {
	for _, c := range types.AllCounters() {
		FleetCounters.WithLabelValues(c.String()).Set(float64(s.Get(c)))
	}
	recordSnapshot(s)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Server exposes /metrics and the health endpoints during a run
type Server struct {
	srv *http.Server
}

// NewServer creates a metrics server listening on addr
func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", HealthHandler())
	mux.HandleFunc("/ready", ReadyHandler())
	mux.HandleFunc("/status", StatusHandler())

	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start serves in the background. Listen errors are delivered on the returned channel.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Stop shuts the server down
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
