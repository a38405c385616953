// Package metrics provides Prometheus metrics for the server.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	// CommandsTotal counts the total number of commands processed
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "starlight_commands_total",
			Help: "Total number of commands processed",
		},
		[]string{"command"},
	)

	// CommandDuration measures the duration of command execution
	CommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "starlight_command_duration_seconds",
			Help:    "Duration of command execution in seconds",
			Buckets: prometheus.ExponentialBuckets(0.000001, 4, 12), // 1us to ~4s
		},
		[]string{"command"},
	)

	// CommandErrors counts the commands answered with an error reply
	CommandErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "starlight_command_errors_total",
			Help: "Total number of commands answered with an error",
		},
		[]string{"command"},
	)

	// ActiveConnections tracks the number of active client connections
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "starlight_active_connections",
			Help: "Number of active client connections",
		},
	)

	// ConnectionsTotal counts the total number of connections accepted
	ConnectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "starlight_connections_total",
			Help: "Total number of connections accepted",
		},
	)

	// RejectedConnections counts connections refused because of max_clients
	RejectedConnections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "starlight_rejected_connections_total",
			Help: "Total number of connections rejected by the client limit",
		},
	)

	// ExpiredKeys counts keys removed by the background reaper
	ExpiredKeys = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "starlight_expired_keys_total",
			Help: "Total number of keys removed by active expiration",
		},
	)

	// Keys reports the keyspace size at scrape time, see SetKeyCounter
	Keys = promauto.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "starlight_keys",
			Help: "Number of live keys",
		},
		func() float64 {
			if fn := keyCounter.Load(); fn != nil {
				return float64((*fn)())
			}
			return 0
		},
	)
)

var keyCounter atomic.Pointer[func() int]

// SetKeyCounter installs the function Keys reads on every scrape
func SetKeyCounter(fn func() int) {
	keyCounter.Store(&fn)
}

// unknownCommand keeps label cardinality bounded for names outside the registry
const unknownCommand = "unknown"

// RecordCommand records metrics for a command execution
func RecordCommand(command string, duration time.Duration, isError bool) {
	if command == "" {
		command = unknownCommand
	}
	CommandsTotal.WithLabelValues(command).Inc()
	CommandDuration.WithLabelValues(command).Observe(duration.Seconds())
	if isError {
		CommandErrors.WithLabelValues(command).Inc()
	}
}

// Server represents a metrics HTTP server
type Server struct {
	server *http.Server
	log    *zap.Logger
}

// NewServer creates a new metrics server exposing /metrics and /health
func NewServer(addr string, log *zap.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK")) //nolint:errcheck
	})

	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log,
	}
}

// Handler returns the HTTP handler, used by tests
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start binds the address and serves in the background
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			// metrics server is optional, the data path keeps running
			s.log.Error("metrics server failed", zap.Error(err))
		}
	}()
	s.log.Info("metrics listening", zap.String("address", ln.Addr().String()))
	return nil
}

// Stop gracefully stops the metrics server
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
