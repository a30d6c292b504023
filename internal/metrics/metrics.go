// Package metrics exposes the bot's prometheus counters/gauges and an
// optional HTTP server to serve them. Not required by the wire protocol or
// the kernel's correctness, but every non-trivial bot in this domain carries
// some observability surface, so this one does too.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles every counter/gauge the rest of the bot updates. main
// always builds one with New, even when the HTTP server itself is disabled;
// a nil *Collector is still accepted (tests pass one), and every
// instrumentation call site checks for nil before updating.
type Collector struct {
	CyclesCompleted    prometheus.Counter
	OpportunitiesFound *prometheus.CounterVec
	OrdersPlaced       *prometheus.CounterVec
	OrdersFailed       *prometheus.CounterVec
	BlacklistSize      prometheus.Gauge
	ConnectionErrors   prometheus.Counter

	registry *prometheus.Registry
}

// New registers a fresh set of collectors against a private registry (never
// the global default — tests construct many of these in parallel).
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		CyclesCompleted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "rin_cycles_completed_total",
			Help: "Orchestrator cycles completed successfully.",
		}),
		OpportunitiesFound: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "rin_opportunities_found_total",
			Help: "Profitable chains found by the kernel, labeled by chain.",
		}, []string{"chain"}),
		OrdersPlaced: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "rin_orders_placed_total",
			Help: "Order legs successfully submitted, labeled by pair.",
		}, []string{"pair"}),
		OrdersFailed: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "rin_orders_failed_total",
			Help: "Order legs that failed, labeled by pair and error kind.",
		}, []string{"pair", "kind"}),
		BlacklistSize: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "rin_blacklist_size",
			Help: "Number of assets currently blacklisted.",
		}),
		ConnectionErrors: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "rin_connection_errors_total",
			Help: "ErrClientConnectionError occurrences across all chains.",
		}),
		registry: reg,
	}
	return c
}

// Server serves the collector's registry at /metrics. Lifecycle mirrors the
// teacher's dashboard api.Server: constructed once, Start()ed in a
// goroutine, Stop()ped with a bounded shutdown context.
type Server struct {
	httpServer *http.Server
}

// NewServer builds (but does not start) an HTTP server for c on port.
func NewServer(c *Collector, port int) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		},
	}
}

// Start runs the server until Stop is called or it fails to bind. Intended
// to be called in its own goroutine; errors other than http.ErrServerClosed
// should be logged by the caller.
func (s *Server) Start() error {
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts the server down within the given context.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
