// Package observability exposes Prometheus metrics for the tick simulation:
// tick duration, outbound batch sizes, AOI set sizes, and tick-adjustment
// events (§4.6-§4.8), served over a dedicated HTTP listener
// (config.ServerConfig.GetMetricsPort).
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tessera-mmo/core/internal/logging"
)

// Metrics holds every Prometheus collector the simulation pipeline reports
// to.
type Metrics struct {
	tickDuration     prometheus.Histogram
	batchSize        prometheus.Histogram
	aoiSetSize       prometheus.Histogram
	tickAdjustEvents *prometheus.CounterVec

	server *http.Server
}

// NewMetrics creates and registers the simulation's Prometheus collectors
// in the default registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "simulation",
			Name:      "tick_duration_seconds",
			Help:      "Wall-clock duration of one authoritative tick.",
			Buckets:   prometheus.DefBuckets,
		}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "simulation",
			Name:      "outbound_batch_bytes",
			Help:      "Size in bytes of a single outbound message batch.",
			Buckets:   prometheus.ExponentialBuckets(16, 2, 12),
		}),
		aoiSetSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "simulation",
			Name:      "aoi_set_size",
			Help:      "Number of entities in a client's area-of-interest set.",
			Buckets:   prometheus.LinearBuckets(0, 10, 20),
		}),
		tickAdjustEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "simulation",
			Name:      "tick_adjust_events_total",
			Help:      "Tick-adjustment controller outcomes, by kind (correction, disconnect).",
		}, []string{"kind"}),
	}

	prometheus.MustRegister(m.tickDuration, m.batchSize, m.aoiSetSize, m.tickAdjustEvents)
	return m
}

// ObserveTick records one tick's wall-clock duration.
func (m *Metrics) ObserveTick(d time.Duration) {
	m.tickDuration.Observe(d.Seconds())
}

// ObserveBatchSize records one outbound batch's size in bytes.
func (m *Metrics) ObserveBatchSize(bytes int) {
	m.batchSize.Observe(float64(bytes))
}

// ObserveAOISetSize records one client's AOI set size for this tick.
func (m *Metrics) ObserveAOISetSize(n int) {
	m.aoiSetSize.Observe(float64(n))
}

// IncTickAdjustEvent increments the counter for a tick-adjustment outcome
// (kind is "correction" or "disconnect" — see internal/tickadjust.Outcome).
func (m *Metrics) IncTickAdjustEvent(kind string) {
	m.tickAdjustEvents.WithLabelValues(kind).Inc()
}

// Serve starts the /metrics HTTP listener on addr in the background.
func (m *Metrics) Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	m.server = &http.Server{Addr: addr, Handler: mux}

	go func() {
		logging.Info("observability: /metrics listening on %s", addr)
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("observability: metrics HTTP server error: %v", err)
		}
	}()
}

// Shutdown gracefully stops the metrics HTTP listener, if Serve was called.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}

// Addr formats a host:port listen address from a bare port, matching the
// teacher's ServerConfig.GetMetricsPort convention.
func Addr(port int) string {
	return fmt.Sprintf(":%d", port)
}
