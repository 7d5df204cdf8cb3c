// Package metrics is Titan's Prometheus text-exposition collaborator,
// adapted from cuemby-warren/pkg/metrics/metrics.go's package-level
// registry/Handler idiom into worker-0's published metrics source
// (corestate.MetricsSource, spec.md §3/§6). Every metric is scoped to one
// Collector instance rather than a package-level registry, since each
// worker builds and owns its own.
package metrics

import (
	"bytes"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Collector owns one worker's gateway-shaped metrics and knows how to
// render them as Prometheus text exposition. It implements
// corestate.MetricsSource and worker.Metrics — the worker event loop drives
// every counter below directly, by method rather than by touching the
// underlying prometheus.Counter/Gauge fields.
type Collector struct {
	registry *prometheus.Registry

	ConnectionsAccepted  prometheus.Counter
	ConnectionsActive    prometheus.Gauge
	ConnectionsClosed    *prometheus.CounterVec // label: reason
	RevocationsApplied   prometheus.Counter
	RevocationListSize   prometheus.Gauge
	EventLoopIterations  prometheus.Counter
	BackendEventsHandled *prometheus.CounterVec // label: kind
}

// NewCollector builds a Collector scoped to one worker, labelling every
// metric name with the "titan_" prefix to match the original's
// export_circuit_breaker_metrics(..., "titan") namespace argument.
func NewCollector(workerID int) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,
		ConnectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "titan_connections_accepted_total",
			Help:        "Total number of client connections accepted by this worker.",
			ConstLabels: prometheus.Labels{"worker": workerIDLabel(workerID)},
		}),
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "titan_connections_active",
			Help:        "Number of client connections currently tracked by this worker.",
			ConstLabels: prometheus.Labels{"worker": workerIDLabel(workerID)},
		}),
		ConnectionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "titan_connections_closed_total",
			Help:        "Total number of client connections closed, by reason.",
			ConstLabels: prometheus.Labels{"worker": workerIDLabel(workerID)},
		}, []string{"reason"}),
		RevocationsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "titan_revocations_applied_total",
			Help:        "Total number of revocation entries folded into this worker's blacklist.",
			ConstLabels: prometheus.Labels{"worker": workerIDLabel(workerID)},
		}),
		RevocationListSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "titan_revocation_list_size",
			Help:        "Current size of this worker's revocation blacklist.",
			ConstLabels: prometheus.Labels{"worker": workerIDLabel(workerID)},
		}),
		EventLoopIterations: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "titan_event_loop_iterations_total",
			Help:        "Total number of event loop iterations run by this worker.",
			ConstLabels: prometheus.Labels{"worker": workerIDLabel(workerID)},
		}),
		BackendEventsHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "titan_backend_events_total",
			Help:        "Total number of backend readiness events handled, by kind.",
			ConstLabels: prometheus.Labels{"worker": workerIDLabel(workerID)},
		}, []string{"kind"}),
	}

	reg.MustRegister(
		c.ConnectionsAccepted,
		c.ConnectionsActive,
		c.ConnectionsClosed,
		c.RevocationsApplied,
		c.RevocationListSize,
		c.EventLoopIterations,
		c.BackendEventsHandled,
	)

	return c
}

// ConnectionAccepted records one client connection accepted by this worker.
func (c *Collector) ConnectionAccepted() {
	c.ConnectionsAccepted.Inc()
}

// SetActiveConnections sets the current count of tracked client connections.
func (c *Collector) SetActiveConnections(n int) {
	c.ConnectionsActive.Set(float64(n))
}

// ConnectionClosed records one client connection closed, tagged with why
// (e.g. "peer_closed", "error", "shutdown").
func (c *Collector) ConnectionClosed(reason string) {
	c.ConnectionsClosed.WithLabelValues(reason).Inc()
}

// RevocationApplied records n revocation entries folded into this worker's
// blacklist in one sync.
func (c *Collector) RevocationApplied(n int) {
	c.RevocationsApplied.Add(float64(n))
}

// SetRevocationListSize sets the current size of this worker's revocation
// blacklist.
func (c *Collector) SetRevocationListSize(n int) {
	c.RevocationListSize.Set(float64(n))
}

// EventLoopIteration records one iteration of this worker's event loop.
func (c *Collector) EventLoopIteration() {
	c.EventLoopIterations.Inc()
}

// BackendEvent records one backend readiness event, tagged by kind (e.g.
// "readable", "writable", "error").
func (c *Collector) BackendEvent(kind string) {
	c.BackendEventsHandled.WithLabelValues(kind).Inc()
}

// Render gathers every registered metric and encodes it as Prometheus text
// exposition format, matching the original's
// "text/plain; version=0.0.4" content type.
func (c *Collector) Render() (body []byte, contentType string) {
	families, err := c.registry.Gather()
	if err != nil {
		return nil, string(expfmt.NewFormat(expfmt.TypeTextPlain))
	}

	format := expfmt.NewFormat(expfmt.TypeTextPlain)
	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, format)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			continue
		}
	}
	return buf.Bytes(), string(format)
}

func workerIDLabel(id int) string {
	return fmt.Sprintf("%d", id)
}
