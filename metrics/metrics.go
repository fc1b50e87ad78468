// Package metrics exposes a Prometheus Collector for a pgconn.Client,
// adapted from the teacher's internal/metrics.Collector: the same
// custom-registry, WithLabelValues-per-event shape, generalized from
// per-tenant pool gauges to per-connection request gauges.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds every Prometheus metric pgconn exposes about one
// connection's request lifecycle and type cache.
type Collector struct {
	Registry *prometheus.Registry

	connectionsActive *prometheus.GaugeVec
	connectionsClosed *prometheus.CounterVec
	requestsInFlight  *prometheus.GaugeVec
	requestDuration   *prometheus.HistogramVec
	typeCacheSize     *prometheus.GaugeVec
	reconnectsTotal   *prometheus.CounterVec
	failoversTotal    *prometheus.CounterVec
}

// New creates and registers all metrics on a fresh registry. Safe to call
// multiple times (e.g. in tests, or once per Client) since each call owns
// an independent registry.
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		Registry: reg,
		connectionsActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pgconn_connections_active",
				Help: "Number of connections currently established, by host",
			},
			[]string{"host"},
		),
		connectionsClosed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pgconn_connections_closed_total",
				Help: "Total connections that have terminated, by host and reason",
			},
			[]string{"host", "reason"},
		),
		requestsInFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pgconn_requests_in_flight",
				Help: "Number of requests submitted but not yet acknowledged, by host",
			},
			[]string{"host"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pgconn_request_duration_seconds",
				Help:    "Duration from request submission to ReadyForQuery, by operation",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
			},
			[]string{"operation"},
		),
		typeCacheSize: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pgconn_type_cache_size",
				Help: "Number of non-builtin OIDs resolved and cached, by host",
			},
			[]string{"host"},
		),
		reconnectsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pgconn_reconnects_total",
				Help: "Total reconnect attempts, by host",
			},
			[]string{"host"},
		),
		failoversTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pgconn_failovers_total",
				Help: "Total times host failover moved past a candidate host",
			},
			[]string{"host"},
		),
	}

	reg.MustRegister(
		c.connectionsActive,
		c.connectionsClosed,
		c.requestsInFlight,
		c.requestDuration,
		c.typeCacheSize,
		c.reconnectsTotal,
		c.failoversTotal,
	)
	return c
}

// ConnectionOpened marks a connection to host as established.
func (c *Collector) ConnectionOpened(host string) {
	c.connectionsActive.WithLabelValues(host).Inc()
}

// ConnectionClosed marks a connection to host as terminated, and records
// the terminal reason ("clean", "io", "terminal_error").
func (c *Collector) ConnectionClosed(host, reason string) {
	c.connectionsActive.WithLabelValues(host).Dec()
	c.connectionsClosed.WithLabelValues(host, reason).Inc()
}

// RequestStarted increments the in-flight gauge for host.
func (c *Collector) RequestStarted(host string) {
	c.requestsInFlight.WithLabelValues(host).Inc()
}

// RequestFinished decrements the in-flight gauge and observes the
// operation's duration (e.g. "query", "execute", "copy_in").
func (c *Collector) RequestFinished(host, operation string, d time.Duration) {
	c.requestsInFlight.WithLabelValues(host).Dec()
	c.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// SetTypeCacheSize records the resolver's current cache size for host.
func (c *Collector) SetTypeCacheSize(host string, size int) {
	c.typeCacheSize.WithLabelValues(host).Set(float64(size))
}

// ReconnectAttempted increments the reconnect counter for host.
func (c *Collector) ReconnectAttempted(host string) {
	c.reconnectsTotal.WithLabelValues(host).Inc()
}

// HostFailedOver increments the failover counter for host, recorded when
// Connect moves past host to the next candidate.
func (c *Collector) HostFailedOver(host string) {
	c.failoversTotal.WithLabelValues(host).Inc()
}

// RemoveHost deletes every metric series labeled with host, analogous to
// the teacher's Collector.RemoveTenant for a decommissioned tenant.
func (c *Collector) RemoveHost(host string) {
	c.connectionsActive.DeleteLabelValues(host)
	c.connectionsClosed.DeletePartialMatch(prometheus.Labels{"host": host})
	c.requestsInFlight.DeleteLabelValues(host)
	c.typeCacheSize.DeleteLabelValues(host)
	c.reconnectsTotal.DeleteLabelValues(host)
	c.failoversTotal.DeleteLabelValues(host)
}
