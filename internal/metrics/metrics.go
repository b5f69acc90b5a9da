// Package metrics exposes Prometheus instrumentation for the TCP
// stack's ingress/egress and connection lifecycle. Registration is the
// caller's responsibility (internal/tcpstack never imports net/http);
// cmd/tuntcp wires a Collector's registry into promhttp.Handler.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collector bundles the counters and gauges the stack reports against.
// A nil *Collector is valid and every method on it is a no-op, so
// instrumentation can be threaded through internal/tcpstack
// unconditionally.
type Collector struct {
	SegmentsIn        prometheus.Counter
	SegmentsOut       prometheus.Counter
	ChecksumDrops     prometheus.Counter
	BindCollisions    prometheus.Counter
	ActiveConnections prometheus.Gauge
}

// New builds a Collector and registers its metrics against reg.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		SegmentsIn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tuntcp",
			Name:      "segments_in_total",
			Help:      "TCP segments accepted off the TUN device.",
		}),
		SegmentsOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tuntcp",
			Name:      "segments_out_total",
			Help:      "TCP segments written to the TUN device.",
		}),
		ChecksumDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tuntcp",
			Name:      "checksum_drops_total",
			Help:      "Datagrams dropped for bad checksum, bad version, or truncation.",
		}),
		BindCollisions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tuntcp",
			Name:      "bind_collisions_total",
			Help:      "Bind calls that failed because the port already had a listener.",
		}),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tuntcp",
			Name:      "active_connections",
			Help:      "Connections currently tracked by the connection manager.",
		}),
	}
	reg.MustRegister(c.SegmentsIn, c.SegmentsOut, c.ChecksumDrops, c.BindCollisions, c.ActiveConnections)
	return c
}

// IncSegmentsIn records one segment accepted off the TUN device.
func (c *Collector) IncSegmentsIn() {
	if c != nil {
		c.SegmentsIn.Inc()
	}
}

// IncSegmentsOut records one segment written to the TUN device.
func (c *Collector) IncSegmentsOut() {
	if c != nil {
		c.SegmentsOut.Inc()
	}
}

// IncChecksumDrops records one dropped malformed/unverifiable datagram.
func (c *Collector) IncChecksumDrops() {
	if c != nil {
		c.ChecksumDrops.Inc()
	}
}

// IncBindCollisions records one failed Bind call.
func (c *Collector) IncBindCollisions() {
	if c != nil {
		c.BindCollisions.Inc()
	}
}

// SetActiveConnections reports the connection manager's current
// registry size.
func (c *Collector) SetActiveConnections(n int) {
	if c != nil {
		c.ActiveConnections.Set(float64(n))
	}
}
