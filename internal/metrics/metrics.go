// Package metrics holds the Prometheus collectors of the graph engine.
//
// A nil *Metrics is valid and records nothing, so callers never need to
// check whether metrics are enabled.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "streamgrid"

// Metrics holds Prometheus metrics for graph runs.
type Metrics struct {
	// Stream traffic
	packetsAdded  *prometheus.CounterVec // By stream
	throttledAdds *prometheus.CounterVec // By stream

	// Node execution
	processCalls    *prometheus.CounterVec   // By node
	processErrors   *prometheus.CounterVec   // By node
	processDuration *prometheus.HistogramVec // By node

	// Backpressure
	queueDepth *prometheus.GaugeVec // By node and port
}

// New creates the collectors and registers them with reg. A nil reg
// disables metrics and returns nil. Collectors already registered by an
// earlier graph on the same registry are reused.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, nil // Metrics disabled
	}

	m := &Metrics{
		packetsAdded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_added_total",
			Help:      "Total number of packets added to streams",
		}, []string{"stream"}),

		throttledAdds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "throttled_adds_total",
			Help:      "Total number of graph input adds that waited for queue space",
		}, []string{"stream"}),

		processCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_calls_total",
			Help:      "Total number of calculator Process calls",
		}, []string{"node"}),

		processErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_errors_total",
			Help:      "Total number of calculator calls that returned an error",
		}, []string{"node"}),

		processDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "process_duration_seconds",
			Help:      "Calculator Process duration in seconds",
			Buckets:   []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 1},
		}, []string{"node"}),

		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Current number of packets waiting in a node input queue",
		}, []string{"node", "port"}),
	}

	var err error
	if m.packetsAdded, err = register(reg, m.packetsAdded); err != nil {
		return nil, err
	}
	if m.throttledAdds, err = register(reg, m.throttledAdds); err != nil {
		return nil, err
	}
	if m.processCalls, err = register(reg, m.processCalls); err != nil {
		return nil, err
	}
	if m.processErrors, err = register(reg, m.processErrors); err != nil {
		return nil, err
	}
	if m.processDuration, err = register(reg, m.processDuration); err != nil {
		return nil, err
	}
	if m.queueDepth, err = register(reg, m.queueDepth); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// PacketAdded counts a packet added to stream.
func (m *Metrics) PacketAdded(stream string) {
	if m == nil {
		return
	}
	m.packetsAdded.WithLabelValues(stream).Inc()
}

// Throttled counts a graph input add that had to wait for queue space.
func (m *Metrics) Throttled(stream string) {
	if m == nil {
		return
	}
	m.throttledAdds.WithLabelValues(stream).Inc()
}

// RecordProcess records one calculator call.
func (m *Metrics) RecordProcess(node string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.processCalls.WithLabelValues(node).Inc()
	m.processDuration.WithLabelValues(node).Observe(duration.Seconds())
	if err != nil {
		m.processErrors.WithLabelValues(node).Inc()
	}
}

// SetQueueDepth records the length of an input queue.
func (m *Metrics) SetQueueDepth(node string, port, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(node, strconv.Itoa(port)).Set(float64(depth))
}
