// Package metric holds the ingestion metrics collector. Every pipeline stage
// receives the same *Collector; counters are exported to Prometheus and can be
// read back as a Snapshot for periodic logging and the ops API.
package metric

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "sensor_ingest"

// Validation reasons that are not counted as "invalid".
const (
	ReasonValid = ""
	ReasonEmpty = "empty"
)

// Collector records pipeline events.
type Collector struct {
	registry *prometheus.Registry

	messagesReceived   *prometheus.CounterVec
	messagesOutcome    *prometheus.CounterVec
	validations        *prometheus.CounterVec
	drops              *prometheus.CounterVec
	sinkWrites         *prometheus.CounterVec
	alerts             *prometheus.CounterVec
	connectionErrors   *prometheus.CounterVec
	processingDuration *prometheus.HistogramVec

	mu    sync.Mutex
	state Snapshot
}

// NewCollector creates a collector backed by its own Prometheus registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messages",
			Name:      "received_total",
			Help:      "Total number of queue deliveries received",
		}, []string{"kind"}),

		messagesOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messages",
			Name:      "outcome_total",
			Help:      "Acknowledgement decisions by action (ack, reject, requeue)",
		}, []string{"kind", "action"}),

		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "validation",
			Name:      "records_total",
			Help:      "Validated records by result (valid, empty, invalid) and reason",
		}, []string{"kind", "result", "reason"}),

		drops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messages",
			Name:      "dropped_total",
			Help:      "Messages dropped outside validation (poison, unknown kind, transform)",
		}, []string{"kind", "reason"}),

		sinkWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "writes_total",
			Help:      "Sink writes by sink (durable, cache) and status",
		}, []string{"kind", "sink", "status"}),

		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "created_total",
			Help:      "Alerts created by type and severity",
		}, []string{"kind", "type", "severity"}),

		connectionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "errors_total",
			Help:      "Connection failures by component",
		}, []string{"component"}),

		processingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "processing",
			Name:      "duration_seconds",
			Help:      "Time from delivery to acknowledgement decision",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),

		state: newSnapshot(time.Now()),
	}

	c.registry.MustRegister(
		c.messagesReceived,
		c.messagesOutcome,
		c.validations,
		c.drops,
		c.sinkWrites,
		c.alerts,
		c.connectionErrors,
		c.processingDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry exposes the Prometheus registry for the /metrics handler.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) RecordReceived(kind string) {
	c.messagesReceived.WithLabelValues(kind).Inc()
	c.mu.Lock()
	c.state.Received++
	c.state.ByKind[kind]++
	c.mu.Unlock()
}

// RecordValidation counts one validator decision. reason is ReasonValid for
// accepted records and ReasonEmpty for empty ones; anything else is invalid.
func (c *Collector) RecordValidation(kind, reason string) {
	result := "invalid"
	switch reason {
	case ReasonValid:
		result = "valid"
	case ReasonEmpty:
		result = "empty"
	}
	c.validations.WithLabelValues(kind, result, reason).Inc()

	c.mu.Lock()
	defer c.mu.Unlock()
	v := &c.state.Validation
	v.Total++
	switch result {
	case "valid":
		v.Valid++
		return
	case "empty":
		v.Empty++
	default:
		v.Invalid++
	}
	v.RejectionReasons[reason]++
}

func (c *Collector) RecordPoison(kind string) {
	c.drops.WithLabelValues(kind, "poison").Inc()
	c.mu.Lock()
	c.state.Poison++
	c.mu.Unlock()
}

// RecordDropped counts a message dropped after decoding for a reason other
// than validation (unknown kind, transform rejection).
func (c *Collector) RecordDropped(kind, reason string) {
	c.drops.WithLabelValues(kind, reason).Inc()
	c.mu.Lock()
	c.state.Dropped++
	c.mu.Unlock()
}

func (c *Collector) RecordDurableWrite(kind string, err error) {
	c.sinkWrites.WithLabelValues(kind, "durable", status(err)).Inc()
	c.mu.Lock()
	if err != nil {
		c.state.DurableFailures++
	} else {
		c.state.DurableWrites++
	}
	c.mu.Unlock()
}

func (c *Collector) RecordCacheWrite(kind string, err error) {
	c.sinkWrites.WithLabelValues(kind, "cache", status(err)).Inc()
	c.mu.Lock()
	if err != nil {
		c.state.CacheFailures++
	} else {
		c.state.CacheWrites++
	}
	c.mu.Unlock()
}

func (c *Collector) RecordAlert(kind, alertType, severity string) {
	c.alerts.WithLabelValues(kind, alertType, severity).Inc()
	c.mu.Lock()
	c.state.AlertsCreated++
	c.state.AlertsBySeverity[severity]++
	c.mu.Unlock()
}

// RecordOutcome counts the acknowledgement decision for one delivery.
func (c *Collector) RecordOutcome(kind, action string, elapsed time.Duration) {
	c.messagesOutcome.WithLabelValues(kind, action).Inc()
	c.processingDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	c.mu.Lock()
	switch action {
	case "ack":
		c.state.Acked++
	case "reject":
		c.state.Rejected++
	case "requeue":
		c.state.Requeued++
	}
	c.state.LastProcessed = time.Now()
	c.mu.Unlock()
}

func (c *Collector) RecordConnectionError(component string) {
	c.connectionErrors.WithLabelValues(component).Inc()
	c.mu.Lock()
	c.state.ConnectionErrors++
	c.mu.Unlock()
}

// Snapshot returns a copy of the current counters with derived rates filled in.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state.clone()
	s.Uptime = time.Since(s.StartedAt).Round(time.Second).String()
	if s.Validation.Total > 0 {
		s.Validation.ValidityRate = float64(s.Validation.Valid) / float64(s.Validation.Total)
		s.Validation.EmptyRate = float64(s.Validation.Empty) / float64(s.Validation.Total)
	}
	return s
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
