package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the protocol-level metrics shared by the transport, the
// demultiplexer, the client and the generation orchestrator. All Record
// methods are safe on a nil receiver so components can run without metrics.
type Metrics struct {
	// Transport metrics
	ConnectionState prometheus.Gauge
	Reconnects      *prometheus.CounterVec

	// Event stream metrics
	MessagesReceived *prometheus.CounterVec
	MessagesDropped  *prometheus.CounterVec

	// Job metrics
	JobsSubmitted      prometheus.Counter
	JobsResolved       *prometheus.CounterVec
	PendingJobs        prometheus.Gauge
	Interrupts         *prometheus.CounterVec
	NotificationsDrops *prometheus.CounterVec

	// Generation metrics
	Generations          *prometheus.CounterVec
	GenerationDuration   prometheus.Histogram
	PreviewFramesDropped prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all protocol metrics
func NewMetrics() *Metrics {
	return &Metrics{
		ConnectionState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "genstream",
				Subsystem: "transport",
				Name:      "connection_state",
				Help:      "Connection state (0=disconnected, 1=connecting, 2=connected)",
			},
		),

		Reconnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "genstream",
				Subsystem: "transport",
				Name:      "reconnects_total",
				Help:      "Reconnection rounds by result",
			},
			[]string{"result"},
		),

		MessagesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "genstream",
				Subsystem: "events",
				Name:      "received_total",
				Help:      "Inbound events by kind",
			},
			[]string{"kind"},
		),

		MessagesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "genstream",
				Subsystem: "events",
				Name:      "dropped_total",
				Help:      "Inbound messages dropped by reason",
			},
			[]string{"reason"},
		),

		JobsSubmitted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "genstream",
				Subsystem: "jobs",
				Name:      "submitted_total",
				Help:      "Jobs accepted by the backend",
			},
		),

		JobsResolved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "genstream",
				Subsystem: "jobs",
				Name:      "resolved_total",
				Help:      "Pending jobs resolved by outcome",
			},
			[]string{"outcome"},
		),

		PendingJobs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "genstream",
				Subsystem: "jobs",
				Name:      "pending",
				Help:      "Jobs awaiting their terminal event",
			},
		),

		Interrupts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "genstream",
				Subsystem: "jobs",
				Name:      "interrupts_total",
				Help:      "Interrupt requests by status",
			},
			[]string{"status"},
		),

		NotificationsDrops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "genstream",
				Subsystem: "subscribers",
				Name:      "dropped_total",
				Help:      "Notifications dropped because a subscriber queue was full",
			},
			[]string{"topic"},
		),

		Generations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "genstream",
				Subsystem: "generation",
				Name:      "runs_total",
				Help:      "Generation runs by outcome",
			},
			[]string{"outcome"},
		),

		GenerationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "genstream",
				Subsystem: "generation",
				Name:      "duration_seconds",
				Help:      "Generation run duration from submission to cleanup",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
		),

		PreviewFramesDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "genstream",
				Subsystem: "generation",
				Name:      "preview_frames_dropped_total",
				Help:      "Preview frames pushed out of a run's recent-frame buffer",
			},
		),
	}
}

func (c *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.ConnectionState,
		c.Reconnects,
		c.MessagesReceived,
		c.MessagesDropped,
		c.JobsSubmitted,
		c.JobsResolved,
		c.PendingJobs,
		c.Interrupts,
		c.NotificationsDrops,
		c.Generations,
		c.GenerationDuration,
		c.PreviewFramesDropped,
	}
}

// RecordConnectionState updates the connection state gauge
func (c *Metrics) RecordConnectionState(state int) {
	if c == nil {
		return
	}
	c.ConnectionState.Set(float64(state))
}

// RecordReconnect counts a finished reconnection round
func (c *Metrics) RecordReconnect(success bool) {
	if c == nil {
		return
	}
	result := "failed"
	if success {
		result = "ok"
	}
	c.Reconnects.WithLabelValues(result).Inc()
}

// RecordMessage counts an inbound event of the given kind
func (c *Metrics) RecordMessage(kind string) {
	if c == nil {
		return
	}
	c.MessagesReceived.WithLabelValues(kind).Inc()
}

// RecordDrop counts a dropped inbound message
func (c *Metrics) RecordDrop(reason string) {
	if c == nil {
		return
	}
	c.MessagesDropped.WithLabelValues(reason).Inc()
}

// RecordSubmitted counts an accepted job
func (c *Metrics) RecordSubmitted() {
	if c == nil {
		return
	}
	c.JobsSubmitted.Inc()
}

// RecordResolved counts a resolved pending job
func (c *Metrics) RecordResolved(outcome string) {
	if c == nil {
		return
	}
	c.JobsResolved.WithLabelValues(outcome).Inc()
}

// RecordPending sets the pending job gauge
func (c *Metrics) RecordPending(n int) {
	if c == nil {
		return
	}
	c.PendingJobs.Set(float64(n))
}

// RecordInterrupt counts an interrupt request
func (c *Metrics) RecordInterrupt(delivered bool) {
	if c == nil {
		return
	}
	status := "failed"
	if delivered {
		status = "sent"
	}
	c.Interrupts.WithLabelValues(status).Inc()
}

// RecordNotificationDrop counts a notification a slow subscriber missed
func (c *Metrics) RecordNotificationDrop(topic string) {
	if c == nil {
		return
	}
	c.NotificationsDrops.WithLabelValues(topic).Inc()
}

// RecordGeneration counts a finished generation run
func (c *Metrics) RecordGeneration(outcome string, duration time.Duration) {
	if c == nil {
		return
	}
	c.Generations.WithLabelValues(outcome).Inc()
	c.GenerationDuration.Observe(duration.Seconds())
}

// PreviewDropCounter returns the counter for preview frames a run's buffer
// discarded, nil on a nil receiver
func (c *Metrics) PreviewDropCounter() prometheus.Counter {
	if c == nil {
		return nil
	}
	return c.PreviewFramesDropped
}
