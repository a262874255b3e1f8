// Package metric provides Prometheus-based metrics for the generation
// protocol client.
//
// The package offers a registry holding the core protocol metrics (connection
// state, reconnects, inbound events, pending jobs, interrupts, subscriber
// drops and generation outcomes) plus registration of component-specific
// collectors through the MetricsRegistrar interface.
//
// # Basic Usage
//
//	registry := metric.NewMetricsRegistry()
//	http.Handle("/metrics", registry.Handler())
//
//	m := registry.CoreMetrics()
//	m.RecordMessage("executing")
//	m.RecordPending(table.Len())
//
// # Core Metrics
//
// All core metrics live under the genstream namespace:
//
//   - genstream_transport_connection_state (0=disconnected, 1=connecting, 2=connected)
//   - genstream_transport_reconnects_total{result}
//   - genstream_events_received_total{kind}
//   - genstream_events_dropped_total{reason}
//   - genstream_jobs_submitted_total, genstream_jobs_resolved_total{outcome}
//   - genstream_jobs_pending
//   - genstream_jobs_interrupts_total{status}
//   - genstream_subscribers_dropped_total{topic}
//   - genstream_generation_runs_total{outcome}, genstream_generation_duration_seconds
//
// Record methods are safe on a nil *Metrics, and CoreMetrics is safe on a nil
// *MetricsRegistry, so components accept an optional registry without guarding
// every call site.
package metric
