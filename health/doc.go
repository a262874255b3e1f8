// Package health provides health reporting for the protocol client.
//
// The client builds a Status from a Connection snapshot of its transport and
// aggregates it with the job table. The CLI serves the result on /healthz.
//
// # Health States
//
//   - healthy: transport connected
//   - degraded: transport connecting or reconnecting
//   - unhealthy: transport disconnected or closed
//
// # Usage
//
//	st := health.FromConnection("transport", health.Connection{
//	    State:       "connected",
//	    Since:       connectedAt,
//	    PendingJobs: table.Len(),
//	})
//	system := health.Aggregate("genstream", []health.Status{st})
//
// Error text copied into a Status is sanitized: URLs, IP addresses, ports and
// credential-looking pairs are replaced with placeholders.
package health
