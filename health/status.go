// Package health reports the health of the protocol client
package health

import (
	"regexp"
	"strings"
	"time"
)

var (
	urlRegex        = regexp.MustCompile(`(https?|wss?|nats)://[^\s]+`)
	ipAddrRegex     = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	portRegex       = regexp.MustCompile(`:\d{2,5}\b`)
	credentialRegex = regexp.MustCompile(`(?i)(password|token|key|secret|credential)[^a-zA-Z]*[:=][^,\s}]+`)
)

// Status represents the health state of a component or system
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"`
	Status      string    `json:"status"` // "healthy", "unhealthy", "degraded"
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
	Metrics     *Metrics  `json:"metrics,omitempty"`
}

// Metrics contains health-related counters
type Metrics struct {
	Uptime      time.Duration `json:"uptime"`
	Reconnects  int64         `json:"reconnects"`
	PendingJobs int           `json:"pending_jobs"`
	LastEvent   time.Time     `json:"last_event,omitempty"`
}

// Connection is a snapshot of the transport as seen by the client
type Connection struct {
	State       string
	LastError   string
	Since       time.Time
	Reconnects  int64
	PendingJobs int
	LastEvent   time.Time
}

// IsHealthy returns true if the status is healthy
func (s Status) IsHealthy() bool {
	return s.Status == "healthy"
}

// IsDegraded returns true if the status is degraded
func (s Status) IsDegraded() bool {
	return s.Status == "degraded"
}

// IsUnhealthy returns true if the status is unhealthy
func (s Status) IsUnhealthy() bool {
	return s.Status == "unhealthy"
}

// WithSubStatus adds a sub-status and returns a copy
func (s Status) WithSubStatus(subStatus Status) Status {
	subs := make([]Status, len(s.SubStatuses), len(s.SubStatuses)+1)
	copy(subs, s.SubStatuses)
	s.SubStatuses = append(subs, subStatus)
	return s
}

// FromConnection maps a transport snapshot onto a health status.
// Connected is healthy, connecting (including reconnection) is degraded,
// anything else is unhealthy. Error text is sanitized.
func FromConnection(name string, c Connection) Status {
	var status Status
	switch c.State {
	case "connected":
		status = NewHealthy(name, "connected")
	case "connecting":
		status = NewDegraded(name, "connecting")
	default:
		status = NewUnhealthy(name, "disconnected")
	}

	if c.LastError != "" && !status.IsHealthy() {
		status.Message += ": " + sanitizeErrorMessage(c.LastError)
	}

	status.Metrics = &Metrics{
		Reconnects:  c.Reconnects,
		PendingJobs: c.PendingJobs,
		LastEvent:   c.LastEvent,
	}
	if !c.Since.IsZero() {
		status.Metrics.Uptime = time.Since(c.Since)
	}
	return status
}

// sanitizeErrorMessage strips URLs, addresses and credentials from error text
// before it is exposed on a health endpoint.
func sanitizeErrorMessage(err string) string {
	if err == "" {
		return ""
	}

	sanitized := urlRegex.ReplaceAllString(err, "[URL]")
	sanitized = ipAddrRegex.ReplaceAllString(sanitized, "[IP]")
	sanitized = portRegex.ReplaceAllString(sanitized, "[PORT]")

	lower := strings.ToLower(sanitized)
	for _, word := range []string{"password", "token", "key", "secret", "credential"} {
		if strings.Contains(lower, word) {
			sanitized = credentialRegex.ReplaceAllString(sanitized, "[REDACTED]")
			break
		}
	}

	return sanitized
}
