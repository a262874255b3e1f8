package health

import "time"

func newStatus(component, state, message string) Status {
	return Status{
		Component: component,
		Healthy:   state == "healthy",
		Status:    state,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewHealthy creates a new healthy status
func NewHealthy(component, message string) Status {
	return newStatus(component, "healthy", message)
}

// NewUnhealthy creates a new unhealthy status
func NewUnhealthy(component, message string) Status {
	return newStatus(component, "unhealthy", message)
}

// NewDegraded creates a new degraded status
func NewDegraded(component, message string) Status {
	return newStatus(component, "degraded", message)
}

// Aggregate reports the worst of the sub-statuses: unhealthy beats degraded
// beats healthy. No sub-statuses is healthy.
func Aggregate(component string, subStatuses []Status) Status {
	worst := "healthy"
	for _, sub := range subStatuses {
		switch {
		case sub.IsUnhealthy():
			worst = "unhealthy"
		case sub.IsDegraded() && worst == "healthy":
			worst = "degraded"
		}
	}

	var status Status
	switch worst {
	case "unhealthy":
		status = NewUnhealthy(component, "one or more sub-components are unhealthy")
	case "degraded":
		status = NewDegraded(component, "one or more sub-components are degraded")
	default:
		status = NewHealthy(component, "all sub-components are healthy")
	}

	if len(subStatuses) > 0 {
		status.SubStatuses = make([]Status, len(subStatuses))
		copy(status.SubStatuses, subStatuses)
	}
	return status
}
