package health

import (
	"testing"
	"time"
)

func TestStatus_States(t *testing.T) {
	tests := []struct {
		name      string
		status    Status
		healthy   bool
		degraded  bool
		unhealthy bool
	}{
		{"healthy", NewHealthy("c", "ok"), true, false, false},
		{"degraded", NewDegraded("c", "slow"), false, true, false},
		{"unhealthy", NewUnhealthy("c", "down"), false, false, true},
		{"empty", Status{}, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.IsHealthy(); got != tt.healthy {
				t.Errorf("IsHealthy() = %v, want %v", got, tt.healthy)
			}
			if got := tt.status.IsDegraded(); got != tt.degraded {
				t.Errorf("IsDegraded() = %v, want %v", got, tt.degraded)
			}
			if got := tt.status.IsUnhealthy(); got != tt.unhealthy {
				t.Errorf("IsUnhealthy() = %v, want %v", got, tt.unhealthy)
			}
			if tt.status.Healthy != tt.healthy {
				t.Errorf("Healthy field = %v, want %v", tt.status.Healthy, tt.healthy)
			}
		})
	}
}

func TestFromConnection(t *testing.T) {
	tests := []struct {
		name        string
		conn        Connection
		wantStatus  string
		wantMessage string
	}{
		{
			name:        "connected is healthy",
			conn:        Connection{State: "connected", LastError: "old failure"},
			wantStatus:  "healthy",
			wantMessage: "connected",
		},
		{
			name:        "connecting is degraded",
			conn:        Connection{State: "connecting"},
			wantStatus:  "degraded",
			wantMessage: "connecting",
		},
		{
			name:        "disconnected carries sanitized error",
			conn:        Connection{State: "disconnected", LastError: "dial ws://10.0.0.5:8188/ws refused"},
			wantStatus:  "unhealthy",
			wantMessage: "disconnected: dial [URL] refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromConnection("transport", tt.conn)
			if got.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q", got.Status, tt.wantStatus)
			}
			if got.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", got.Message, tt.wantMessage)
			}
			if got.Component != "transport" {
				t.Errorf("Component = %q", got.Component)
			}
		})
	}
}

func TestFromConnection_Metrics(t *testing.T) {
	since := time.Now().Add(-time.Minute)
	got := FromConnection("transport", Connection{
		State:       "connected",
		Since:       since,
		Reconnects:  2,
		PendingJobs: 3,
	})

	if got.Metrics == nil {
		t.Fatal("expected metrics")
	}
	if got.Metrics.Reconnects != 2 || got.Metrics.PendingJobs != 3 {
		t.Errorf("unexpected metrics %+v", got.Metrics)
	}
	if got.Metrics.Uptime < time.Minute {
		t.Errorf("Uptime = %v, want >= 1m", got.Metrics.Uptime)
	}
}

func TestSanitizeErrorMessage(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"connect to http://backend:8188/prompt failed", "connect to [URL] failed"},
		{"host 192.168.1.20 unreachable", "host [IP] unreachable"},
		{"listen on :8188 failed", "listen on [PORT] failed"},
		{"auth token=abc123 rejected", "auth [REDACTED] rejected"},
	}

	for _, tt := range tests {
		if got := sanitizeErrorMessage(tt.in); got != tt.want {
			t.Errorf("sanitizeErrorMessage(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAggregate(t *testing.T) {
	if got := Aggregate("sys", nil); !got.IsHealthy() {
		t.Errorf("empty aggregate should be healthy, got %s", got.Status)
	}

	got := Aggregate("sys", []Status{NewHealthy("a", ""), NewDegraded("b", "")})
	if !got.IsDegraded() {
		t.Errorf("expected degraded, got %s", got.Status)
	}

	got = Aggregate("sys", []Status{NewUnhealthy("a", ""), NewDegraded("b", "")})
	if !got.IsUnhealthy() {
		t.Errorf("expected unhealthy, got %s", got.Status)
	}
	if len(got.SubStatuses) != 2 {
		t.Errorf("expected 2 sub-statuses, got %d", len(got.SubStatuses))
	}
}

func TestWithSubStatus_DoesNotAlias(t *testing.T) {
	base := NewHealthy("sys", "").WithSubStatus(NewHealthy("a", ""))
	one := base.WithSubStatus(NewHealthy("b", ""))
	two := base.WithSubStatus(NewHealthy("c", ""))

	if one.SubStatuses[1].Component != "b" || two.SubStatuses[1].Component != "c" {
		t.Error("sub-status slices should not share storage")
	}
}
