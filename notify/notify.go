package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
)

// Kind classifies a notification
type Kind string

// Notification kinds raised by generation runs
const (
	KindCompleted        Kind = "completed"
	KindFileAdded        Kind = "file_added"
	KindNoOutput         Kind = "no_output"
	KindCancelled        Kind = "cancelled"
	KindSubmissionFailed Kind = "submission_failed"
	KindFailed           Kind = "failed"
)

// Notification is a user-facing event about a generation run
type Notification struct {
	Kind    Kind      `json:"kind"`
	JobID   string    `json:"job_id,omitempty"`
	Name    string    `json:"name,omitempty"`
	Message string    `json:"message,omitempty"`
	Path    string    `json:"path,omitempty"`
	Time    time.Time `json:"time"`
}

// Notifier delivers notifications. Implementations must be safe for
// concurrent use.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to a structured logger
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier. A nil logger uses slog.Default().
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "notify")}
}

// Notify logs n; failures at Warn, everything else at Info
func (l *LogNotifier) Notify(ctx context.Context, n Notification) error {
	level := slog.LevelInfo
	if n.Kind == KindFailed || n.Kind == KindSubmissionFailed {
		level = slog.LevelWarn
	}
	l.logger.Log(ctx, level, "Notification",
		"kind", string(n.Kind), "job_id", n.JobID, "name", n.Name, "message", n.Message, "path", n.Path)
	return nil
}

// Multi fans each notification out to every notifier and aggregates errors
func Multi(notifiers ...Notifier) Notifier {
	return multi(notifiers)
}

type multi []Notifier

func (m multi) Notify(ctx context.Context, n Notification) error {
	var result *multierror.Error
	for _, notifier := range m {
		if err := notifier.Notify(ctx, n); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Recorder keeps notifications in memory
type Recorder struct {
	mu            sync.Mutex
	notifications []Notification
}

// Notify records n
func (r *Recorder) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, n)
	return nil
}

// Notifications returns the recorded notifications in order
func (r *Recorder) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.notifications...)
}

// Kinds returns the kinds of the recorded notifications in order
func (r *Recorder) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]Kind, len(r.notifications))
	for i, n := range r.notifications {
		kinds[i] = n.Kind
	}
	return kinds
}
