package generation

import (
	"time"

	"github.com/c360/genstream/client"
)

// State is the lifecycle position of one generation request
type State int

const (
	StateIdle State = iota
	StateSubmitted
	StateRunning
	StateCompleted
	StateFailed
	StateCancelled
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitted:
		return "submitted"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Outcome is how a generation run ended
type Outcome int

const (
	// Completed means the primary output slot produced artifacts
	Completed Outcome = iota
	// NoOutput means the job finished but the primary slot was absent or empty
	NoOutput
	// Cancelled means the caller cancelled the run
	Cancelled
	// Failed means the run ended with an error
	Failed
)

// String returns the string representation of Outcome
func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case NoOutput:
		return "no_output"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Request describes one generation
type Request struct {
	// Name labels notifications and logs
	Name string
	// Workflow is the job graph sent to the backend as is
	Workflow any
	// OutputSlots are the node ids whose artifacts are collected. The first
	// one is the primary slot.
	OutputSlots []string
}

// Result is the outcome of a generation run
type Result struct {
	JobID    string
	Outcome  Outcome
	Outputs  client.Outputs
	Files    []string
	Duration time.Duration
}
