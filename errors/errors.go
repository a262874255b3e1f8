// Package errors provides the error taxonomy for the generation-protocol client.
// It keeps the transient/invalid/fatal classification used for retry decisions and
// adds the protocol sentinels callers match on with errors.Is.
package errors

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransient represents temporary errors that may be retried
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors due to invalid input or configuration
	ErrorInvalid
	// ErrorFatal represents unrecoverable errors that should stop processing
	ErrorFatal
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Protocol error sentinels
var (
	// ErrConnection means the duplex connection could not be established or re-established.
	ErrConnection = errors.New("connection error")
	// ErrSubmission means the backend rejected a job.
	ErrSubmission = errors.New("submission rejected")
	// ErrNotFound means the backend has no record of the job.
	ErrNotFound = errors.New("job not found")
	// ErrDuplicateJob means a job id was registered twice.
	ErrDuplicateJob = errors.New("duplicate job id")
	// ErrPrecondition means the caller supplied an invalid generation request.
	ErrPrecondition = errors.New("precondition failed")
	// ErrAborted is the outcome of a pending job cleared at client shutdown.
	ErrAborted = errors.New("job aborted")
	// ErrClosed is returned by operations on a closed client or transport.
	ErrClosed = errors.New("client closed")
)

// Configuration errors
var (
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")
)

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// SubmissionError carries the reason a backend gave for rejecting a job.
type SubmissionError struct {
	Status     int
	Type       string
	Message    string
	NodeErrors map[string]string
}

// Error implements the error interface
func (e *SubmissionError) Error() string {
	var b strings.Builder
	b.WriteString("submission rejected")
	if e.Status != 0 {
		fmt.Fprintf(&b, " (%d)", e.Status)
	}
	if e.Type != "" {
		b.WriteString(": ")
		b.WriteString(e.Type)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.NodeErrors) > 0 {
		nodes := make([]string, 0, len(e.NodeErrors))
		for node := range e.NodeErrors {
			nodes = append(nodes, node)
		}
		sort.Strings(nodes)
		fmt.Fprintf(&b, " [node errors: %s]", strings.Join(nodes, ","))
	}
	return b.String()
}

// Is reports SubmissionError as ErrSubmission
func (e *SubmissionError) Is(target error) bool {
	return target == ErrSubmission
}

// IsTransient checks if an error is transient and should be retried
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorTransient
	}

	if errors.Is(err, ErrConnection) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{"timeout", "connection refused", "connection reset", "temporary", "unavailable"} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// IsFatal checks if an error is fatal and should stop processing
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorFatal
	}

	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingConfig) ||
		errors.Is(err, ErrClosed) ||
		errors.Is(err, ErrDuplicateJob)
}

// IsInvalid checks if an error is due to invalid input
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorInvalid
	}

	return errors.Is(err, ErrPrecondition) ||
		errors.Is(err, ErrSubmission) ||
		errors.Is(err, ErrNotFound)
}

// Classify returns the error class for an error
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorTransient
	}
	if IsTransient(err) {
		return ErrorTransient
	}
	if IsFatal(err) {
		return ErrorFatal
	}
	if IsInvalid(err) {
		return ErrorInvalid
	}
	return ErrorTransient
}

// IsConnection reports whether err is a connection failure
func IsConnection(err error) bool { return errors.Is(err, ErrConnection) }

// IsSubmission reports whether err is a backend rejection
func IsSubmission(err error) bool { return errors.Is(err, ErrSubmission) }

// IsNotFound reports whether err is an unknown job lookup
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsPrecondition reports whether err is an invalid generation request
func IsPrecondition(err error) bool { return errors.Is(err, ErrPrecondition) }

// IsAborted reports whether err is a shutdown-cleared job
func IsAborted(err error) bool { return errors.Is(err, ErrAborted) }

// newClassified creates a new classified error.
// Use WrapTransient(), WrapFatal(), or WrapInvalid() instead.
func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps an error as transient with context
func WrapTransient(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorTransient, wrappedErr, component, method, wrappedErr.Error())
}

// WrapFatal wraps an error as fatal with context
func WrapFatal(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorFatal, wrappedErr, component, method, wrappedErr.Error())
}

// WrapInvalid wraps an error as invalid with context
func WrapInvalid(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorInvalid, wrappedErr, component, method, wrappedErr.Error())
}

// Connection wraps err so that it matches ErrConnection and is classified transient.
func Connection(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return WrapTransient(fmt.Errorf("%w: %w", ErrConnection, err), component, method, action)
}

// Precondition returns an invalid-class error matching ErrPrecondition.
func Precondition(component, method, reason string) error {
	return WrapInvalid(fmt.Errorf("%w: %s", ErrPrecondition, reason), component, method, "validate request")
}
