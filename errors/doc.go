// Package errors provides standardized error handling for the generation client.
//
// # Error Classification
//
// Errors fall into three classes used to drive retry decisions:
//
//   - Transient: network timeouts, refused connections, dropped sockets (retry recommended)
//   - Invalid: malformed requests, rejected jobs, unknown job ids (do not retry)
//   - Fatal: closed clients, invariant violations, bad configuration (stop)
//
// # Protocol Taxonomy
//
// Callers match protocol failures with errors.Is:
//
//	ErrConnection    cannot establish or re-establish the duplex connection
//	ErrSubmission    backend rejected a job (see *SubmissionError for the reason)
//	ErrNotFound      output query for a job id the backend does not know
//	ErrDuplicateJob  the same job id was registered twice
//	ErrPrecondition  generation request failed validation before any network call
//	ErrAborted       pending job cleared because the client shut down
//
// A job that completes without output is not an error; it is reported as an
// outcome by the generation package.
//
// # Error Wrapping Pattern
//
// All wrapping follows the format:
//
//	"component.method: action failed: %w"
//
// Three wrapper functions attach a class while preserving the chain:
//
//	errors.WrapTransient(err, "Transport", "Connect", "dial backend")
//	errors.WrapInvalid(err, "Client", "SubmitJob", "decode response")
//	errors.WrapFatal(err, "Table", "Register", "insert job")
//
// Connection and Precondition build the common protocol errors directly.
package errors
