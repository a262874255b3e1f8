// Package generation runs generation requests end to end.
//
// An Orchestrator takes a Request through
//
//	Idle -> Submitted -> Running -> Completed | Failed | Cancelled
//
// Preconditions (a workflow, at least one output slot, an output directory)
// are checked before any network call and fail with errors.ErrPrecondition.
// A run subscribes to previews and progress before submitting, awaits the
// job's completion handle, fetches outputs and hands every artifact of the
// declared slots to a PostProcessor (FileSink by default), downloading up to
// DownloadConcurrency artifacts at a time.
//
// Cancelling the context while the job runs sends an interrupt in the
// background, bounded by the interrupt timeout, and returns a Cancelled
// result with a nil error. A finished job whose primary slot (the first
// output slot) is absent or empty returns NoOutput, also without error.
//
// Every exit path unsubscribes, resets the Observer and releases the preview
// ring buffer before Run returns.
package generation
