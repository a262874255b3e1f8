// Package jobtable correlates backend job ids with pending completion handles.
//
// A job is registered when the backend accepts a submission and resolved when
// the event stream reports its terminal Executing event. Every handle is
// resolved exactly once: Completed by Resolve, or Aborted by Clear when the
// client shuts down.
//
//	h, err := table.Register(jobID)
//	...
//	table.Resolve(jobID) // from the receive path
//	...
//	if err := h.Wait(ctx); err != nil { ... }
//
// A terminal event may arrive before Register for the same id when the job
// finishes before the submission response is processed. Unmatched terminal
// ids are kept in a small LRU so the late Register returns an already
// completed handle. The LRU is not counted by Len.
package jobtable
