// Package client is the protocol client for a generation backend.
//
// A Client composes the event stream transport, the demultiplexer and the
// job correlation table. Each Client gets a random client id at
// construction; the id scopes the event stream and tags every submission.
//
//	c, err := client.New(client.DefaultConfig("http://127.0.0.1:8188"))
//	if err := c.Connect(ctx); err != nil { ... }
//	defer c.Close(ctx)
//
//	jobID, handle, err := c.SubmitJob(ctx, workflow)
//	if err := handle.Wait(ctx); err != nil { ... }
//	outputs, err := c.FetchOutputs(ctx, jobID)
//
// # Subscriptions
//
// OnStatus, OnExecuting, OnProgress, OnPreview and OnConnection register
// callbacks and return an unsubscribe function. Every subscriber has its own
// bounded queue drained by one goroutine, so it sees notifications in
// arrival order and never blocks the receive path or other subscribers.
// When a queue is full the notification is dropped for that subscriber and
// counted. After unsubscribe returns nothing still queued is delivered; a
// callback already running may finish afterwards. Close waits for every
// queue to drain and must not be called from a callback.
//
// # Errors
//
// SubmitJob fails with *errors.SubmissionError (errors.IsSubmission) when the
// backend rejects the job and registers nothing in that case. FetchOutputs
// and Download fail with errors.ErrNotFound for unknown jobs or files.
// Network failures match errors.ErrConnection. InterruptJob is best effort:
// it logs delivery failures and never resolves the job itself.
//
// A dropped event stream does not fail pending jobs. The transport
// reconnects within its window and the job resolves when its terminal event
// arrives; Close aborts whatever is still pending.
package client
