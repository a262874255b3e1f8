// Package testutil provides test fixtures for genstream packages.
//
// FakeBackend is an in-process generation backend built on httptest, chi and
// gorilla/websocket. It serves the same endpoints a real backend does:
//
//	GET  /ws?clientId=ID   event stream (a status frame is sent on connect)
//	POST /prompt           accepts a job and returns a fresh prompt_id
//	GET  /history/{id}     outputs recorded with SetOutputs, {} otherwise
//	POST /interrupt        recorded for Interrupts / WaitInterrupt
//	GET  /view             files registered with AddFile
//
// Tests drive the event stream directly:
//
//	backend := testutil.NewFakeBackend(t)
//	backend.OnSubmit(func(s testutil.Submission) {
//		backend.SendProgress(s.JobID, "3", 1, 20)
//		backend.Complete(s.JobID, "3", "9")
//	})
//
// DropConnections and RefuseConnections simulate outages.
//
// RunNATSServer starts an embedded NATS server for notifier tests, and
// Workflow returns a small job graph.
package testutil
