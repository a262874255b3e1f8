// Package buffer provides a generic, thread-safe ring buffer that discards
// its oldest item when full.
//
// The generation orchestrator keeps the most recent preview frames of a run
// in one so late observers can catch up, and holds events that arrive before
// the job id is known in others. Every buffer is cleared when the run ends:
//
//	previews := buffer.NewCircularBuffer[protocol.Preview](8,
//	    buffer.WithDropCounter[protocol.Preview](dropped))
//	_ = previews.Write(frame)
//	last, ok := previews.Latest()
//	previews.Clear()
//
// Drop callbacks run outside the buffer lock, so they may call back into the
// buffer.
package buffer
