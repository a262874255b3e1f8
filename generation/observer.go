package generation

import "github.com/c360/genstream/protocol"

// Observer receives live updates for a run, typically to drive a progress
// display. Calls arrive on subscriber goroutines, in event order per kind.
type Observer interface {
	OnState(jobID string, state State)
	OnProgress(p protocol.Progress)
	// OnPreview receives the newest frame and the most recent frames,
	// oldest first, including the newest.
	OnPreview(frame protocol.Preview, recent []protocol.Preview)
	// Reset clears display state; it is called once when the run ends.
	Reset()
}

// NopObserver ignores every update. Embed it to implement part of Observer.
type NopObserver struct{}

func (NopObserver) OnState(string, State) {}

func (NopObserver) OnProgress(protocol.Progress) {}

func (NopObserver) OnPreview(protocol.Preview, []protocol.Preview) {}

func (NopObserver) Reset() {}
