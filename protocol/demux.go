package protocol

import (
	stderrors "errors"
	"log/slog"

	"github.com/c360/genstream/metric"
)

// Resolver receives terminal job ids. jobtable.Table implements it.
type Resolver interface {
	Resolve(jobID string) bool
}

// Dispatcher fans decoded events out to subscribers
type Dispatcher interface {
	DispatchStatus(Status)
	DispatchExecuting(Executing)
	DispatchProgress(Progress)
	DispatchPreview(Preview)
}

// Demux decodes raw frames and routes them. Handle must be called from a
// single goroutine, in arrival order; the transport receive loop does this.
type Demux struct {
	resolver   Resolver
	dispatcher Dispatcher
	logger     *slog.Logger
	metrics    *metric.Metrics

	// job of the most recent non-terminal Executing event, used to attribute
	// binary previews and progress frames that carry no job id
	current string
}

// NewDemux creates a demultiplexer. A nil logger uses slog.Default().
func NewDemux(resolver Resolver, dispatcher Dispatcher, logger *slog.Logger, metrics *metric.Metrics) *Demux {
	if logger == nil {
		logger = slog.Default()
	}
	return &Demux{
		resolver:   resolver,
		dispatcher: dispatcher,
		logger:     logger.With("component", "demux"),
		metrics:    metrics,
	}
}

// Handle processes one inbound frame. Malformed frames and unknown kinds are
// dropped with a diagnostic; Handle never fails.
func (d *Demux) Handle(binary bool, payload []byte) {
	if binary {
		d.handleBinary(payload)
		return
	}

	ev, err := ParseText(payload)
	if err != nil {
		d.drop(err, len(payload))
		return
	}

	switch e := ev.(type) {
	case Status:
		d.metrics.RecordMessage(KindStatus)
		d.dispatcher.DispatchStatus(e)

	case Executing:
		d.metrics.RecordMessage(KindExecuting)
		d.handleExecuting(e)

	case Progress:
		d.metrics.RecordMessage(KindProgress)
		if e.JobID == "" {
			e.JobID = d.current
		}
		d.dispatcher.DispatchProgress(e)
	}
}

func (d *Demux) handleExecuting(e Executing) {
	if !e.Terminal() {
		d.current = e.JobID
		d.dispatcher.DispatchExecuting(e)
		return
	}

	if d.current == e.JobID {
		d.current = ""
	}
	if e.JobID == "" {
		// "interrupt current" style terminal with no id; nothing to correlate
		d.logger.Debug("Terminal event without job id")
	} else if !d.resolver.Resolve(e.JobID) {
		d.logger.Debug("Terminal event did not match a pending job", "job_id", e.JobID)
	}
	d.dispatcher.DispatchExecuting(e)
}

func (d *Demux) handleBinary(payload []byte) {
	preview, err := ParseBinary(payload)
	if err != nil {
		d.drop(err, len(payload))
		return
	}
	d.metrics.RecordMessage(KindPreview)
	preview.JobID = d.current
	d.dispatcher.DispatchPreview(preview)
}

func (d *Demux) drop(err error, size int) {
	if stderrors.Is(err, ErrUnknownKind) {
		d.metrics.RecordDrop("unknown_kind")
		d.logger.Debug("Dropped unknown event", "error", err)
		return
	}
	d.metrics.RecordDrop("malformed")
	d.logger.Warn("Dropped malformed message", "error", err, "bytes", size)
}
