package generation

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/c360/genstream/client"
	"github.com/c360/genstream/errors"
	"github.com/c360/genstream/jobtable"
	"github.com/c360/genstream/metric"
	"github.com/c360/genstream/notify"
	"github.com/c360/genstream/pkg/buffer"
	"github.com/c360/genstream/protocol"
)

// Backend is the part of the protocol client a run needs.
// *client.Client implements it.
type Backend interface {
	SubmitJob(ctx context.Context, workflow any) (string, *jobtable.Handle, error)
	InterruptJob(ctx context.Context, jobID string) error
	FetchOutputs(ctx context.Context, jobID string) (client.Outputs, error)
	Download(ctx context.Context, artifact client.ArtifactDescriptor) (io.ReadCloser, error)
	OnProgress(fn func(protocol.Progress)) func()
	OnPreview(fn func(protocol.Preview)) func()
}

var _ Backend = (*client.Client)(nil)

// Orchestrator runs generation requests against a Backend
type Orchestrator struct {
	backend   Backend
	outputDir string

	observer            Observer
	notifier            notify.Notifier
	post                PostProcessor
	interruptTimeout    time.Duration
	previewFrames       int
	downloadConcurrency int
	logger              *slog.Logger
	metrics             *metric.Metrics

	interrupts sync.WaitGroup
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithObserver receives live progress and previews
func WithObserver(o Observer) Option {
	return func(g *Orchestrator) { g.observer = o }
}

// WithNotifier receives user-facing notifications
func WithNotifier(n notify.Notifier) Option {
	return func(g *Orchestrator) { g.notifier = n }
}

// WithPostProcessor replaces the default FileSink
func WithPostProcessor(p PostProcessor) Option {
	return func(g *Orchestrator) { g.post = p }
}

// WithInterruptTimeout bounds the interrupt sent on cancellation
func WithInterruptTimeout(d time.Duration) Option {
	return func(g *Orchestrator) { g.interruptTimeout = d }
}

// WithPreviewFrames sets how many recent previews are kept per run
func WithPreviewFrames(n int) Option {
	return func(g *Orchestrator) { g.previewFrames = n }
}

// WithDownloadConcurrency bounds parallel artifact downloads per run
func WithDownloadConcurrency(n int) Option {
	return func(g *Orchestrator) { g.downloadConcurrency = n }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(g *Orchestrator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithMetrics records run outcomes and durations
func WithMetrics(m *metric.Metrics) Option {
	return func(g *Orchestrator) { g.metrics = m }
}

// New creates an Orchestrator that stores artifacts under outputDir.
// An empty outputDir makes every Run fail its preconditions.
func New(backend Backend, outputDir string, opts ...Option) *Orchestrator {
	g := &Orchestrator{
		backend:             backend,
		outputDir:           outputDir,
		observer:            NopObserver{},
		interruptTimeout:    3 * time.Second,
		previewFrames:       8,
		downloadConcurrency: 4,
		logger:              slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.notifier == nil {
		g.notifier = notify.NewLogNotifier(g.logger)
	}
	if g.post == nil {
		g.post = NewFileSink(outputDir, g.notifier)
	}
	if g.previewFrames <= 0 {
		g.previewFrames = 1
	}
	if g.downloadConcurrency <= 0 {
		g.downloadConcurrency = 1
	}
	g.logger = g.logger.With("component", "generation")
	return g
}

// Run performs one generation: submit, await, fetch outputs and post-process.
//
// Precondition and submission failures return an error before anything is
// awaited. Cancelling ctx while the job runs sends a detached interrupt and
// returns a Cancelled result with a nil error. A job that finishes without
// artifacts in the primary slot returns NoOutput with a nil error.
func (g *Orchestrator) Run(ctx context.Context, req Request) (result Result, err error) {
	start := time.Now()
	if err := g.check(req); err != nil {
		g.metrics.RecordGeneration(Failed.String(), time.Since(start))
		return Result{Outcome: Failed}, err
	}

	r := g.newRun(req)
	defer func() {
		if cerr := r.cleanup(); cerr != nil {
			g.logger.Warn("Cleanup incomplete", "job_id", result.JobID, "error", cerr)
		}
		result.Duration = time.Since(start)
		g.metrics.RecordGeneration(result.Outcome.String(), result.Duration)
	}()

	err = r.execute(ctx)
	return r.result, err
}

// Wait blocks until detached interrupts have finished
func (g *Orchestrator) Wait() {
	g.interrupts.Wait()
}

func (g *Orchestrator) check(req Request) error {
	if req.Workflow == nil {
		return errors.Precondition("Orchestrator", "Run", "workflow is required")
	}
	if len(req.OutputSlots) == 0 {
		return errors.Precondition("Orchestrator", "Run", "at least one output slot is required")
	}
	for _, slot := range req.OutputSlots {
		if slot == "" {
			return errors.Precondition("Orchestrator", "Run", "output slot names must not be empty")
		}
	}
	if g.outputDir == "" {
		return errors.Precondition("Orchestrator", "Run", "no output directory configured")
	}
	return nil
}

// earlyProgressFrames bounds the progress events held while the submission
// response is outstanding
const earlyProgressFrames = 32

// run holds the resources of one request; cleanup releases all of them
type run struct {
	g       *Orchestrator
	req     Request
	frames  buffer.Buffer[protocol.Preview]
	release []func()
	result  Result

	// events that arrived before the job id was known
	earlyPreviews buffer.Buffer[protocol.Preview]
	earlyProgress buffer.Buffer[protocol.Progress]

	// mu guards the fields below and orders subscriber callbacks
	// against cleanup
	mu     sync.Mutex
	jobID  string
	closed bool
}

func (g *Orchestrator) newRun(req Request) *run {
	r := &run{
		g:   g,
		req: req,
		frames: buffer.NewCircularBuffer(g.previewFrames,
			buffer.WithDropCounter[protocol.Preview](g.metrics.PreviewDropCounter())),
		earlyPreviews: buffer.NewCircularBuffer(g.previewFrames,
			buffer.WithDropCallback(func(p protocol.Preview) {
				g.logger.Debug("Early preview discarded", "job_id", p.JobID)
			})),
		earlyProgress: buffer.NewCircularBuffer(earlyProgressFrames,
			buffer.WithDropCallback(func(p protocol.Progress) {
				g.logger.Debug("Early progress discarded", "job_id", p.JobID, "node", p.Node)
			})),
		result: Result{Outcome: Failed},
	}
	return r
}

func (r *run) execute(ctx context.Context) error {
	g := r.g

	// subscribe before submitting so early events are not missed
	r.release = append(r.release,
		g.backend.OnPreview(r.onPreview),
		g.backend.OnProgress(r.onProgress),
	)

	jobID, handle, err := g.backend.SubmitJob(ctx, r.req.Workflow)
	if err != nil {
		if ctx.Err() != nil {
			r.result.Outcome = Cancelled
			r.notify(ctx, notify.KindCancelled, "cancelled before submission")
			return nil
		}
		r.notify(ctx, notify.KindSubmissionFailed, err.Error())
		return err
	}
	r.setJob(jobID)
	r.result.JobID = jobID
	g.observer.OnState(jobID, StateSubmitted)
	g.logger.Info("Generation submitted", "job_id", jobID, "name", r.req.Name)

	g.observer.OnState(jobID, StateRunning)
	if err := handle.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			g.interrupt(ctx, jobID)
			r.result.Outcome = Cancelled
			g.observer.OnState(jobID, StateCancelled)
			r.notify(ctx, notify.KindCancelled, "")
			return nil
		}
		g.observer.OnState(jobID, StateFailed)
		r.notify(ctx, notify.KindFailed, err.Error())
		return err
	}

	outputs, err := g.backend.FetchOutputs(ctx, jobID)
	if err != nil {
		return r.fail(ctx, err)
	}
	r.result.Outputs = outputs

	if len(outputs.Slot(r.req.OutputSlots[0])) == 0 {
		r.result.Outcome = NoOutput
		g.observer.OnState(jobID, StateCompleted)
		r.notify(ctx, notify.KindNoOutput, "primary output slot "+r.req.OutputSlots[0]+" is empty")
		return nil
	}

	files, err := r.collect(ctx, outputs)
	if err != nil {
		return r.fail(ctx, err)
	}
	r.result.Files = files
	r.result.Outcome = Completed
	g.observer.OnState(jobID, StateCompleted)
	g.logger.Info("Generation completed", "job_id", jobID, "files", len(files))
	r.notify(ctx, notify.KindCompleted, "")
	return nil
}

// fail ends a run whose job already finished; cancellation is not an error here
func (r *run) fail(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		r.result.Outcome = Cancelled
		r.g.observer.OnState(r.result.JobID, StateCancelled)
		r.notify(ctx, notify.KindCancelled, "")
		return nil
	}
	r.result.Outcome = Failed
	r.g.observer.OnState(r.result.JobID, StateFailed)
	r.notify(ctx, notify.KindFailed, err.Error())
	return err
}

// collect downloads every artifact of the declared slots and hands each to
// the post-processor. Files keep slot order, then artifact order.
func (r *run) collect(ctx context.Context, outputs client.Outputs) ([]string, error) {
	type job struct {
		slot       string
		descriptor client.ArtifactDescriptor
	}
	var jobs []job
	for _, slot := range r.req.OutputSlots {
		for _, d := range outputs.Slot(slot) {
			jobs = append(jobs, job{slot: slot, descriptor: d})
		}
	}

	files := make([]string, len(jobs))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(r.g.downloadConcurrency)

	for i, j := range jobs {
		eg.Go(func() error {
			rc, err := r.g.backend.Download(egCtx, j.descriptor)
			if err != nil {
				return err
			}
			defer rc.Close()

			path, err := r.g.post.Process(egCtx, Artifact{
				JobID:      r.result.JobID,
				Slot:       j.slot,
				Descriptor: j.descriptor,
				Data:       rc,
			})
			if err != nil {
				return err
			}
			files[i] = path
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

// setJob records the job id and replays the previews and progress that
// raced the submission response. Events for other jobs are discarded.
func (r *run) setJob(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.jobID = jobID
	for p, ok := r.earlyPreviews.Read(); ok; p, ok = r.earlyPreviews.Read() {
		if p.JobID == jobID {
			r.showPreview(p)
		}
	}
	for p, ok := r.earlyProgress.Read(); ok; p, ok = r.earlyProgress.Read() {
		if p.JobID == jobID {
			r.g.observer.OnProgress(p)
		}
	}
}

func (r *run) onPreview(p protocol.Preview) {
	if p.JobID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case r.closed:
	case r.jobID == "":
		_ = r.earlyPreviews.Write(p)
	case p.JobID == r.jobID:
		r.showPreview(p)
	}
}

func (r *run) showPreview(p protocol.Preview) {
	if err := r.frames.Write(p); err != nil {
		return
	}
	r.g.observer.OnPreview(p, r.frames.Snapshot())
}

func (r *run) onProgress(p protocol.Progress) {
	if p.JobID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case r.closed:
	case r.jobID == "":
		_ = r.earlyProgress.Write(p)
	case p.JobID == r.jobID:
		r.g.observer.OnProgress(p)
	}
}

func (r *run) notify(ctx context.Context, kind notify.Kind, message string) {
	n := notify.Notification{
		Kind:    kind,
		JobID:   r.result.JobID,
		Name:    r.req.Name,
		Message: message,
		Time:    time.Now(),
	}
	// the run's ctx may already be cancelled; notifications still go out
	if err := r.g.notifier.Notify(context.WithoutCancel(ctx), n); err != nil {
		r.g.logger.Warn("Notification failed", "kind", string(kind), "error", err)
	}
}

// cleanup runs on every exit path. Once it returns no callback of this run
// reaches the observer or the frame buffer.
func (r *run) cleanup() error {
	for _, unsubscribe := range r.release {
		unsubscribe()
	}
	r.release = nil

	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.g.observer.Reset()

	var result *multierror.Error
	for _, closeBuffer := range []func() error{
		r.frames.Close,
		r.earlyPreviews.Close,
		r.earlyProgress.Close,
	} {
		if err := closeBuffer(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// interrupt asks the backend to stop jobID without holding up the caller.
// The request gets its own deadline since ctx is already cancelled.
func (g *Orchestrator) interrupt(ctx context.Context, jobID string) {
	g.interrupts.Add(1)
	go func() {
		defer g.interrupts.Done()
		ictx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.interruptTimeout)
		defer cancel()
		if err := g.backend.InterruptJob(ictx, jobID); err != nil {
			g.logger.Debug("Interrupt after cancellation failed", "job_id", jobID, "error", err)
		}
	}()
}
