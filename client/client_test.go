package client

import (
	"context"
	stderrors "errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/genstream/errors"
	"github.com/c360/genstream/jobtable"
	"github.com/c360/genstream/metric"
	"github.com/c360/genstream/pkg/retry"
	"github.com/c360/genstream/pkg/tlsutil"
	"github.com/c360/genstream/protocol"
	gstest "github.com/c360/genstream/testutil"
	"github.com/c360/genstream/transport"
)

const waitTimeout = 3 * time.Second

func testConfig(baseURL string) Config {
	cfg := DefaultConfig(baseURL)
	cfg.PingInterval = 0
	cfg.ReconnectBackoff = retry.Config{
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
		Multiplier:   2,
		MaxElapsed:   2 * time.Second,
	}
	return cfg
}

func newTestClient(t *testing.T, backend *gstest.FakeBackend, opts ...Option) *Client {
	t.Helper()
	c, err := New(testConfig(backend.URL()), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, c.ID(), backend.WaitConnected(t, waitTimeout))
	return c
}

// collector gathers notifications delivered on subscriber goroutines
type collector[T any] struct {
	mu    sync.Mutex
	items []T
}

func (c *collector[T]) add(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, v)
}

func (c *collector[T]) snapshot() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]T(nil), c.items...)
}

func (c *collector[T]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func TestNew_RejectsBadURL(t *testing.T) {
	_, err := New(DefaultConfig(""))
	assert.True(t, errors.IsInvalid(err))

	_, err = New(DefaultConfig("ftp://backend"))
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestNew_TLS(t *testing.T) {
	_, err := New(DefaultConfig("https://localhost:8188"))
	require.NoError(t, err)

	cfg := DefaultConfig("https://localhost:8188")
	cfg.TLS = tlsutil.ClientConfig{CAFiles: []string{filepath.Join(t.TempDir(), "missing.pem")}}
	_, err = New(cfg)
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))

	cfg = DefaultConfig("http://localhost:8188")
	cfg.TLS = tlsutil.ClientConfig{MinVersion: "1.0"}
	_, err = New(cfg)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestClient_IDIsStable(t *testing.T) {
	a, err := New(DefaultConfig("http://localhost:8188"))
	require.NoError(t, err)
	b, err := New(DefaultConfig("http://localhost:8188"))
	require.NoError(t, err)

	assert.NotEmpty(t, a.ID())
	assert.Equal(t, a.ID(), a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestClient_SubmitAwaitFetch(t *testing.T) {
	backend := gstest.NewFakeBackend(t)
	c := newTestClient(t, backend)

	var executing collector[protocol.Executing]
	defer c.OnExecuting(executing.add)()

	backend.OnSubmit(func(s gstest.Submission) {
		backend.SetOutputs(s.JobID, map[string][]gstest.Artifact{
			"9": {{Filename: "genstream_00001_.png", Type: "output"}},
		})
		backend.Complete(s.JobID, "A", "B")
	})

	jobID, handle, err := c.SubmitJob(context.Background(), gstest.Workflow())
	require.NoError(t, err)
	assert.Equal(t, jobID, handle.ID())

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	require.NoError(t, handle.Wait(ctx))
	assert.Equal(t, jobtable.Completed, handle.Outcome())
	assert.Equal(t, 0, c.Pending())

	subs := backend.Submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, c.ID(), subs[0].ClientID)

	outputs, err := c.FetchOutputs(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, []ArtifactDescriptor{{Filename: "genstream_00001_.png", Type: "output"}}, outputs.Slot("9"))

	require.Eventually(t, func() bool { return executing.len() == 3 }, waitTimeout, 10*time.Millisecond)
	assert.Equal(t, []protocol.Executing{
		{JobID: jobID, Node: "A"},
		{JobID: jobID, Node: "B"},
		{JobID: jobID},
	}, executing.snapshot())
}

func TestClient_SubmissionRejected(t *testing.T) {
	backend := gstest.NewFakeBackend(t)
	c := newTestClient(t, backend)

	backend.Reject(&gstest.Rejection{
		Status:     400,
		Type:       "prompt_outputs_failed_validation",
		Message:    "Prompt outputs failed validation",
		NodeErrors: map[string]string{"9": "Required input is missing: images"},
	})

	_, handle, err := c.SubmitJob(context.Background(), gstest.Workflow())
	require.Error(t, err)
	assert.Nil(t, handle)
	assert.True(t, errors.IsSubmission(err))

	var subErr *errors.SubmissionError
	require.True(t, stderrors.As(err, &subErr))
	assert.Equal(t, 400, subErr.Status)
	assert.Equal(t, "prompt_outputs_failed_validation", subErr.Type)
	assert.Equal(t, "Prompt outputs failed validation", subErr.Message)
	assert.Equal(t, "Required input is missing: images", subErr.NodeErrors["9"])
	assert.Equal(t, 0, c.Pending())
}

func TestClient_SubmitUnreachable(t *testing.T) {
	c, err := New(testConfig("http://127.0.0.1:1"))
	require.NoError(t, err)
	defer c.Close(context.Background())

	_, _, err = c.SubmitJob(context.Background(), gstest.Workflow())
	require.Error(t, err)
	assert.True(t, errors.IsConnection(err))
	assert.Equal(t, 0, c.Pending())
}

func TestClient_SubmitNilWorkflow(t *testing.T) {
	c, err := New(testConfig("http://127.0.0.1:1"))
	require.NoError(t, err)

	_, _, err = c.SubmitJob(context.Background(), nil)
	assert.True(t, errors.IsInvalid(err))
}

func TestClient_FetchOutputsUnknownJob(t *testing.T) {
	backend := gstest.NewFakeBackend(t)
	c := newTestClient(t, backend)

	_, err := c.FetchOutputs(context.Background(), "never-submitted")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestClient_FetchOutputsCachesFinishedJobs(t *testing.T) {
	backend := gstest.NewFakeBackend(t)
	c := newTestClient(t, backend)

	backend.SetOutputs("job-1", map[string][]gstest.Artifact{"9": {{Filename: "a.png", Type: "output"}}})
	first, err := c.FetchOutputs(context.Background(), "job-1")
	require.NoError(t, err)

	backend.SetOutputs("job-1", map[string][]gstest.Artifact{"9": {{Filename: "b.png", Type: "output"}}})
	second, err := c.FetchOutputs(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestClient_FetchOutputsReturnsCopies(t *testing.T) {
	backend := gstest.NewFakeBackend(t)
	c := newTestClient(t, backend)

	backend.SetOutputs("job-1", map[string][]gstest.Artifact{"9": {{Filename: "a.png", Type: "output"}}})
	first, err := c.FetchOutputs(context.Background(), "job-1")
	require.NoError(t, err)
	first["9"][0].Filename = "changed.png"
	delete(first, "9")

	second, err := c.FetchOutputs(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, []ArtifactDescriptor{{Filename: "a.png", Type: "output"}}, second.Slot("9"))

	second["9"] = nil
	third, err := c.FetchOutputs(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Len(t, third.Slot("9"), 1)
}

func TestClient_InterruptDoesNotResolve(t *testing.T) {
	backend := gstest.NewFakeBackend(t)
	c := newTestClient(t, backend)

	jobID, handle, err := c.SubmitJob(context.Background(), gstest.Workflow())
	require.NoError(t, err)

	require.NoError(t, c.InterruptJob(context.Background(), jobID))
	assert.Equal(t, jobID, backend.WaitInterrupt(t, waitTimeout))
	assert.Equal(t, jobtable.Pending, handle.Outcome())
	assert.Equal(t, 1, c.Pending())

	// resolution still comes from the backend
	backend.Complete(jobID)
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	require.NoError(t, handle.Wait(ctx))
}

func TestClient_InterruptFailureIsReturned(t *testing.T) {
	c, err := New(testConfig("http://127.0.0.1:1"))
	require.NoError(t, err)

	err = c.InterruptJob(context.Background(), "job-1")
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
}

func TestClient_MalformedFrameDoesNotDisruptDelivery(t *testing.T) {
	backend := gstest.NewFakeBackend(t)
	c := newTestClient(t, backend)

	var progress collector[protocol.Progress]
	defer c.OnProgress(progress.add)()

	backend.SendRaw([]byte(`{"type":"progress","data":`))
	backend.SendProgress("job-1", "3", 1, 20)
	backend.SendRaw([]byte(`{"type":"execution_cached","data":{"nodes":[]}}`))
	backend.SendProgress("job-1", "3", 2, 20)

	require.Eventually(t, func() bool { return progress.len() == 2 }, waitTimeout, 10*time.Millisecond)
	assert.Equal(t, []protocol.Progress{
		{JobID: "job-1", Node: "3", Value: 1, Max: 20},
		{JobID: "job-1", Node: "3", Value: 2, Max: 20},
	}, progress.snapshot())
}

func TestClient_PreviewAttributedToRunningJob(t *testing.T) {
	backend := gstest.NewFakeBackend(t)
	c := newTestClient(t, backend)

	previews := make(chan protocol.Preview, 1)
	defer c.OnPreview(func(p protocol.Preview) { previews <- p })()

	backend.SendExecuting("job-7", "3")
	backend.SendPreview(protocol.FormatPNG, []byte("png-bytes"))

	select {
	case p := <-previews:
		assert.Equal(t, "job-7", p.JobID)
		assert.Equal(t, protocol.FormatPNG, p.Format)
		assert.Equal(t, []byte("png-bytes"), p.Data)
	case <-time.After(waitTimeout):
		t.Fatal("no preview delivered")
	}
}

func TestClient_UnsubscribeStopsDelivery(t *testing.T) {
	backend := gstest.NewFakeBackend(t)
	c := newTestClient(t, backend)

	var statuses collector[protocol.Status]
	unsubscribe := c.OnStatus(func(s protocol.Status) {
		if s.QueueRemaining > 0 {
			statuses.add(s)
		}
	})

	backend.SendStatus(1)
	require.Eventually(t, func() bool { return statuses.len() == 1 }, waitTimeout, 10*time.Millisecond)

	unsubscribe()
	unsubscribe()
	backend.SendStatus(2)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, statuses.len())
}

func TestClient_SlowSubscriberDoesNotBlockOthers(t *testing.T) {
	backend := gstest.NewFakeBackend(t)
	registry := metric.NewMetricsRegistry()
	cfg := testConfig(backend.URL())
	cfg.QueueSize = 1

	c, err := New(cfg, WithMetrics(registry.CoreMetrics()))
	require.NoError(t, err)
	defer c.Close(context.Background())
	require.NoError(t, c.Connect(context.Background()))
	backend.WaitConnected(t, waitTimeout)

	release := make(chan struct{})
	defer c.OnProgress(func(protocol.Progress) { <-release })()

	var fast collector[protocol.Progress]
	defer c.OnProgress(fast.add)()

	for i := 1; i <= 5; i++ {
		backend.SendProgress("job-1", "3", i, 5)
		// let the fast subscriber keep up with its single-slot queue
		require.Eventually(t, func() bool { return fast.len() == i }, waitTimeout, 5*time.Millisecond)
	}
	close(release)

	assert.Greater(t, testutil.ToFloat64(registry.CoreMetrics().NotificationsDrops.WithLabelValues("progress")), 0.0)
}

func TestClient_CloseAbortsPendingJobs(t *testing.T) {
	backend := gstest.NewFakeBackend(t)
	c := newTestClient(t, backend)

	_, handle, err := c.SubmitJob(context.Background(), gstest.Workflow())
	require.NoError(t, err)

	require.NoError(t, c.Close(context.Background()))
	require.NoError(t, c.Close(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	err = handle.Wait(ctx)
	assert.True(t, errors.IsAborted(err))
	assert.Equal(t, jobtable.Aborted, handle.Outcome())

	_, _, err = c.SubmitJob(context.Background(), gstest.Workflow())
	assert.ErrorIs(t, err, errors.ErrClosed)
}

func TestClient_SubmitAfterCloseSendsNothing(t *testing.T) {
	backend := gstest.NewFakeBackend(t)
	c := newTestClient(t, backend)
	require.NoError(t, c.Close(context.Background()))

	_, handle, err := c.SubmitJob(context.Background(), gstest.Workflow())
	require.Error(t, err)
	assert.Nil(t, handle)
	assert.ErrorIs(t, err, errors.ErrClosed)
	assert.True(t, errors.IsFatal(err))
	assert.Empty(t, backend.Submissions())
}

func TestClient_CloseReportsUndrainedSubscriber(t *testing.T) {
	backend := gstest.NewFakeBackend(t)
	c := newTestClient(t, backend)

	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)
	var once sync.Once
	c.OnProgress(func(protocol.Progress) {
		once.Do(func() { close(started) })
		<-release
	})

	backend.SendProgress("job-1", "3", 1, 5)
	select {
	case <-started:
	case <-time.After(waitTimeout):
		t.Fatal("subscriber never ran")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := c.Close(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.Contains(t, err.Error(), "progress subscriber")
}

func TestClient_ReconnectKeepsPendingJobs(t *testing.T) {
	backend := gstest.NewFakeBackend(t)
	c := newTestClient(t, backend)

	states := make(chan transport.StateEvent, 16)
	defer c.OnConnection(func(ev transport.StateEvent) { states <- ev })()

	jobID, handle, err := c.SubmitJob(context.Background(), gstest.Workflow())
	require.NoError(t, err)

	backend.DropConnections()
	backend.WaitConnected(t, waitTimeout)

	deadline := time.After(waitTimeout)
	for reconnected := false; !reconnected; {
		select {
		case ev := <-states:
			reconnected = ev.State == transport.StateConnected && ev.Reconnect
		case <-deadline:
			t.Fatal("no reconnect notification")
		}
	}
	assert.Equal(t, jobtable.Pending, handle.Outcome())

	backend.Complete(jobID, "9")
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	require.NoError(t, handle.Wait(ctx))
}

func TestClient_Download(t *testing.T) {
	backend := gstest.NewFakeBackend(t)
	c := newTestClient(t, backend)

	artifact := gstest.Artifact{Filename: "out.png", Subfolder: "runs", Type: "output"}
	backend.AddFile(artifact, []byte("image-data"))

	rc, err := c.Download(context.Background(), ArtifactDescriptor(artifact))
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, []byte("image-data"), data)

	_, err = c.Download(context.Background(), ArtifactDescriptor{Filename: "missing.png", Type: "output"})
	assert.True(t, errors.IsNotFound(err))
}

func TestClient_Health(t *testing.T) {
	backend := gstest.NewFakeBackend(t)
	c, err := New(testConfig(backend.URL()))
	require.NoError(t, err)
	defer c.Close(context.Background())

	assert.True(t, c.Health().IsUnhealthy())

	require.NoError(t, c.Connect(context.Background()))
	backend.WaitConnected(t, waitTimeout)
	_, _, err = c.SubmitJob(context.Background(), gstest.Workflow())
	require.NoError(t, err)

	status := c.Health()
	assert.True(t, status.IsHealthy())
	require.NotNil(t, status.Metrics)
	assert.Equal(t, 1, status.Metrics.PendingJobs)
}

func TestClient_Metrics(t *testing.T) {
	backend := gstest.NewFakeBackend(t)
	registry := metric.NewMetricsRegistry()
	c := newTestClient(t, backend, WithMetrics(registry.CoreMetrics()))

	backend.OnSubmit(func(s gstest.Submission) { backend.Complete(s.JobID) })
	_, handle, err := c.SubmitJob(context.Background(), gstest.Workflow())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	require.NoError(t, handle.Wait(ctx))

	m := registry.CoreMetrics()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsSubmitted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsResolved.WithLabelValues("completed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ConnectionState))
}

func TestClient_SubscriberQueueMetrics(t *testing.T) {
	backend := gstest.NewFakeBackend(t)
	registry := metric.NewMetricsRegistry()
	c := newTestClient(t, backend, WithMetricsRegistry(registry))

	series := func() int {
		n, err := testutil.GatherAndCount(registry.PrometheusRegistry(), "genstream_subscriber_progress_processed_total")
		require.NoError(t, err)
		return n
	}

	var first, second collector[protocol.Progress]
	unsubscribeFirst := c.OnProgress(first.add)
	defer c.OnProgress(second.add)()
	assert.Equal(t, 2, series())

	backend.SendProgress("job-1", "3", 1, 5)
	require.Eventually(t, func() bool { return first.len() == 1 && second.len() == 1 }, waitTimeout, 5*time.Millisecond)

	unsubscribeFirst()
	require.Eventually(t, func() bool { return series() == 1 }, waitTimeout, 5*time.Millisecond)
	assert.Same(t, registry.CoreMetrics(), c.metrics)
}
