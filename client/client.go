package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/patrickmn/go-cache"

	"github.com/c360/genstream/errors"
	"github.com/c360/genstream/health"
	"github.com/c360/genstream/jobtable"
	"github.com/c360/genstream/metric"
	"github.com/c360/genstream/pkg/tlsutil"
	"github.com/c360/genstream/protocol"
	"github.com/c360/genstream/transport"
)

// Client is the protocol façade. It owns the event stream transport, the
// demultiplexer and the job correlation table, and exposes job submission,
// interruption, output queries and notification subscriptions.
type Client struct {
	id         string
	baseURL    string
	cfg        Config
	http       *http.Client
	downloader *http.Client
	dialer     transport.Dialer
	logger     *slog.Logger
	metrics    *metric.Metrics
	registry   *metric.MetricsRegistry

	transport *transport.Transport
	demux     *protocol.Demux
	table     *jobtable.Table
	history   *cache.Cache
	hubs      *hubs

	lastEvent atomic.Value // time.Time
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Option configures a Client
type Option func(*Client) error

// WithHTTPClient replaces the client used for request/response endpoints
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return errors.WrapInvalid(fmt.Errorf("nil http client"), "Client", "WithHTTPClient", "validate option")
		}
		c.http = hc
		c.downloader = hc
		return nil
	}
}

// WithDialer replaces the websocket dialer for the event stream
func WithDialer(d transport.Dialer) Option {
	return func(c *Client) error {
		c.dialer = d
		return nil
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithMetrics records protocol metrics
func WithMetrics(m *metric.Metrics) Option {
	return func(c *Client) error {
		c.metrics = m
		return nil
	}
}

// WithMetricsRegistry records protocol metrics in registry and registers
// per-subscriber queue metrics there
func WithMetricsRegistry(registry *metric.MetricsRegistry) Option {
	return func(c *Client) error {
		c.registry = registry
		c.metrics = registry.CoreMetrics()
		return nil
	}
}

// New creates a disconnected client with a fresh client id
func New(cfg Config, opts ...Option) (*Client, error) {
	baseURL, err := normalizeBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	c := &Client{
		id:      uuid.NewString(),
		baseURL: baseURL,
		cfg:     cfg,
		logger:  slog.Default(),
	}
	var tlsConfig *tls.Config
	if strings.HasPrefix(baseURL, "https://") || !cfg.TLS.IsZero() {
		if tlsConfig, err = tlsutil.LoadClientConfig(cfg.TLS); err != nil {
			return nil, err
		}
		rt := http.DefaultTransport.(*http.Transport).Clone()
		rt.TLSClientConfig = tlsConfig
		c.http = &http.Client{Timeout: cfg.RequestTimeout, Transport: rt}
		c.downloader = &http.Client{Transport: rt}
	} else {
		c.http = &http.Client{Timeout: cfg.RequestTimeout}
		c.downloader = &http.Client{}
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	base := c.logger.With("client_id", c.id)
	c.logger = base.With("component", "client")

	c.table, err = jobtable.New(jobtable.WithLogger(base), jobtable.WithMetrics(c.metrics))
	if err != nil {
		return nil, err
	}

	c.hubs = newHubs(cfg.QueueSize, c.logger, c.metrics, c.registry)
	c.demux = protocol.NewDemux(c.table, c.hubs, base, c.metrics)

	if cfg.HistoryCacheTTL > 0 {
		c.history = cache.New(cfg.HistoryCacheTTL, 2*cfg.HistoryCacheTTL)
	}

	eventURL, err := transport.EventURL(baseURL, c.id)
	if err != nil {
		return nil, err
	}
	tcfg := transport.DefaultConfig(eventURL)
	tcfg.HandshakeTimeout = cfg.HandshakeTimeout
	tcfg.PingInterval = cfg.PingInterval
	tcfg.Reconnect = cfg.Reconnect
	tcfg.ReconnectBackoff = cfg.ReconnectBackoff
	tcfg.TLS = tlsConfig

	topts := []transport.Option{
		transport.WithStateHandler(c.onState),
		transport.WithLogger(base),
		transport.WithMetrics(c.metrics),
	}
	if c.dialer != nil {
		topts = append(topts, transport.WithDialer(c.dialer))
	}
	c.transport, err = transport.New(tcfg, c.onFrame, topts...)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ID returns the client identifier sent on connect and with every submission
func (c *Client) ID() string {
	return c.id
}

// Connect opens the event stream. It fails with ErrConnection when the
// handshake cannot complete and is a no-op when already connected.
func (c *Client) Connect(ctx context.Context) error {
	return c.transport.Connect(ctx)
}

// Close closes the event stream, aborts every pending job and removes all
// subscribers once their queues drain. It reports a transport close failure
// together with every subscriber that did not drain within ctx. Close is
// idempotent and must not be called from a subscriber callback.
func (c *Client) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)

		var result *multierror.Error
		if err := c.transport.Close(ctx); err != nil {
			result = multierror.Append(result, err)
		}
		c.table.Clear()
		if err := c.hubs.close(ctx); err != nil {
			result = multierror.Append(result, errors.WrapTransient(err, "Client", "Close", "drain subscribers"))
		}

		c.closeErr = result.ErrorOrNil()
	})
	return c.closeErr
}

// Pending returns the number of jobs awaiting their terminal event
func (c *Client) Pending() int {
	return c.table.Len()
}

// Health reports the event stream state and pending job count
func (c *Client) Health() health.Status {
	info := c.transport.Info()
	conn := health.Connection{
		State:       info.State.String(),
		LastError:   info.LastError,
		Since:       info.ConnectedSince,
		Reconnects:  info.Reconnects,
		PendingJobs: c.table.Len(),
	}
	if t, ok := c.lastEvent.Load().(time.Time); ok {
		conn.LastEvent = t
	}
	return health.FromConnection("client", conn)
}

// OnStatus subscribes to queue status notifications
func (c *Client) OnStatus(fn func(protocol.Status)) (unsubscribe func()) {
	return c.hubs.status.subscribe(fn)
}

// OnExecuting subscribes to node execution notifications, terminal ones included
func (c *Client) OnExecuting(fn func(protocol.Executing)) (unsubscribe func()) {
	return c.hubs.executing.subscribe(fn)
}

// OnProgress subscribes to step progress notifications
func (c *Client) OnProgress(fn func(protocol.Progress)) (unsubscribe func()) {
	return c.hubs.progress.subscribe(fn)
}

// OnPreview subscribes to preview images
func (c *Client) OnPreview(fn func(protocol.Preview)) (unsubscribe func()) {
	return c.hubs.preview.subscribe(fn)
}

// OnConnection subscribes to event stream lifecycle changes
func (c *Client) OnConnection(fn func(transport.StateEvent)) (unsubscribe func()) {
	return c.hubs.connection.subscribe(fn)
}

func (c *Client) onFrame(binary bool, payload []byte) {
	c.lastEvent.Store(time.Now())
	c.demux.Handle(binary, payload)
}

func (c *Client) onState(ev transport.StateEvent) {
	if ev.Reconnect && ev.State == transport.StateConnected {
		c.logger.Info("Event stream restored", "pending_jobs", c.table.Len())
	}
	c.hubs.connection.publish(ev)
}

// hubs routes demultiplexed events to subscribers
type hubs struct {
	status     *hub[protocol.Status]
	executing  *hub[protocol.Executing]
	progress   *hub[protocol.Progress]
	preview    *hub[protocol.Preview]
	connection *hub[transport.StateEvent]
}

var _ protocol.Dispatcher = (*hubs)(nil)

func newHubs(queueSize int, logger *slog.Logger, metrics *metric.Metrics, registry *metric.MetricsRegistry) *hubs {
	return &hubs{
		status:     newHub[protocol.Status]("status", queueSize, logger, metrics, registry),
		executing:  newHub[protocol.Executing]("executing", queueSize, logger, metrics, registry),
		progress:   newHub[protocol.Progress]("progress", queueSize, logger, metrics, registry),
		preview:    newHub[protocol.Preview]("preview", queueSize, logger, metrics, registry),
		connection: newHub[transport.StateEvent]("connection", queueSize, logger, metrics, registry),
	}
}

func (h *hubs) DispatchStatus(e protocol.Status)       { h.status.publish(e) }
func (h *hubs) DispatchExecuting(e protocol.Executing) { h.executing.publish(e) }
func (h *hubs) DispatchProgress(e protocol.Progress)   { h.progress.publish(e) }
func (h *hubs) DispatchPreview(e protocol.Preview)     { h.preview.publish(e) }

func (h *hubs) close(ctx context.Context) error {
	var result *multierror.Error
	for _, closeHub := range []func(context.Context) error{
		h.status.close,
		h.executing.close,
		h.progress.close,
		h.preview.close,
		h.connection.close,
	} {
		if err := closeHub(ctx); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
