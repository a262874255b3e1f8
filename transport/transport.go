package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/genstream/errors"
	"github.com/c360/genstream/metric"
	"github.com/c360/genstream/pkg/retry"
)

// Dialer opens websocket connections. *websocket.Dialer implements it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Transport owns one websocket connection at a time and a single receive
// goroutine that delivers frames to the MessageHandler in arrival order.
// After an unexpected drop the same goroutine runs a bounded reconnection
// round, so delivery stays on one path across reconnects.
type Transport struct {
	cfg       Config
	dialer    Dialer
	onMessage MessageHandler
	onState   StateHandler
	logger    *slog.Logger
	metrics   *metric.Metrics

	mu          sync.Mutex
	conn        *websocket.Conn
	state       State
	closed      bool
	pingStarted bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	connectedSince atomic.Value // time.Time
	lastActivity   atomic.Value // time.Time
	lastErr        atomic.Value // string
	reconnects     atomic.Int64
}

// Option configures a Transport
type Option func(*Transport) error

// WithDialer replaces the default gorilla dialer
func WithDialer(d Dialer) Option {
	return func(t *Transport) error {
		if d == nil {
			return errors.WrapInvalid(fmt.Errorf("nil dialer"), "Transport", "WithDialer", "validate option")
		}
		t.dialer = d
		return nil
	}
}

// WithStateHandler sets the lifecycle callback. It runs on transport
// goroutines and must not block or call Close.
func WithStateHandler(h StateHandler) Option {
	return func(t *Transport) error {
		t.onState = h
		return nil
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) error {
		if logger != nil {
			t.logger = logger
		}
		return nil
	}
}

// WithMetrics records connection state and reconnect rounds
func WithMetrics(m *metric.Metrics) Option {
	return func(t *Transport) error {
		t.metrics = m
		return nil
	}
}

// New creates a disconnected transport. onMessage runs on the receive
// goroutine and must not call Close.
func New(cfg Config, onMessage MessageHandler, opts ...Option) (*Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if onMessage == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("nil message handler"), "Transport", "New", "validate handler")
	}

	t := &Transport{
		cfg:       cfg,
		onMessage: onMessage,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, err
		}
	}
	if t.dialer == nil {
		t.dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
			TLSClientConfig:  cfg.TLS,
		}
	}
	t.logger = t.logger.With("component", "transport")
	t.ctx, t.cancel = context.WithCancel(context.Background())
	return t, nil
}

// Connect dials the backend and starts the receive loop. It is a no-op when
// the transport is already connected or reconnecting, and fails with
// ErrConnection when the handshake cannot complete.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return errors.WrapFatal(errors.ErrClosed, "Transport", "Connect", "connect")
	}
	if t.state != StateDisconnected {
		t.mu.Unlock()
		return nil
	}
	t.state = StateConnecting
	t.mu.Unlock()
	t.emit(StateEvent{State: StateConnecting})

	conn, err := t.dial(ctx)
	if err != nil {
		t.setDisconnected(err, false)
		return errors.Connection(err, "Transport", "Connect", "dial "+t.cfg.URL)
	}

	if err := t.install(conn, false); err != nil {
		return err
	}
	return nil
}

func (t *Transport) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := t.dialer.DialContext(ctx, t.cfg.URL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (status %d)", err, resp.StatusCode)
		}
		t.lastErr.Store(err.Error())
		return nil, err
	}

	if t.cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(t.cfg.MaxMessageSize)
	}
	if t.cfg.PingInterval > 0 {
		readWait := 2 * t.cfg.PingInterval
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(readWait))
		})
	}
	return conn, nil
}

// install makes conn current. The first install starts the receive loop;
// reconnects hand the new conn back to the running loop instead.
func (t *Transport) install(conn *websocket.Conn, reconnect bool) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		conn.Close()
		return errors.WrapFatal(errors.ErrClosed, "Transport", "Connect", "install connection")
	}
	t.conn = conn
	t.state = StateConnected
	if !reconnect {
		t.wg.Add(1)
		go t.receiveLoop(conn)
	}
	if !t.pingStarted && t.cfg.PingInterval > 0 {
		t.pingStarted = true
		t.wg.Add(1)
		go t.pingLoop()
	}
	t.mu.Unlock()

	now := time.Now()
	t.connectedSince.Store(now)
	t.lastActivity.Store(now)
	t.metrics.RecordConnectionState(int(StateConnected))
	t.logger.Info("Connected", "url", t.cfg.URL, "reconnect", reconnect)
	t.emit(StateEvent{State: StateConnected, Reconnect: reconnect})
	return nil
}

func (t *Transport) receiveLoop(conn *websocket.Conn) {
	defer t.wg.Done()

	for conn != nil {
		err := t.read(conn)
		conn = t.reestablish(conn, err)
	}
}

// read delivers frames from conn until it fails
func (t *Transport) read(conn *websocket.Conn) error {
	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		t.lastActivity.Store(time.Now())
		if t.cfg.PingInterval > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(2 * t.cfg.PingInterval))
		}

		switch msgType {
		case websocket.TextMessage:
			t.onMessage(false, payload)
		case websocket.BinaryMessage:
			t.onMessage(true, payload)
		}
	}
}

// reestablish handles a read failure and returns the connection to continue
// reading from, or nil when the loop should exit.
func (t *Transport) reestablish(conn *websocket.Conn, cause error) *websocket.Conn {
	t.mu.Lock()
	if t.closed || t.conn != conn {
		t.mu.Unlock()
		return nil
	}
	t.conn = nil
	t.state = StateConnecting
	t.mu.Unlock()
	conn.Close()

	t.lastErr.Store(cause.Error())
	t.logger.Warn("Connection dropped", "error", cause)

	if !t.cfg.Reconnect {
		t.setDisconnected(cause, false)
		return nil
	}

	t.metrics.RecordConnectionState(int(StateConnecting))
	t.emit(StateEvent{State: StateConnecting, Reconnect: true, Err: cause})

	backoff := t.cfg.ReconnectBackoff
	backoff.OnRetry = func(attempt int, err error, delay time.Duration) {
		t.logger.Debug("Reconnect attempt failed", "attempt", attempt, "error", err, "retry_in", delay)
	}

	next, err := retry.DoWithResult(t.ctx, backoff, t.dial)
	t.reconnects.Add(1)
	if err != nil {
		if t.ctx.Err() != nil {
			return nil
		}
		t.metrics.RecordReconnect(false)
		t.logger.Error("Reconnect window elapsed", "window", backoff.MaxElapsed, "error", err)
		t.setDisconnected(errors.Connection(err, "Transport", "reconnect", "reconnect"), true)
		return nil
	}

	t.metrics.RecordReconnect(true)
	if err := t.install(next, true); err != nil {
		return nil
	}
	return next
}

func (t *Transport) setDisconnected(cause error, reconnect bool) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.state = StateDisconnected
	t.mu.Unlock()

	t.metrics.RecordConnectionState(int(StateDisconnected))
	t.emit(StateEvent{State: StateDisconnected, Reconnect: reconnect, Err: cause})
}

func (t *Transport) pingLoop() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			t.mu.Lock()
			conn := t.conn
			t.mu.Unlock()
			if conn == nil {
				continue
			}
			deadline := time.Now().Add(t.cfg.PingInterval / 2)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				t.logger.Debug("Ping failed", "error", err)
			}
		}
	}
}

// Close sends a normal-closure frame, closes the connection and stops the
// receive loop. Close is idempotent; the transport cannot be reconnected
// afterwards.
func (t *Transport) Close(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn := t.conn
	t.conn = nil
	prev := t.state
	t.state = StateDisconnected
	t.mu.Unlock()

	t.cancel()

	var closeErr error
	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(t.cfg.CloseTimeout)); err != nil &&
			err != websocket.ErrCloseSent {
			closeErr = errors.Wrap(err, "Transport", "Close", "send close frame")
		}
		conn.Close()
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return errors.WrapTransient(ctx.Err(), "Transport", "Close", "wait for receive loop")
	}

	t.metrics.RecordConnectionState(int(StateDisconnected))
	if prev != StateDisconnected {
		t.logger.Info("Closed")
		t.emit(StateEvent{State: StateDisconnected})
	}
	return closeErr
}

func (t *Transport) emit(ev StateEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	if t.onState != nil {
		t.onState(ev)
	}
}

// State returns the current connection state
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Info is a point-in-time view of the transport for health reporting
type Info struct {
	State          State
	ConnectedSince time.Time
	LastActivity   time.Time
	LastError      string
	Reconnects     int64
}

// Info returns a snapshot of the connection
func (t *Transport) Info() Info {
	info := Info{
		State:      t.State(),
		Reconnects: t.reconnects.Load(),
	}
	if v, ok := t.connectedSince.Load().(time.Time); ok && info.State == StateConnected {
		info.ConnectedSince = v
	}
	if v, ok := t.lastActivity.Load().(time.Time); ok {
		info.LastActivity = v
	}
	if v, ok := t.lastErr.Load().(string); ok {
		info.LastError = v
	}
	return info
}
