package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/genstream/errors"
)

// NATSNotifier publishes notifications as JSON to <subject>.<kind>
type NATSNotifier struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

// NATSOption configures a NATSNotifier
type NATSOption func(*natsOptions)

type natsOptions struct {
	name          string
	maxReconnects int
	reconnectWait time.Duration
	timeout       time.Duration
	logger        *slog.Logger
}

// WithClientName sets the NATS connection name
func WithClientName(name string) NATSOption {
	return func(o *natsOptions) { o.name = name }
}

// WithReconnect sets the NATS reconnect policy
func WithReconnect(maxReconnects int, wait time.Duration) NATSOption {
	return func(o *natsOptions) {
		o.maxReconnects = maxReconnects
		o.reconnectWait = wait
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) NATSOption {
	return func(o *natsOptions) { o.logger = logger }
}

// NewNATSNotifier connects to url. The context bounds the initial connect.
func NewNATSNotifier(ctx context.Context, url, subject string, opts ...NATSOption) (*NATSNotifier, error) {
	if subject == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "NATSNotifier", "New", "subject is empty")
	}

	o := natsOptions{
		name:          "genstream",
		maxReconnects: -1,
		reconnectWait: 2 * time.Second,
		timeout:       5 * time.Second,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if deadline, ok := ctx.Deadline(); ok {
		o.timeout = time.Until(deadline)
	}
	logger := o.logger.With("component", "notify", "subject", subject)

	natsOpts := []nats.Option{
		nats.Name(o.name),
		nats.MaxReconnects(o.maxReconnects),
		nats.ReconnectWait(o.reconnectWait),
		nats.Timeout(o.timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			logger.Error("NATS error", "error", err)
		}),
	}

	connectDone := make(chan struct{})
	var conn *nats.Conn
	var err error
	go func() {
		defer close(connectDone)
		conn, err = nats.Connect(url, natsOpts...)
	}()

	select {
	case <-connectDone:
	case <-ctx.Done():
		go func() {
			<-connectDone
			if conn != nil {
				conn.Close()
			}
		}()
		return nil, errors.Connection(ctx.Err(), "NATSNotifier", "New", "connect to "+url)
	}
	if err != nil {
		return nil, errors.Connection(err, "NATSNotifier", "New", "connect to "+url)
	}

	logger.Info("Connected to NATS", "url", conn.ConnectedUrl())
	return &NATSNotifier{conn: conn, subject: subject, logger: logger}, nil
}

// Subject returns the NATS subject notifications of kind are published on
func (p *NATSNotifier) Subject(kind Kind) string {
	return fmt.Sprintf("%s.%s", p.subject, kind)
}

// Notify publishes n. Publishing is asynchronous; Close flushes.
func (p *NATSNotifier) Notify(_ context.Context, n Notification) error {
	if n.Time.IsZero() {
		n.Time = time.Now()
	}
	data, err := json.Marshal(n)
	if err != nil {
		return errors.WrapInvalid(err, "NATSNotifier", "Notify", "encode notification")
	}
	if err := p.conn.Publish(p.Subject(n.Kind), data); err != nil {
		return errors.WrapTransient(err, "NATSNotifier", "Notify", "publish notification")
	}
	return nil
}

// Close flushes pending notifications and closes the connection
func (p *NATSNotifier) Close(ctx context.Context) error {
	if p.conn.IsClosed() {
		return nil
	}
	var err error
	if _, ok := ctx.Deadline(); ok {
		err = p.conn.FlushWithContext(ctx)
	} else {
		err = p.conn.FlushTimeout(2 * time.Second)
	}
	p.conn.Close()
	if err != nil {
		return errors.WrapTransient(err, "NATSNotifier", "Close", "flush")
	}
	return nil
}
