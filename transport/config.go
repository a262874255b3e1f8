package transport

import (
	"crypto/tls"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/c360/genstream/errors"
	"github.com/c360/genstream/pkg/retry"
)

// Config configures a Transport
type Config struct {
	// URL is the full event stream address, e.g. ws://host:8188/ws?clientId=ID
	URL string

	HandshakeTimeout time.Duration
	// PingInterval enables keepalive pings; a connection that stays silent
	// for two intervals is treated as dropped. Zero disables pings.
	PingInterval   time.Duration
	MaxMessageSize int64
	CloseTimeout   time.Duration
	// TLS configures wss connections; nil uses the system defaults
	TLS *tls.Config

	// Reconnect enables automatic reconnection after an unexpected drop.
	// Each round is bounded by ReconnectBackoff.MaxElapsed.
	Reconnect        bool
	ReconnectBackoff retry.Config
}

// DefaultConfig returns the transport defaults for url
func DefaultConfig(url string) Config {
	return Config{
		URL:              url,
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     30 * time.Second,
		MaxMessageSize:   64 << 20,
		CloseTimeout:     time.Second,
		Reconnect:        true,
		ReconnectBackoff: retry.Reconnect(30 * time.Second),
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	u, err := url.Parse(c.URL)
	if err != nil {
		return errors.WrapInvalid(fmt.Errorf("%w: url: %w", errors.ErrInvalidConfig, err), "Transport", "Validate", "parse url")
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return errors.WrapInvalid(fmt.Errorf("%w: url scheme must be ws or wss, got %q", errors.ErrInvalidConfig, u.Scheme),
			"Transport", "Validate", "check url")
	}
	if c.PingInterval < 0 || c.HandshakeTimeout < 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: negative timeout", errors.ErrInvalidConfig), "Transport", "Validate", "check timeouts")
	}
	if c.Reconnect && c.ReconnectBackoff.MaxElapsed <= 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: reconnect requires a bounded window", errors.ErrInvalidConfig),
			"Transport", "Validate", "check reconnect")
	}
	return nil
}

// EventURL derives the event stream URL from a backend base URL:
// http becomes ws, https becomes wss, and /ws?clientId=id is appended to
// the base path.
func EventURL(base, clientID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", errors.WrapInvalid(err, "transport", "EventURL", "parse backend url")
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", errors.WrapInvalid(fmt.Errorf("%w: unsupported scheme %q", errors.ErrInvalidConfig, u.Scheme),
			"transport", "EventURL", "check scheme")
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	u.RawQuery = url.Values{"clientId": []string{clientID}}.Encode()
	u.Fragment = ""
	return u.String(), nil
}
