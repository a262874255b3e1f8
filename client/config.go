package client

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/c360/genstream/config"
	"github.com/c360/genstream/errors"
	"github.com/c360/genstream/pkg/retry"
	"github.com/c360/genstream/pkg/tlsutil"
)

// Config configures a Client
type Config struct {
	// BaseURL is the backend's http(s) address, e.g. http://127.0.0.1:8188
	BaseURL string

	RequestTimeout   time.Duration
	HandshakeTimeout time.Duration
	PingInterval     time.Duration

	Reconnect        bool
	ReconnectBackoff retry.Config

	// QueueSize bounds each subscriber's pending notifications
	QueueSize int
	// HistoryCacheTTL keeps outputs of finished jobs; zero disables caching
	HistoryCacheTTL time.Duration

	// TLS applies to https backends and to any backend when set
	TLS tlsutil.ClientConfig
}

// DefaultConfig returns client defaults for baseURL
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:          baseURL,
		RequestTimeout:   30 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     30 * time.Second,
		Reconnect:        true,
		ReconnectBackoff: retry.Reconnect(30 * time.Second),
		QueueSize:        256,
		HistoryCacheTTL:  5 * time.Minute,
	}
}

// ConfigFrom maps the file configuration onto a client Config
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		BaseURL:          cfg.Backend.URL,
		RequestTimeout:   cfg.Backend.RequestTimeout.Std(),
		HandshakeTimeout: cfg.Backend.HandshakeTimeout.Std(),
		PingInterval:     cfg.Backend.PingInterval.Std(),
		Reconnect:        cfg.Reconnect.Enabled,
		ReconnectBackoff: retry.Config{
			InitialDelay: cfg.Reconnect.InitialInterval.Std(),
			MaxDelay:     cfg.Reconnect.MaxInterval.Std(),
			Multiplier:   cfg.Reconnect.Multiplier,
			AddJitter:    true,
			MaxElapsed:   cfg.Reconnect.Timeout.Std(),
		},
		QueueSize:       cfg.Subscribers.QueueSize,
		HistoryCacheTTL: cfg.Generation.HistoryCacheTTL.Std(),
		TLS:             cfg.Backend.TLS,
	}
}

// normalizeBaseURL checks the scheme and strips trailing slashes
func normalizeBaseURL(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", errors.WrapInvalid(errors.ErrMissingConfig, "Client", "New", "backend url is empty")
	}
	parsed, err := url.Parse(value)
	if err != nil {
		return "", errors.WrapInvalid(fmt.Errorf("%w: %w", errors.ErrInvalidConfig, err), "Client", "New", "parse backend url")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.WrapInvalid(fmt.Errorf("%w: backend url must be http or https, got %q", errors.ErrInvalidConfig, parsed.Scheme),
			"Client", "New", "check backend url")
	}
	return strings.TrimRight(value, "/"), nil
}
