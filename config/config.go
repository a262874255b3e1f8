package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/genstream/errors"
	"github.com/c360/genstream/pkg/tlsutil"
)

// Config represents the complete client configuration
type Config struct {
	Backend     BackendConfig    `json:"backend" yaml:"backend"`
	Reconnect   ReconnectConfig  `json:"reconnect" yaml:"reconnect"`
	Generation  GenerationConfig `json:"generation" yaml:"generation"`
	Subscribers SubscriberConfig `json:"subscribers" yaml:"subscribers"`
	Notify      NotifyConfig     `json:"notify" yaml:"notify"`
	Log         LogConfig        `json:"log" yaml:"log"`
	HTTP        HTTPConfig       `json:"http" yaml:"http"`
}

// BackendConfig locates the generation backend
type BackendConfig struct {
	URL              string   `json:"url" yaml:"url"` // http(s) base URL; the event stream is derived from it
	HandshakeTimeout Duration `json:"handshake_timeout" yaml:"handshake_timeout"`
	RequestTimeout   Duration `json:"request_timeout" yaml:"request_timeout"`
	PingInterval     Duration `json:"ping_interval" yaml:"ping_interval"` // 0 disables keepalive pings

	TLS tlsutil.ClientConfig `json:"tls,omitempty" yaml:"tls,omitempty"`
}

// ReconnectConfig bounds automatic reconnection after an unexpected drop
type ReconnectConfig struct {
	Enabled         bool     `json:"enabled" yaml:"enabled"`
	InitialInterval Duration `json:"initial_interval" yaml:"initial_interval"`
	MaxInterval     Duration `json:"max_interval" yaml:"max_interval"`
	Multiplier      float64  `json:"multiplier" yaml:"multiplier"`
	Timeout         Duration `json:"timeout" yaml:"timeout"` // total window per reconnection round
}

// GenerationConfig configures the generation orchestrator
type GenerationConfig struct {
	OutputDir           string   `json:"output_dir" yaml:"output_dir"`
	InterruptTimeout    Duration `json:"interrupt_timeout" yaml:"interrupt_timeout"`
	PreviewFrames       int      `json:"preview_frames" yaml:"preview_frames"`
	DownloadConcurrency int      `json:"download_concurrency" yaml:"download_concurrency"`
	HistoryCacheTTL     Duration `json:"history_cache_ttl" yaml:"history_cache_ttl"`
}

// SubscriberConfig sizes per-subscriber delivery queues
type SubscriberConfig struct {
	QueueSize int `json:"queue_size" yaml:"queue_size"`
}

// NotifyConfig selects where generation notifications go.
// An empty NATSURL logs notifications instead of publishing them.
type NotifyConfig struct {
	NATSURL string `json:"nats_url" yaml:"nats_url"`
	Subject string `json:"subject" yaml:"subject"`
}

// LogConfig configures the root logger
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// HTTPConfig configures the health and metrics listener. Empty Listen disables it.
type HTTPConfig struct {
	Listen string `json:"listen" yaml:"listen"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			URL:              "http://127.0.0.1:8188",
			HandshakeTimeout: Duration(10 * time.Second),
			RequestTimeout:   Duration(30 * time.Second),
			PingInterval:     Duration(30 * time.Second),
		},
		Reconnect: ReconnectConfig{
			Enabled:         true,
			InitialInterval: Duration(250 * time.Millisecond),
			MaxInterval:     Duration(5 * time.Second),
			Multiplier:      2.0,
			Timeout:         Duration(30 * time.Second),
		},
		Generation: GenerationConfig{
			OutputDir:           "output",
			InterruptTimeout:    Duration(3 * time.Second),
			PreviewFrames:       8,
			DownloadConcurrency: 4,
			HistoryCacheTTL:     Duration(5 * time.Minute),
		},
		Subscribers: SubscriberConfig{
			QueueSize: 256,
		},
		Notify: NotifyConfig{
			Subject: "genstream.notifications",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks if the config is valid
func (c *Config) Validate() error {
	if c.Backend.URL == "" {
		return missing("backend.url")
	}
	u, err := url.Parse(c.Backend.URL)
	if err != nil {
		return invalid("backend.url", err.Error())
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return invalid("backend.url", fmt.Sprintf("unsupported scheme %q", u.Scheme))
	}
	if u.Host == "" {
		return invalid("backend.url", "host is required")
	}

	if err := c.Backend.TLS.Validate(); err != nil {
		return err
	}

	if c.Backend.HandshakeTimeout < 0 || c.Backend.RequestTimeout < 0 || c.Backend.PingInterval < 0 {
		return invalid("backend", "timeouts cannot be negative")
	}

	if c.Reconnect.Enabled {
		if c.Reconnect.Timeout <= 0 {
			return invalid("reconnect.timeout", "must be positive when reconnect is enabled")
		}
		if c.Reconnect.InitialInterval <= 0 {
			return invalid("reconnect.initial_interval", "must be positive")
		}
		if c.Reconnect.MaxInterval < c.Reconnect.InitialInterval {
			return invalid("reconnect.max_interval", "must not be below initial_interval")
		}
		if c.Reconnect.Multiplier < 1 {
			return invalid("reconnect.multiplier", "must be at least 1")
		}
	}

	if c.Generation.InterruptTimeout <= 0 {
		return invalid("generation.interrupt_timeout", "must be positive")
	}
	if c.Generation.PreviewFrames < 0 {
		return invalid("generation.preview_frames", "cannot be negative")
	}
	if c.Generation.DownloadConcurrency < 1 {
		return invalid("generation.download_concurrency", "must be at least 1")
	}
	if c.Subscribers.QueueSize < 1 {
		return invalid("subscribers.queue_size", "must be at least 1")
	}

	if c.Notify.NATSURL != "" && c.Notify.Subject == "" {
		return missing("notify.subject")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log.level", fmt.Sprintf("unknown level %q", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return invalid("log.format", fmt.Sprintf("unknown format %q", c.Log.Format))
	}

	return nil
}

func missing(field string) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrMissingConfig, field),
		"Config", "Validate", "check required fields")
}

func invalid(field, reason string) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %s: %s", errors.ErrInvalidConfig, field, reason),
		"Config", "Validate", "check field values")
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Duration is a time.Duration that reads Go duration strings ("250ms", "30s")
// as well as integer nanoseconds, and writes itself as a string.
type Duration time.Duration

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return d.set(raw)
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	return d.set(raw)
}

func (d *Duration) set(raw any) error {
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(time.Duration(v))
	case int:
		*d = Duration(time.Duration(v))
	case nil:
		*d = 0
	default:
		return fmt.Errorf("invalid duration value %v (%T)", raw, raw)
	}
	return nil
}
