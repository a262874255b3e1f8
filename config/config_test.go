package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/genstream/errors"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newTestLoader(env map[string]string) *Loader {
	l := NewLoader()
	l.getenv = func(k string) string { return env[k] }
	return l
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 30*time.Second, cfg.Reconnect.Timeout.Std())
	assert.Equal(t, 3*time.Second, cfg.Generation.InterruptTimeout.Std())
}

func TestLoader_LoadJSON(t *testing.T) {
	path := writeFile(t, "genstream.json", `{
		"backend": {"url": "http://gpu:8188", "request_timeout": "5s"},
		"reconnect": {"timeout": "45s"},
		"generation": {"output_dir": "/tmp/out", "preview_frames": 2}
	}`)

	cfg, err := newTestLoader(nil).LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "http://gpu:8188", cfg.Backend.URL)
	assert.Equal(t, 5*time.Second, cfg.Backend.RequestTimeout.Std())
	assert.Equal(t, 45*time.Second, cfg.Reconnect.Timeout.Std())
	assert.Equal(t, "/tmp/out", cfg.Generation.OutputDir)
	assert.Equal(t, 2, cfg.Generation.PreviewFrames)

	// untouched keys keep their defaults
	assert.True(t, cfg.Reconnect.Enabled)
	assert.Equal(t, 10*time.Second, cfg.Backend.HandshakeTimeout.Std())
	assert.Equal(t, 4, cfg.Generation.DownloadConcurrency)
}

func TestLoader_LoadYAML(t *testing.T) {
	path := writeFile(t, "genstream.yaml", `
backend:
  url: https://render.example
  ping_interval: 0s
reconnect:
  enabled: false
notify:
  nats_url: nats://127.0.0.1:4222
  subject: studio.events
log:
  level: debug
  format: json
`)

	cfg, err := newTestLoader(nil).LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "https://render.example", cfg.Backend.URL)
	assert.Equal(t, time.Duration(0), cfg.Backend.PingInterval.Std())
	assert.False(t, cfg.Reconnect.Enabled)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.Notify.NATSURL)
	assert.Equal(t, "studio.events", cfg.Notify.Subject)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoader_Layers(t *testing.T) {
	base := writeFile(t, "base.json", `{"backend": {"url": "http://a:1"}, "subscribers": {"queue_size": 16}}`)
	override := writeFile(t, "override.yml", "backend:\n  url: http://b:2\n")

	l := newTestLoader(nil)
	l.AddLayer(base)
	l.AddLayer(override)
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, "http://b:2", cfg.Backend.URL)
	assert.Equal(t, 16, cfg.Subscribers.QueueSize)
}

func TestLoader_EnvOverrides(t *testing.T) {
	cfg, err := newTestLoader(map[string]string{
		"GENSTREAM_BACKEND_URL":       "http://env:9000",
		"GENSTREAM_RECONNECT_TIMEOUT": "12s",
		"GENSTREAM_RECONNECT_ENABLED": "false",
		"GENSTREAM_LOG_FORMAT":        "json",
	}).Load()
	require.NoError(t, err)

	assert.Equal(t, "http://env:9000", cfg.Backend.URL)
	assert.Equal(t, 12*time.Second, cfg.Reconnect.Timeout.Std())
	assert.False(t, cfg.Reconnect.Enabled)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoader_EnvOverrideInvalid(t *testing.T) {
	_, err := newTestLoader(map[string]string{"GENSTREAM_INTERRUPT_TIMEOUT": "soon"}).Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestLoader_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := newTestLoader(nil).LoadFile(filepath.Join(t.TempDir(), "nope.json"))
		assert.Error(t, err)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		_, err := newTestLoader(nil).LoadFile(writeFile(t, "cfg.toml", "x = 1"))
		assert.Error(t, err)
	})

	t.Run("bad duration", func(t *testing.T) {
		_, err := newTestLoader(nil).LoadFile(writeFile(t, "cfg.json", `{"reconnect": {"timeout": "later"}}`))
		assert.Error(t, err)
	})

	t.Run("too deep", func(t *testing.T) {
		deep := strings.Repeat("[", maxJSONDepth+1) + strings.Repeat("]", maxJSONDepth+1)
		_, err := newTestLoader(nil).LoadFile(writeFile(t, "cfg.json", `{"x": `+deep+`}`))
		assert.Error(t, err)
	})

	t.Run("validation can be disabled", func(t *testing.T) {
		l := newTestLoader(nil)
		l.EnableValidation(false)
		cfg, err := l.LoadFile(writeFile(t, "cfg.json", `{"log": {"level": "loud"}}`))
		require.NoError(t, err)
		assert.Equal(t, "loud", cfg.Log.Level)
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		missing bool
	}{
		{"empty url", func(c *Config) { c.Backend.URL = "" }, true},
		{"bad scheme", func(c *Config) { c.Backend.URL = "ftp://x" }, false},
		{"no host", func(c *Config) { c.Backend.URL = "http://" }, false},
		{"zero reconnect window", func(c *Config) { c.Reconnect.Timeout = 0 }, false},
		{"max below initial", func(c *Config) { c.Reconnect.MaxInterval = 1 }, false},
		{"shrinking multiplier", func(c *Config) { c.Reconnect.Multiplier = 0.5 }, false},
		{"zero interrupt timeout", func(c *Config) { c.Generation.InterruptTimeout = 0 }, false},
		{"no download workers", func(c *Config) { c.Generation.DownloadConcurrency = 0 }, false},
		{"no queue", func(c *Config) { c.Subscribers.QueueSize = 0 }, false},
		{"nats without subject", func(c *Config) { c.Notify.NATSURL = "nats://x"; c.Notify.Subject = "" }, true},
		{"tls cert without key", func(c *Config) { c.Backend.TLS.CertFile = "client.pem" }, false},
		{"tls version", func(c *Config) { c.Backend.TLS.MinVersion = "1.1" }, false},
		{"unknown level", func(c *Config) { c.Log.Level = "trace" }, false},
		{"unknown format", func(c *Config) { c.Log.Format = "xml" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
			if tt.missing {
				assert.ErrorIs(t, err, errors.ErrMissingConfig)
			} else {
				assert.ErrorIs(t, err, errors.ErrInvalidConfig)
			}
		})
	}

	t.Run("reconnect disabled skips window checks", func(t *testing.T) {
		cfg := Default()
		cfg.Reconnect.Enabled = false
		cfg.Reconnect.Timeout = 0
		assert.NoError(t, cfg.Validate())
	})
}

func TestDuration_JSON(t *testing.T) {
	var d Duration
	require.NoError(t, json.Unmarshal([]byte(`"1m30s"`), &d))
	assert.Equal(t, 90*time.Second, d.Std())

	require.NoError(t, json.Unmarshal([]byte(`1000000`), &d))
	assert.Equal(t, time.Millisecond, d.Std())

	out, err := json.Marshal(Duration(2 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, `"2s"`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`true`), &d))
}
