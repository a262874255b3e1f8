// Package config loads the client configuration.
//
// A Config starts from Default(), is overlaid by zero or more JSON or YAML
// files, then by GENSTREAM_* environment variables, and is finally validated:
//
//	loader := config.NewLoader()
//	loader.AddLayer("genstream.yaml")
//	cfg, err := loader.Load()
//
// Later layers override earlier ones key by key, so a layer only needs the
// fields it changes:
//
//	backend:
//	  url: http://gpu-box:8188
//	reconnect:
//	  timeout: 45s
//
// Durations are written as Go duration strings ("250ms", "30s"); integer
// nanoseconds are accepted too.
//
// # Environment Overrides
//
//   - GENSTREAM_BACKEND_URL
//   - GENSTREAM_OUTPUT_DIR
//   - GENSTREAM_NATS_URL, GENSTREAM_NOTIFY_SUBJECT
//   - GENSTREAM_LOG_LEVEL, GENSTREAM_LOG_FORMAT
//   - GENSTREAM_HTTP_LISTEN
//   - GENSTREAM_RECONNECT_ENABLED, GENSTREAM_RECONNECT_TIMEOUT
//   - GENSTREAM_INTERRUPT_TIMEOUT
//
// Validation errors wrap errors.ErrInvalidConfig or errors.ErrMissingConfig
// and are classified as invalid.
package config
