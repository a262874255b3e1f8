// Package retry provides exponential backoff retry logic for transient failures.
//
// # Core Functions
//
//   - Do: execute a function with retry and exponential backoff
//   - DoWithResult: same, returning a value
//
// # Presets
//
//   - DefaultConfig(): 3 attempts, 100ms-5s delay (request/response calls)
//   - Reconnect(window): unlimited attempts inside a fixed time window (transport reconnection)
//
// # Usage
//
//	err := retry.Do(ctx, retry.Reconnect(30*time.Second), func(ctx context.Context) error {
//	    return dial(ctx)
//	})
//
// The context handed to the function is bounded by MaxElapsed, so a slow dial
// cannot overrun the window. Errors wrapped with NonRetryable stop immediately.
//
// All functions are safe for concurrent use.
package retry
