// Package transport maintains the duplex event connection to the backend.
//
// A Transport dials ws(s)://host/ws?clientId=ID with gorilla/websocket and
// runs one receive goroutine that hands every text and binary frame to a
// MessageHandler in arrival order. The connection is receive-only; the client
// never writes application messages to it.
//
// # Lifecycle
//
//	tr, _ := transport.New(cfg, demux.Handle, transport.WithStateHandler(onState))
//	if err := tr.Connect(ctx); err != nil { ... } // errors.ErrConnection
//	defer tr.Close(ctx)
//
// Connect is a no-op while connected or reconnecting. Close sends a
// normal-closure frame, is idempotent, and is final.
//
// # Reconnection
//
// When the connection drops unexpectedly the receive goroutine emits a
// Connecting event with Reconnect set and retries the dial with exponential
// backoff inside a bounded window (ReconnectBackoff.MaxElapsed). On success
// it emits Connected and keeps reading from the new connection. When the
// window elapses it emits Disconnected carrying an ErrConnection error and
// stops; the caller may Connect again. Drops are reported only through
// these events and never fail anything else.
//
// With PingInterval set, the transport pings the backend and treats two
// silent intervals as a drop.
package transport
