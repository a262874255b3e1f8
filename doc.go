// Package genstream is a client for workflow-based image generation backends.
//
// A backend accepts a job graph over HTTP, reports execution over a
// websocket event stream and serves the produced artifacts for download.
// genstream turns that into a small set of layers, each usable on its own.
//
// # Architecture
//
//	cmd/genstream     command line: generate, watch, outputs, interrupt
//	generation        one request end to end: submit, await, fetch, save
//	client            protocol façade: submit, interrupt, outputs, subscriptions
//	protocol          event decoding and demultiplexing
//	jobtable          job id to completion handle correlation
//	transport         websocket connection with keepalive and reconnection
//	notify            user-facing notifications (log, NATS)
//
// Supporting packages:
//
//	config            layered JSON/YAML configuration with env overrides
//	errors            classified errors and domain sentinels
//	metric            Prometheus registry and protocol metrics
//	health            health status reporting
//	pkg/retry         context-aware exponential backoff
//	pkg/worker        bounded worker pool used for subscriber queues
//	pkg/buffer        ring buffer for recent preview frames
//	pkg/tlsutil       client TLS for https and wss backends
//	testutil          in-process fake backend and embedded NATS server
//
// # Event Flow
//
// Every inbound frame travels one path: the transport's receive loop hands it
// to the demultiplexer, which decodes it, resolves the job table on a
// terminal executing event and then publishes it to the subscribers of its
// kind. Each subscriber owns a bounded queue, so a slow subscriber loses its
// own notifications and never delays the receive loop.
//
//	backend ──ws──▶ transport ──▶ protocol.Demux ──▶ jobtable (terminal events)
//	                                   │
//	                                   └──▶ client hubs ──▶ subscribers
//
// # Quick Start
//
//	c, err := client.New(client.DefaultConfig("http://127.0.0.1:8188"))
//	if err != nil {
//		return err
//	}
//	defer c.Close(ctx)
//	if err := c.Connect(ctx); err != nil {
//		return err
//	}
//
//	gen := generation.New(c, "output")
//	result, err := gen.Run(ctx, generation.Request{
//		Workflow:    graph,
//		OutputSlots: []string{"9"},
//	})
//
// From the command line:
//
//	genstream generate --workflow graph.json --output-slot 9
//	genstream watch --log-format json
package genstream
