// Package protocol decodes the backend event stream and routes each event.
//
// Text frames are JSON envelopes {"type": kind, "data": {...}}. The kinds
// understood here are status, executing and progress; every other kind is
// dropped so newer backends can add events freely. Binary frames start with
// a 4-byte big-endian event code; code 1 is a preview image followed by a
// 4-byte image format and the image bytes.
//
// Demux applies the routing rules:
//
//   - Executing: terminal events (empty node) resolve the job through the
//     Resolver first, then every Executing event goes to the Dispatcher
//   - Status, Progress, Preview: Dispatcher only
//
// Previews carry no job id on the wire. Demux attributes them, and progress
// frames that lack a prompt id, to the job of the latest non-terminal
// Executing event.
package protocol
