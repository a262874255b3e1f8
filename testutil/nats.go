package testutil

import (
	"testing"

	"github.com/nats-io/nats-server/v2/server"
	natstest "github.com/nats-io/nats-server/v2/test"
)

// RunNATSServer starts an embedded NATS server on a random port and shuts
// it down when the test ends.
func RunNATSServer(t testing.TB) *server.Server {
	t.Helper()

	opts := natstest.DefaultTestOptions
	opts.Port = server.RANDOM_PORT
	s := natstest.RunServer(&opts)
	t.Cleanup(s.Shutdown)
	return s
}
