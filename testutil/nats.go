package testutil

import (
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
)

// StartNATSServer runs an in-process NATS server on a random port and
// returns its client URL. The server is shut down when the test ends.
func StartNATSServer(t *testing.T) string {
	t.Helper()

	ns, err := server.NewServer(&server.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	})
	require.NoError(t, err)

	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server failed to start")
	}
	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return ns.ClientURL()
}

// Subscribe connects to url and collects raw message payloads of subject.
func Subscribe(t *testing.T, url, subject string) <-chan []byte {
	t.Helper()

	nc, err := nats.Connect(url)
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	ch := make(chan []byte, 256)
	_, err = nc.Subscribe(subject, func(m *nats.Msg) {
		ch <- append([]byte(nil), m.Data...)
	})
	require.NoError(t, err)
	require.NoError(t, nc.Flush())
	return ch
}
