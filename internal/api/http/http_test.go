package http

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skarab42/pantin/internal/infrastructure/monitoring"
	"github.com/skarab42/pantin/internal/marionette"
)

// testMetrics returns a single process-wide *monitoring.Metrics: the
// Prometheus collectors it creates register with the default registry, so
// constructing it more than once per test binary panics on duplicate
// registration.
var testMetrics = sync.OnceValue(monitoring.NewMetrics)

// fakeMarionetteSession stands in for a real browser for handler tests,
// mirroring internal/browser's own fakeSession helper.
type fakeMarionetteSession struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
}

func startFakeMarionetteSession(t *testing.T) (*marionette.Client, *fakeMarionetteSession) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := listener.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	addr := listener.Addr().String()
	type result struct {
		client *marionette.Client
		err    error
	}
	clientDone := make(chan result, 1)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		conn, err := marionette.Connect(ctx, addr, 2*time.Second)
		if err != nil {
			clientDone <- result{nil, err}
			return
		}
		client, err := marionette.NewClient(ctx, conn)
		clientDone <- result{client, err}
	}()

	serverConn := <-accepted
	t.Cleanup(func() { serverConn.Close() })

	fake := &fakeMarionetteSession{t: t, conn: serverConn, reader: bufio.NewReader(serverConn)}
	fake.writeNetstring(`{"marionetteProtocol":3,"applicationType":"gecko"}`)
	fake.expectOK(`{"sessionId":"sess-1","capabilities":{}}`)

	r := <-clientDone
	require.NoError(t, r.err)

	return r.client, fake
}

func (f *fakeMarionetteSession) writeNetstring(body string) {
	f.t.Helper()
	_, err := fmt.Fprintf(f.conn, "%d:%s", len(body), body)
	require.NoError(f.t, err)
}

func (f *fakeMarionetteSession) readRequestID() uint32 {
	f.t.Helper()
	length := 0
	for {
		b, err := f.reader.ReadByte()
		require.NoError(f.t, err)
		if b == ':' {
			break
		}
		length = length*10 + int(b-'0')
	}
	buf := make([]byte, length)
	_, err := io.ReadFull(f.reader, buf)
	require.NoError(f.t, err)

	var tuple [4]json.RawMessage
	require.NoError(f.t, json.Unmarshal(buf, &tuple))
	var id uint32
	require.NoError(f.t, json.Unmarshal(tuple[1], &id))
	return id
}

func (f *fakeMarionetteSession) expectOK(resultJSON string) {
	f.t.Helper()
	id := f.readRequestID()
	body, err := json.Marshal([4]any{1, id, nil, json.RawMessage(resultJSON)})
	require.NoError(f.t, err)
	f.writeNetstring(string(body))
}

func (f *fakeMarionetteSession) expectErr(code, message string) {
	f.t.Helper()
	id := f.readRequestID()
	failure, _ := json.Marshal(map[string]string{"error": code, "message": message, "stacktrace": ""})
	body, err := json.Marshal([4]any{2, id, json.RawMessage(failure), nil})
	require.NoError(f.t, err)
	f.writeNetstring(string(body))
}
