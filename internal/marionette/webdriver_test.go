package marionette

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer answers one request per call to handle() with a canned
// success or failure body, keyed by command name.
type fakeServer struct {
	t      *testing.T
	server net.Conn
	reader *bufio.Reader
}

func newFakeServer(t *testing.T) (*Conn, *fakeServer) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { server.Close() })

	conn := newPipeConn(client)
	t.Cleanup(conn.Close)

	return conn, &fakeServer{t: t, server: server, reader: bufio.NewReader(server)}
}

func (f *fakeServer) expectOK(resultJSON string) {
	f.t.Helper()
	raw, err := readFrame(f.reader)
	require.NoError(f.t, err)
	var msg rawMessage
	require.NoError(f.t, json.Unmarshal(raw, &msg))

	resp := rawMessage{Type: typeResponseOK, ID: msg.ID, Fourth: json.RawMessage(resultJSON)}
	data, err := json.Marshal(resp)
	require.NoError(f.t, err)
	require.NoError(f.t, writeFrame(f.server, data))
}

func (f *fakeServer) expectErr(code, message string) {
	f.t.Helper()
	raw, err := readFrame(f.reader)
	require.NoError(f.t, err)
	var msg rawMessage
	require.NoError(f.t, json.Unmarshal(raw, &msg))

	failure, _ := json.Marshal(map[string]string{"error": code, "message": message, "stacktrace": ""})
	resp := rawMessage{Type: typeResponseErr, ID: msg.ID, Third: failure}
	data, err := json.Marshal(resp)
	require.NoError(f.t, err)
	require.NoError(f.t, writeFrame(f.server, data))
}

func TestNewClientNegotiatesSession(t *testing.T) {
	conn, fake := newFakeServer(t)

	go fake.expectOK(`{"sessionId":"sess-1","capabilities":{}}`)

	client, err := NewClient(context.Background(), conn)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", client.SessionID)
}

func TestFindElementNotFound(t *testing.T) {
	conn, fake := newFakeServer(t)
	client := &Client{conn: conn, SessionID: "sess"}

	go fake.expectErr("no such element", "Unable to locate element")

	_, err := client.FindElement(context.Background(), UsingCSSSelector, ".missing")
	assert.ErrorIs(t, err, ErrElementNotFound)
}

func TestFindElementReturnsID(t *testing.T) {
	conn, fake := newFakeServer(t)
	client := &Client{conn: conn, SessionID: "sess"}

	go fake.expectOK(`{"value":{"element-6066-11e4-a52e-4f735466cecf":"elem-42"}}`)

	id, err := client.FindElement(context.Background(), UsingCSSSelector, "#main")
	require.NoError(t, err)
	assert.Equal(t, "elem-42", id)
}

func TestTakeScreenshotDecodesBase64(t *testing.T) {
	conn, fake := newFakeServer(t)
	client := &Client{conn: conn, SessionID: "sess"}

	pngMagic := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	encoded := base64.StdEncoding.EncodeToString(pngMagic)

	go fake.expectOK(`{"value":"` + encoded + `"}`)

	data, err := client.TakeScreenshot(context.Background(), Viewport())
	require.NoError(t, err)
	assert.Equal(t, pngMagic, data)
}

func TestTakeScreenshotInvalidBase64(t *testing.T) {
	conn, fake := newFakeServer(t)
	client := &Client{conn: conn, SessionID: "sess"}

	go fake.expectOK(`{"value":"not-valid-base64!!"}`)

	_, err := client.TakeScreenshot(context.Background(), FullPage())
	assert.ErrorIs(t, err, ErrInvalidScreenshotEncoding)
}

func TestCommandErrorNonRecoverable(t *testing.T) {
	err := &CommandError{Code: "invalid session id"}
	assert.True(t, err.NonRecoverable())

	err = &CommandError{Code: "no such element"}
	assert.False(t, err.NonRecoverable())
}

func TestNavigateAndSetWindowRect(t *testing.T) {
	conn, fake := newFakeServer(t)
	client := &Client{conn: conn, SessionID: "sess"}

	go fake.expectOK(`{}`)
	require.NoError(t, client.SetWindowRect(context.Background(), 800, 600))

	go fake.expectOK(`{"value":null}`)
	require.NoError(t, client.Navigate(context.Background(), "https://example.com"))
}
