package marionette

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// handshake is the server's unsolicited hello, sent as a bare JSON object
// (not the [type,id,name,payload] tuple) immediately after connect.
type handshake struct {
	MarionetteProtocol int    `json:"marionetteProtocol"`
	ApplicationType    string `json:"applicationType"`
}

type waiter chan callResult

type callResult struct {
	result json.RawMessage
	err    error
}

// Conn is a single TCP connection to a Marionette server. One background
// reader goroutine owns the socket's read half and demultiplexes responses
// to their waiting callers by message id; writes are serialized through
// writeMu. This mirrors spec.md §4.B and the original Rust
// one-writer-lock-one-reader-task design (§9).
type Conn struct {
	conn   net.Conn
	reader *bufio.Reader

	nextID uint32

	mu      sync.Mutex
	waiters map[uint32]waiter
	lost    error

	writeMu sync.Mutex

	closeOnce func()
}

// Connect dials addr, reads and validates the handshake, and starts the
// reader goroutine. handshakeTimeout bounds only the handshake read.
func Connect(ctx context.Context, addr string, handshakeTimeout time.Duration) (*Conn, error) {
	dialer := net.Dialer{}
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial marionette: %w", err)
	}

	if err := netConn.SetReadDeadline(time.Now().Add(handshakeTimeout)); err != nil {
		netConn.Close()
		return nil, fmt.Errorf("set handshake deadline: %w", err)
	}

	reader := bufio.NewReader(netConn)
	raw, err := readFrame(reader)
	if err != nil {
		netConn.Close()
		return nil, fmt.Errorf("read handshake: %w", err)
	}

	var hs handshake
	if err := json.Unmarshal(raw, &hs); err != nil {
		netConn.Close()
		return nil, fmt.Errorf("parse handshake: %w", err)
	}

	if hs.ApplicationType != "gecko" {
		netConn.Close()
		return nil, fmt.Errorf("%w: application type %q", ErrUnsupportedProtocol, hs.ApplicationType)
	}
	if hs.MarionetteProtocol != 3 {
		netConn.Close()
		return nil, fmt.Errorf("%w: protocol version %d", ErrUnsupportedProtocol, hs.MarionetteProtocol)
	}

	if err := netConn.SetReadDeadline(time.Time{}); err != nil {
		netConn.Close()
		return nil, fmt.Errorf("clear handshake deadline: %w", err)
	}

	c := &Conn{
		conn:    netConn,
		reader:  reader,
		waiters: make(map[uint32]waiter),
	}
	c.closeOnce = sync.OnceFunc(func() { netConn.Close() })

	go c.readLoop()

	return c, nil
}

// Close closes the underlying socket, which causes readLoop to observe EOF
// and fail every pending waiter with ErrConnectionLost.
func (c *Conn) Close() {
	c.closeOnce()
}

func (c *Conn) readLoop() {
	for {
		raw, err := readFrame(c.reader)
		if err != nil {
			c.fail(fmt.Errorf("%w: %v", ErrConnectionLost, err))
			return
		}

		var msg rawMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.fail(fmt.Errorf("%w: %v", ErrConnectionLost, err))
			return
		}

		c.deliver(msg)
	}
}

func (c *Conn) deliver(msg rawMessage) {
	c.mu.Lock()
	w, ok := c.waiters[msg.ID]
	if ok {
		delete(c.waiters, msg.ID)
	}
	c.mu.Unlock()

	if !ok {
		return
	}

	switch msg.Type {
	case typeResponseOK:
		w <- callResult{result: msg.Fourth}
	case typeResponseErr:
		var failure struct {
			Error      string `json:"error"`
			Message    string `json:"message"`
			Stacktrace string `json:"stacktrace"`
		}
		if err := json.Unmarshal(msg.Third, &failure); err != nil {
			w <- callResult{err: fmt.Errorf("parse command failure: %w", err)}
			return
		}
		w <- callResult{err: &CommandError{Code: failure.Error, Message: failure.Message, Stacktrace: failure.Stacktrace}}
	default:
		w <- callResult{err: fmt.Errorf("unexpected marionette message type %d", msg.Type)}
	}
}

// fail marks the connection lost and fails every pending waiter exactly
// once; it is safe to call multiple times.
func (c *Conn) fail(err error) {
	c.mu.Lock()
	if c.lost != nil {
		c.mu.Unlock()
		return
	}
	c.lost = err
	waiters := c.waiters
	c.waiters = make(map[uint32]waiter)
	c.mu.Unlock()

	for _, w := range waiters {
		w <- callResult{err: err}
	}
}

// Call sends a typed command and blocks until the matching response
// arrives, ctx is cancelled, or the connection is lost. A cancelled call
// removes its own waiter registration so the reader goroutine never leaks
// a slot for an id no caller is listening on (spec.md §9 "Cancellation
// correctness").
func (c *Conn) Call(ctx context.Context, name string, params, result any) error {
	id := atomic.AddUint32(&c.nextID, 1) - 1

	c.mu.Lock()
	if c.lost != nil {
		err := c.lost
		c.mu.Unlock()
		return err
	}
	respCh := make(waiter, 1)
	c.waiters[id] = respCh
	c.mu.Unlock()

	payload, err := encodeRequest(id, name, params)
	if err != nil {
		c.removeWaiter(id)
		return err
	}

	c.writeMu.Lock()
	writeErr := writeFrame(c.conn, payload)
	c.writeMu.Unlock()
	if writeErr != nil {
		c.removeWaiter(id)
		return fmt.Errorf("%w: %v", ErrConnectionLost, writeErr)
	}

	select {
	case res := <-respCh:
		if res.err != nil {
			return res.err
		}
		if result == nil || len(res.result) == 0 {
			return nil
		}
		if err := json.Unmarshal(res.result, result); err != nil {
			return fmt.Errorf("decode marionette result: %w", err)
		}
		return nil
	case <-ctx.Done():
		c.removeWaiter(id)
		return ctx.Err()
	}
}

func (c *Conn) removeWaiter(id uint32) {
	c.mu.Lock()
	delete(c.waiters, id)
	c.mu.Unlock()
}
