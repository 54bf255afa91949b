// Package browser composes a supervised process (internal/process) and a
// negotiated Marionette session (internal/marionette) into a single handle
// exposing a screenshot operation, per spec.md §4.D.
package browser

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/skarab42/pantin/internal/marionette"
	"github.com/skarab42/pantin/internal/process"
)

// HandshakeTimeout bounds the Marionette handshake read after the port
// accepts a connection.
const HandshakeTimeout = 5 * time.Second

// PortReadyTimeout bounds process.Handle.WaitForPort, per spec.md §5.
const PortReadyTimeout = 30 * time.Second

// SpawnAttempts is the number of times Create retries the full
// port-select/spawn/wait sequence before giving up, per spec.md §5 "Port
// selection race... retries (bounded) are mandatory."
const SpawnAttempts = 3

// Handle owns one browser subprocess bound to one Marionette session. It
// tracks its own use_count so the pool can enforce max_recycle_count
// without reaching into pool-private state, and records its creation time
// in CreatedAt. The pool measures max age from when a handle was last
// returned to idle, not from CreatedAt.
type Handle struct {
	ID        uuid.UUID
	UseCount  int
	CreatedAt time.Time

	proc   *process.Handle
	conn   *marionette.Conn
	client *marionette.Client

	log *zap.Logger
}

// Create spawns a fresh browser process and negotiates a Marionette
// session against it, retrying the whole sequence up to SpawnAttempts
// times if the chosen ephemeral port loses its bind race. On any
// unrecoverable failure, all resources acquired so far are released in
// reverse order before returning, per spec.md §4.D construction step.
func Create(ctx context.Context, log *zap.Logger, program string) (*Handle, error) {
	var lastErr error

	for attempt := 1; attempt <= SpawnAttempts; attempt++ {
		handle, err := createOnce(ctx, log, program)
		if err == nil {
			return handle, nil
		}
		lastErr = err
		log.Debug("browser create attempt failed", zap.Int("attempt", attempt), zap.Error(err))
	}

	return nil, fmt.Errorf("create browser handle after %d attempts: %w", SpawnAttempts, lastErr)
}

func createOnce(ctx context.Context, log *zap.Logger, program string) (*Handle, error) {
	id := uuid.New()

	port, err := process.FreePort()
	if err != nil {
		return nil, fmt.Errorf("select port: %w", err)
	}

	profileDir := filepath.Join(os.TempDir(), "pantin-moz-profile-"+id.String())

	proc, err := process.Spawn(ctx, log, program, profileDir, port, log.Core().Enabled(zapcore.DebugLevel))
	if err != nil {
		return nil, fmt.Errorf("spawn process: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, PortReadyTimeout)
	err = proc.WaitForPort(waitCtx)
	cancel()
	if err != nil {
		proc.Kill()
		return nil, fmt.Errorf("wait for port: %w", err)
	}

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	conn, err := marionette.Connect(ctx, addr, HandshakeTimeout)
	if err != nil {
		proc.Kill()
		return nil, fmt.Errorf("connect marionette: %w", err)
	}

	client, err := marionette.NewClient(ctx, conn)
	if err != nil {
		conn.Close()
		proc.Kill()
		return nil, fmt.Errorf("negotiate session: %w", err)
	}

	log.Debug("browser handle created",
		zap.String("id", id.String()),
		zap.Int("pid", proc.Pid),
		zap.String("session", client.SessionID),
	)

	return &Handle{
		ID:        id,
		CreatedAt: time.Now(),
		proc:      proc,
		conn:      conn,
		client:    client,
		log:       log,
	}, nil
}

// Screenshot implements spec.md §4.D's SetWindowRect -> (CSS patch) ->
// Navigate -> delay -> capture sequence, strictly ordered within one call.
func (h *Handle) Screenshot(ctx context.Context, req ScreenshotRequest) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if err := h.client.SetWindowRect(ctx, req.Width, req.Height); err != nil {
		return nil, err
	}

	if !req.Scrollbar {
		script := "let style = document.createElement('style'); " +
			"style.innerHTML = 'html { overflow: hidden !important }'; " +
			"document.head.appendChild(style);"
		if _, err := h.client.ExecuteScript(ctx, script, nil); err != nil {
			return nil, err
		}
	}

	if err := h.client.Navigate(ctx, req.URL); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNavigationFailed, err)
	}

	if req.DelayMs > 0 {
		select {
		case <-time.After(time.Duration(req.DelayMs) * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	opts, err := h.captureOptions(ctx, req)
	if err != nil {
		return nil, err
	}

	return h.client.TakeScreenshot(ctx, opts)
}

func (h *Handle) captureOptions(ctx context.Context, req ScreenshotRequest) (marionette.TakeScreenshotOptions, error) {
	switch req.Mode {
	case ModeFull:
		return marionette.FullPage(), nil
	case ModeSelector:
		id, err := h.client.FindElement(ctx, marionette.UsingCSSSelector, req.Selector)
		if err != nil {
			return marionette.TakeScreenshotOptions{}, err
		}
		return marionette.Element(id), nil
	case ModeXPath:
		id, err := h.client.FindElement(ctx, marionette.UsingXPath, req.Xpath)
		if err != nil {
			return marionette.TakeScreenshotOptions{}, err
		}
		return marionette.Element(id), nil
	default:
		return marionette.Viewport(), nil
	}
}

// Pid returns the underlying browser process id, or 0 if this handle has
// no supervised process (see NewDetached).
func (h *Handle) Pid() int {
	if h.proc == nil {
		return 0
	}
	return h.proc.Pid
}

// Alive reports whether the underlying process is still running and its
// profile directory still exists. A detached handle is always considered
// alive.
func (h *Handle) Alive() bool {
	if h.proc == nil {
		return true
	}
	return h.proc.Alive()
}

// Close runs the drop sequence from spec.md §4.D: best-effort Quit, then
// connection close, then process kill (which also removes the profile
// directory).
func (h *Handle) Close(ctx context.Context) {
	if err := h.client.Quit(ctx); err != nil {
		h.log.Debug("quit command failed", zap.String("id", h.ID.String()), zap.Error(err))
	}
	if h.conn != nil {
		h.conn.Close()
	}
	if h.proc != nil {
		h.proc.Kill()
	}
}

// NewDetached wraps an already-negotiated Marionette client in a Handle
// with no supervised process, for callers (pool tests, embedding
// scenarios) that drive a pre-existing session rather than spawning one.
func NewDetached(client *marionette.Client, log *zap.Logger) *Handle {
	return &Handle{ID: uuid.New(), CreatedAt: time.Now(), client: client, log: log}
}
