// Package process supervises a headless browser subprocess: it prepares an
// isolated profile directory, spawns the executable, waits for its
// Marionette port to come up, and reaps it on shutdown.
package process

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

//go:embed assets/user.js
var assets embed.FS

var (
	// ErrSpawnFailed indicates the OS rejected the exec of the browser program.
	ErrSpawnFailed = errors.New("spawn failed")
	// ErrPortNotReady indicates the Marionette port never accepted a connection.
	ErrPortNotReady = errors.New("port not ready")
)

// KillGrace is the delay between a graceful termination request and a
// force-kill, per spec.md's process drop sequence.
const KillGrace = 5 * time.Second

// Handle owns one spawned browser subprocess and its temp profile directory.
// A Handle is live iff its ProfileDir still exists.
type Handle struct {
	Pid        int
	Port       int
	ProfileDir string

	cmd    *exec.Cmd
	log    *zap.Logger
	exited chan struct{}

	mu     sync.Mutex
	killed bool
}

// FreePort asks the OS for an unused ephemeral TCP port on 127.0.0.1.
// Binding and releasing a port before handing it to a subprocess is
// inherently racy; callers that spawn a process with this port must retry
// on bind failure (spec.md §5 "Port selection race").
func FreePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("reserve free port: %w", err)
	}
	defer listener.Close()

	addr, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		return 0, fmt.Errorf("reserve free port: unexpected addr type %T", listener.Addr())
	}
	return addr.Port, nil
}

// Spawn prepares a profile directory at profileDir, writes its user.js, and
// launches program in headless Marionette mode bound to port.
func Spawn(ctx context.Context, log *zap.Logger, program, profileDir string, port int, traceIO bool) (*Handle, error) {
	if err := writeProfile(profileDir, port); err != nil {
		return nil, fmt.Errorf("%w: prepare profile: %v", ErrSpawnFailed, err)
	}

	args := []string{
		"--marionette",
		"--headless",
		"--profile", profileDir,
		"-no-remote",
		"--marionette-port", strconv.Itoa(port),
	}

	cmd := exec.CommandContext(ctx, program, args...)
	// Firefox forks content-process children under the same pgid; putting
	// it in its own process group lets Kill signal the whole group instead
	// of orphaning those children when the parent exits first.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if traceIO {
		cmd.Stdout = &lineLogger{log: log, pid: func() int { return cmd.Process.Pid }, stream: "stdout"}
		cmd.Stderr = &lineLogger{log: log, pid: func() int { return cmd.Process.Pid }, stream: "stderr"}
	} else {
		cmd.Stdout = io.Discard
		cmd.Stderr = io.Discard
	}

	log.Debug("spawning browser process", zap.String("program", program), zap.Strings("args", args))

	if err := cmd.Start(); err != nil {
		os.RemoveAll(profileDir)
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	handle := &Handle{
		Pid:        cmd.Process.Pid,
		Port:       port,
		ProfileDir: profileDir,
		cmd:        cmd,
		log:        log,
		exited:     make(chan struct{}),
	}

	go handle.reap()

	return handle, nil
}

// reap is the sole owner of cmd.Wait: os/exec forbids calling Wait more
// than once on the same *exec.Cmd, so Kill must never start a second Wait
// of its own and instead waits on exited, which reap closes once the real
// Wait returns. This also reaps the child so it never becomes a zombie.
func (h *Handle) reap() {
	h.cmd.Wait()
	close(h.exited)
}

// WaitForPort polls TCP connectivity to 127.0.0.1:Port until it succeeds or
// ctx is done, backing off 50ms between attempts.
func (h *Handle) WaitForPort(ctx context.Context) error {
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(h.Port))

	for {
		conn, err := net.Dial("tcp", addr)
		if err == nil {
			conn.Close()
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrPortNotReady, ctx.Err())
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// Kill terminates the subprocess and removes its profile directory. It is
// idempotent and safe to call more than once. Errors are logged, never
// propagated, per spec.md §4.A "Kill errors are logged, not propagated."
func (h *Handle) Kill() {
	h.mu.Lock()
	if h.killed {
		h.mu.Unlock()
		return
	}
	h.killed = true
	h.mu.Unlock()

	if h.cmd.Process != nil {
		if err := signalGroup(h.Pid, syscall.SIGTERM); err != nil && h.log != nil {
			h.log.Debug("graceful terminate failed", zap.Int("pid", h.Pid), zap.Error(err))
		}

		select {
		case <-h.exited:
		case <-time.After(KillGrace):
			if err := signalGroup(h.Pid, syscall.SIGKILL); err != nil && h.log != nil {
				h.log.Debug("force kill failed", zap.Int("pid", h.Pid), zap.Error(err))
			}
		}
	}

	if err := os.RemoveAll(h.ProfileDir); err != nil && h.log != nil {
		h.log.Debug("remove profile dir failed", zap.String("dir", h.ProfileDir), zap.Error(err))
	}
}

// signalGroup sends sig to the entire process group rooted at pid (Setpgid
// makes pid its own group leader, so the group id equals pid), reaching any
// content-process children the browser forked, not just the leader.
func signalGroup(pid int, sig syscall.Signal) error {
	return syscall.Kill(-pid, sig)
}

// Alive reports whether the subprocess has not exited and its profile
// directory still exists. A process that exits on its own leaves its
// profile directory behind, so the exit is checked as well.
func (h *Handle) Alive() bool {
	select {
	case <-h.exited:
		return false
	default:
	}
	_, err := os.Stat(h.ProfileDir)
	return err == nil
}

func writeProfile(dir string, port int) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	static, err := assets.ReadFile("assets/user.js")
	if err != nil {
		return err
	}

	portPref := fmt.Sprintf("user_pref(\"marionette.port\", %d);\n", port)
	content := append(append([]byte{}, static...), []byte(portPref)...)

	return os.WriteFile(filepath.Join(dir, "user.js"), content, 0o600)
}

// lineLogger pipes subprocess stdio to debug-level log lines (pantin's
// trace level also logs at zap's debug level), grounded on
// the original Rust implementation's trace_child_output behavior.
type lineLogger struct {
	log    *zap.Logger
	pid    func() int
	stream string
	buf    []byte
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.buf = append(l.buf, p...)
	for {
		idx := indexByte(l.buf, '\n')
		if idx < 0 {
			break
		}
		line := string(l.buf[:idx])
		l.buf = l.buf[idx+1:]
		l.log.Debug(fmt.Sprintf("[%s] %s", l.stream, line), zap.Int("pid", l.pid()))
	}
	return len(p), nil
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}
