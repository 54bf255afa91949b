package browser

import (
	"errors"

	"github.com/skarab42/pantin/internal/marionette"
	"github.com/skarab42/pantin/internal/process"
)

// ErrNavigationFailed wraps a Navigate command failure; it is request-scoped
// and leaves the handle Healthy unless the wrapped failure is itself
// transport-fatal (see IsTransportFatal).
var ErrNavigationFailed = errors.New("navigation failed")

// IsTransportFatal reports whether err means the underlying Marionette
// connection or session can no longer serve requests, per spec.md §7: a
// ConnectionLost, a SpawnFailed/PortNotReady at construction time, or a
// CommandError whose code is non-recoverable. Any other error (element not
// found, navigation failure, invalid url, invalid screenshot encoding) is
// request-scoped and the handle remains Healthy.
func IsTransportFatal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, marionette.ErrConnectionLost) {
		return true
	}
	if errors.Is(err, process.ErrSpawnFailed) || errors.Is(err, process.ErrPortNotReady) {
		return true
	}

	var cmdErr *marionette.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.NonRecoverable()
	}

	return false
}
