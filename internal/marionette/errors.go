package marionette

import (
	"errors"
	"fmt"
)

// ErrConnectionLost is returned by every pending and future call once the
// transport's reader goroutine observes the socket close or a framing
// error. It is transport-fatal: the owning handle must be discarded.
var ErrConnectionLost = errors.New("marionette connection lost")

// CommandError wraps a Marionette command failure response, carrying the
// server's error code, human message, and stacktrace verbatim.
type CommandError struct {
	Code       string
	Message    string
	Stacktrace string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("marionette command failed: %s: %s", e.Code, e.Message)
}

// nonRecoverableCodes mirrors spec.md §7: a command failure with one of
// these codes means the session itself is unusable and the owning handle
// must be marked Broken rather than left Healthy.
var nonRecoverableCodes = map[string]bool{
	"invalid session id": true,
	"unknown error":      true,
}

// NonRecoverable reports whether this command failure indicates the
// Marionette session is no longer usable.
func (e *CommandError) NonRecoverable() bool {
	return nonRecoverableCodes[e.Code]
}

// ErrElementNotFound is returned when FindElement matches nothing.
var ErrElementNotFound = errors.New("element not found")

// ErrInvalidScreenshotEncoding is returned when the base64 screenshot
// payload fails to decode.
var ErrInvalidScreenshotEncoding = errors.New("invalid screenshot encoding")
