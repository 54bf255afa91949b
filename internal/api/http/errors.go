package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skarab42/pantin/internal/browser"
	"github.com/skarab42/pantin/internal/marionette"
	"github.com/skarab42/pantin/internal/pool"
	"github.com/skarab42/pantin/internal/process"
)

// errorResponse is the shape of every non-2xx JSON body pantin returns,
// per spec.md §7.
type errorResponse struct {
	Cause  string `json:"cause"`
	Detail string `json:"detail"`
}

// writeError maps err onto the spec.md §7 HTTP status/cause table and
// writes the JSON error body. It is the single place that decides how a
// core error surfaces to an HTTP caller.
func writeError(c *gin.Context, err error) {
	status, cause := classify(err)
	c.JSON(status, errorResponse{Cause: cause, Detail: err.Error()})
}

// classify returns the HTTP status and kebab-case cause for err, per
// spec.md §7: request-scoped client-input errors map to 400, request-scoped
// upstream-browser errors map to 502, construction/pool-exhaustion errors
// map to 503, everything else maps to 500.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, browser.ErrInvalidURL):
		return http.StatusBadRequest, "invalid-url"

	case errors.Is(err, marionette.ErrElementNotFound):
		return http.StatusBadGateway, "element-not-found"
	case errors.Is(err, browser.ErrNavigationFailed):
		return http.StatusBadGateway, "navigation-failed"
	case errors.Is(err, marionette.ErrInvalidScreenshotEncoding):
		return http.StatusBadGateway, "invalid-screenshot-encoding"
	case errors.Is(err, marionette.ErrConnectionLost):
		return http.StatusBadGateway, "connection-lost"

	case errors.Is(err, pool.ErrAcquireTimeout):
		return http.StatusServiceUnavailable, "acquire-timeout"
	case errors.Is(err, pool.ErrPoolClosed):
		return http.StatusServiceUnavailable, "pool-closed"
	case errors.Is(err, process.ErrSpawnFailed):
		return http.StatusServiceUnavailable, "spawn-failed"
	case errors.Is(err, process.ErrPortNotReady):
		return http.StatusServiceUnavailable, "port-not-ready"
	case errors.Is(err, marionette.ErrUnsupportedProtocol):
		return http.StatusServiceUnavailable, "unsupported-protocol"

	default:
		var cmdErr *marionette.CommandError
		if errors.As(err, &cmdErr) {
			if cmdErr.NonRecoverable() {
				return http.StatusServiceUnavailable, "marionette-error"
			}
			return http.StatusBadGateway, "marionette-error"
		}
		return http.StatusInternalServerError, "internal"
	}
}
