package http

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/skarab42/pantin/internal/browser"
	"github.com/skarab42/pantin/internal/pool"
)

// responseType selects how Screenshot encodes the captured PNG in the HTTP
// response, per spec.md §6.
type responseType string

const (
	responseAttachment     responseType = "attachment"
	responseImagePNGBase64 responseType = "image-png-base64"
	responseImagePNGBytes  responseType = "image-png-bytes"
	responseJSONPNGBase64  responseType = "json-png-base64"
	responseJSONPNGBytes   responseType = "json-png-bytes"
)

// Screenshot implements spec.md §6's GET /screenshot: it parses the query
// string into a browser.ScreenshotRequest, leases a handle from the fleet
// pool, drives the capture, and encodes the PNG per response_type.
func (h *Handlers) Screenshot(c *gin.Context) {
	req, respType, err := parseScreenshotQuery(c)
	if err != nil {
		writeError(c, err)
		return
	}

	if err := req.Validate(); err != nil {
		writeError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.requestTimeout)
	defer cancel()

	start := time.Now()

	handle, err := h.pool.Acquire(ctx)
	if err != nil {
		h.log.Debug("acquire failed", zap.Error(err))
		writeError(c, err)
		return
	}

	png, err := handle.Screenshot(ctx, req)
	if err != nil {
		outcome := pool.Healthy
		if browser.IsTransportFatal(err) || ctx.Err() != nil {
			outcome = pool.Broken
		}
		h.pool.Release(handle, outcome)
		h.metrics.RecordScreenshot(time.Since(start), causeOf(err))
		h.log.Debug("screenshot failed", zap.String("url", req.URL), zap.Error(err))
		writeError(c, err)
		return
	}

	h.pool.Release(handle, pool.Healthy)
	h.metrics.RecordScreenshot(time.Since(start), "")

	writeScreenshot(c, png, respType)
}

// parseScreenshotQuery reads and defaults spec.md §6's query parameters.
func parseScreenshotQuery(c *gin.Context) (browser.ScreenshotRequest, responseType, error) {
	rawURL := c.Query("url")
	if rawURL == "" {
		return browser.ScreenshotRequest{}, "", fmt.Errorf("%w: url is required", browser.ErrInvalidURL)
	}

	req := browser.DefaultRequest(rawURL)

	if v := c.Query("delay"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return browser.ScreenshotRequest{}, "", fmt.Errorf("%w: invalid delay %q", browser.ErrInvalidURL, v)
		}
		req.DelayMs = n
	}
	if v := c.Query("width"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return browser.ScreenshotRequest{}, "", fmt.Errorf("%w: invalid width %q", browser.ErrInvalidURL, v)
		}
		req.Width = n
	}
	if v := c.Query("height"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return browser.ScreenshotRequest{}, "", fmt.Errorf("%w: invalid height %q", browser.ErrInvalidURL, v)
		}
		req.Height = n
	}
	if v := c.Query("scrollbar"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return browser.ScreenshotRequest{}, "", fmt.Errorf("%w: invalid scrollbar %q", browser.ErrInvalidURL, v)
		}
		req.Scrollbar = b
	}

	switch c.DefaultQuery("mode", "viewport") {
	case "full":
		req.Mode = browser.ModeFull
	case "selector":
		req.Mode = browser.ModeSelector
		req.Selector = c.Query("selector")
	case "xpath":
		req.Mode = browser.ModeXPath
		req.Xpath = c.Query("xpath")
	case "viewport":
		req.Mode = browser.ModeViewport
	default:
		return browser.ScreenshotRequest{}, "", fmt.Errorf("%w: unknown mode %q", browser.ErrInvalidURL, c.Query("mode"))
	}

	respType := responseType(c.DefaultQuery("response_type", string(responseImagePNGBytes)))
	switch respType {
	case responseAttachment, responseImagePNGBase64, responseImagePNGBytes, responseJSONPNGBase64, responseJSONPNGBytes:
	default:
		return browser.ScreenshotRequest{}, "", fmt.Errorf("%w: unknown response_type %q", browser.ErrInvalidURL, respType)
	}

	return req, respType, nil
}

// writeScreenshot encodes png per spec.md §6's response_type variants.
func writeScreenshot(c *gin.Context, png []byte, respType responseType) {
	switch respType {
	case responseAttachment:
		c.Header("Content-Disposition", `attachment; filename="screenshot.png"`)
		c.Data(http.StatusOK, "image/png", png)
	case responseImagePNGBase64:
		body := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
		c.Data(http.StatusOK, "text/plain", []byte(body))
	case responseJSONPNGBase64:
		c.JSON(http.StatusOK, gin.H{"base64": base64.StdEncoding.EncodeToString(png)})
	case responseJSONPNGBytes:
		bytes := make([]int, len(png))
		for i, b := range png {
			bytes[i] = int(b)
		}
		c.JSON(http.StatusOK, gin.H{"bytes": bytes})
	default: // responseImagePNGBytes
		c.Data(http.StatusOK, "image/png", png)
	}
}

// causeOf reports the kebab-case cause metrics record for a failed
// screenshot request, reusing the same classification as the HTTP mapping.
func causeOf(err error) string {
	_, cause := classify(err)
	return cause
}
