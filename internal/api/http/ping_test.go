package http

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/skarab42/pantin/internal/browser"
	"github.com/skarab42/pantin/internal/pool"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakePool is a minimal HandlePool stub for handler tests.
type fakePool struct {
	handle     *browser.Handle
	acquireErr error
	released   []pool.Outcome
	live, idle int
}

func (p *fakePool) Acquire(ctx context.Context) (*browser.Handle, error) {
	if p.acquireErr != nil {
		return nil, p.acquireErr
	}
	return p.handle, nil
}

func (p *fakePool) Release(handle *browser.Handle, outcome pool.Outcome) {
	p.released = append(p.released, outcome)
}

func (p *fakePool) Stats() (int, int) { return p.live, p.idle }

func newTestHandlers(p HandlePool) *Handlers {
	return New(p, testMetrics(), zap.NewNop(), 5*time.Second)
}

func TestPingReturnsPong(t *testing.T) {
	h := newTestHandlers(&fakePool{})
	r := gin.New()
	r.GET("/ping", h.Ping)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/ping", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, 200, w.Code)
	assert.JSONEq(t, `{"data":"pong"}`, w.Body.String())
}

func TestPingIsIdempotent(t *testing.T) {
	h := newTestHandlers(&fakePool{})
	r := gin.New()
	r.GET("/ping", h.Ping)

	first := httptest.NewRecorder()
	r.ServeHTTP(first, httptest.NewRequest("GET", "/ping", nil))

	second := httptest.NewRecorder()
	r.ServeHTTP(second, httptest.NewRequest("GET", "/ping", nil))

	assert.Equal(t, first.Body.String(), second.Body.String())
}

func TestHealthReportsPoolStats(t *testing.T) {
	h := newTestHandlers(&fakePool{live: 2, idle: 1})
	r := gin.New()
	r.GET("/health", h.Health)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

	require.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), `"live":2`)
	assert.Contains(t, w.Body.String(), `"idle":1`)
}
