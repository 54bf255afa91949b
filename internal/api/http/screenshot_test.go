package http

import (
	"encoding/base64"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/skarab42/pantin/internal/browser"
	"github.com/skarab42/pantin/internal/pool"
)

var pngMagic = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

func newScreenshotRouter(t *testing.T, p *fakePool) *gin.Engine {
	t.Helper()
	h := newTestHandlers(p)
	r := gin.New()
	r.GET("/screenshot", h.Screenshot)
	return r
}

func TestScreenshotImagePNGBytesHappyPath(t *testing.T) {
	client, fake := startFakeMarionetteSession(t)
	encoded := base64.StdEncoding.EncodeToString(pngMagic)

	go func() {
		fake.expectOK(`{}`)
		fake.expectOK(`{"value":null}`)
		fake.expectOK(`{"value":null}`)
		fake.expectOK(`{"value":"` + encoded + `"}`)
	}()

	handle := browser.NewDetached(client, zap.NewNop())
	p := &fakePool{handle: handle}
	r := newScreenshotRouter(t, p)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/screenshot?url=https://example.com&width=320&height=200", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, 200, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, pngMagic, w.Body.Bytes())
	require.Len(t, p.released, 1)
	assert.Equal(t, 0, int(p.released[0])) // pool.Healthy
}

func TestScreenshotJSONPNGBase64(t *testing.T) {
	client, fake := startFakeMarionetteSession(t)
	encoded := base64.StdEncoding.EncodeToString(pngMagic)

	go func() {
		fake.expectOK(`{}`)
		fake.expectOK(`{"value":null}`)
		fake.expectOK(`{"value":null}`)
		fake.expectOK(`{"value":"` + encoded + `"}`)
	}()

	handle := browser.NewDetached(client, zap.NewNop())
	p := &fakePool{handle: handle}
	r := newScreenshotRouter(t, p)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/screenshot?url=https://example.com&response_type=json-png-base64", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, 200, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))

	var body struct {
		Base64 string `json:"base64"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	decoded, err := base64.StdEncoding.DecodeString(body.Base64)
	require.NoError(t, err)
	assert.Equal(t, pngMagic, decoded)
}

func TestScreenshotMissingURLIsBadRequest(t *testing.T) {
	p := &fakePool{}
	r := newScreenshotRouter(t, p)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/screenshot", nil))

	assert.Equal(t, 400, w.Code)
	assert.Contains(t, w.Body.String(), `"cause":"invalid-url"`)
}

func TestScreenshotSelectorNotFoundIsBadGatewayAndHandleStaysHealthy(t *testing.T) {
	client, fake := startFakeMarionetteSession(t)

	go func() {
		fake.expectOK(`{}`)
		fake.expectOK(`{"value":null}`)
		fake.expectOK(`{"value":null}`)
		fake.expectErr("no such element", "Unable to locate element")
	}()

	handle := browser.NewDetached(client, zap.NewNop())
	p := &fakePool{handle: handle}
	r := newScreenshotRouter(t, p)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/screenshot?url=https://example.com&mode=selector&selector=.missing", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, 502, w.Code)
	assert.Contains(t, w.Body.String(), `"cause":"element-not-found"`)
	require.Len(t, p.released, 1)
	assert.Equal(t, 0, int(p.released[0])) // pool.Healthy: element-not-found is request-scoped
}

func TestScreenshotAcquireTimeoutIsServiceUnavailable(t *testing.T) {
	p := &fakePool{acquireErr: pool.ErrAcquireTimeout}
	r := newScreenshotRouter(t, p)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/screenshot?url=https://example.com", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, 503, w.Code)
	assert.Contains(t, w.Body.String(), `"cause":"acquire-timeout"`)
}
