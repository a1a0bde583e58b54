package middleware

import (
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/fieldservice-locator/internal/domain/providers"
)

type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMapCache() *mapCache {
	return &mapCache{data: make(map[string][]byte)}
}

func (c *mapCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.data[key]; ok {
		return v, nil
	}
	return nil, providers.ErrCacheMiss
}

func (c *mapCache) Set(ctx context.Context, key string, value []byte, expirationSeconds int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = append([]byte(nil), value...)
	return nil
}

func (c *mapCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *mapCache) Exists(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok, nil
}

func countingHandler(calls *int, status int, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	})
}

func TestCacheMiddleware(t *testing.T) {
	calls := 0
	handler := NewCacheMiddleware(newMapCache(), nil).Middleware(countingHandler(&calls, http.StatusOK, `{"count":2}`))

	tests := []struct {
		name          string
		method        string
		target        string
		expectedCache string
		expectedCalls int
	}{
		{name: "first listing misses", method: http.MethodGet, target: "/api/providers", expectedCache: "MISS", expectedCalls: 1},
		{name: "second listing hits", method: http.MethodGet, target: "/api/providers", expectedCache: "HIT", expectedCalls: 1},
		{name: "different query misses", method: http.MethodGet, target: "/api/classify?q=a", expectedCache: "MISS", expectedCalls: 2},
		{name: "single provider is not cached", method: http.MethodGet, target: "/api/providers/p-1", expectedCache: "", expectedCalls: 3},
		{name: "session routes are not cached", method: http.MethodGet, target: "/api/sessions/abc", expectedCache: "", expectedCalls: 4},
		{name: "posts are not cached", method: http.MethodPost, target: "/api/providers", expectedCache: "", expectedCalls: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(tt.method, tt.target, nil))

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.expectedCache, w.Header().Get("X-Cache"))
			assert.Equal(t, tt.expectedCalls, calls)
			assert.JSONEq(t, `{"count":2}`, w.Body.String())
		})
	}
}

func TestCacheMiddleware_SkipsErrors(t *testing.T) {
	calls := 0
	handler := NewCacheMiddleware(newMapCache(), nil).Middleware(countingHandler(&calls, http.StatusBadGateway, `{"error":"down"}`))

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/providers", nil))
		assert.Equal(t, http.StatusBadGateway, w.Code)
	}
	assert.Equal(t, 2, calls)
}

func TestCompression(t *testing.T) {
	calls := 0
	handler := Compression(countingHandler(&calls, http.StatusOK, `{"ok":true}`))

	req := httptest.NewRequest(http.MethodGet, "/api/providers", nil)
	req.Header.Set("Accept-Encoding", "gzip, deflate")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
	gz, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	body, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))

	req = httptest.NewRequest(http.MethodGet, "/api/sessions/abc/stream", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Content-Encoding"), "streams are never compressed")
}

func TestETag_PassesStreamsThrough(t *testing.T) {
	flushed := false
	handler := ETag(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, flushed = w.(http.Flusher)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/sessions/abc/stream", nil))

	assert.True(t, flushed)
}

func TestCORSMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	tests := []struct {
		name           string
		allowed        []string
		method         string
		origin         string
		expectedCode   int
		expectedOrigin string
	}{
		{name: "wildcard", allowed: nil, method: http.MethodGet, origin: "https://a.example", expectedCode: http.StatusTeapot, expectedOrigin: "*"},
		{name: "listed origin", allowed: []string{"https://a.example"}, method: http.MethodGet, origin: "https://a.example", expectedCode: http.StatusTeapot, expectedOrigin: "https://a.example"},
		{name: "unlisted origin", allowed: []string{"https://a.example"}, method: http.MethodGet, origin: "https://b.example", expectedCode: http.StatusTeapot, expectedOrigin: ""},
		{name: "preflight", allowed: nil, method: http.MethodOptions, origin: "https://a.example", expectedCode: http.StatusOK, expectedOrigin: "*"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/providers", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()

			CORSMiddleware(tt.allowed)(next).ServeHTTP(w, req)

			assert.Equal(t, tt.expectedCode, w.Code)
			assert.Equal(t, tt.expectedOrigin, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestLoggingAndObservability_KeepFlusher(t *testing.T) {
	var flusher bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, flusher = w.(http.Flusher)
		w.WriteHeader(http.StatusAccepted)
	})
	handler := ObservabilityMiddleware(nil)(LoggingMiddleware(inner))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sessions/abc/stream", nil))

	assert.True(t, flusher)
	assert.Equal(t, http.StatusAccepted, w.Code)
}
