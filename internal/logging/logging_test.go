package logging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMiddleware_GeneratesRequestID(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	Replace(zap.New(core))

	var seen string
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/flmngr?action=getVersion", nil))

	id := rec.Header().Get(RequestIDHeader)
	require.NotEmpty(t, id)
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, id, seen)

	done := logs.FilterMessage("request completed").All()
	require.Len(t, done, 1)
	assert.Equal(t, int64(http.StatusTeapot), done[0].ContextMap()["status"])
	assert.Equal(t, id, done[0].ContextMap()["request_id"])
}

func TestMiddleware_KeepsClientRequestID(t *testing.T) {
	Replace(zap.NewNop())

	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestWithContext_FallsBackToGlobal(t *testing.T) {
	l := zap.NewNop()
	Replace(l)
	assert.Same(t, l, WithContext(context.Background()))
	assert.Empty(t, GetRequestID(context.Background()))
}

func TestSetLevel(t *testing.T) {
	out := filepath.Join(t.TempDir(), "log.json")
	require.NoError(t, Init(Config{Level: "info", Format: "json", OutputPath: out}))
	t.Cleanup(func() { Replace(zap.NewNop()) })

	Debug("hidden")
	require.NoError(t, SetLevel("debug"))
	Debug("shown")
	require.Error(t, SetLevel("loud"))
	_ = Sync()

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "shown")

	require.NoError(t, SetLevel("info"))
}
