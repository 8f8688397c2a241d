package server

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-vre/pkg/metrics"
	"github.com/dd0wney/cluso-vre/pkg/pipeline"
)

func TestStatusHandler(t *testing.T) {
	tracker := pipeline.NewTracker()
	mux := StatusHandler(metrics.NewRegistry(), tracker, time.Now())

	for path, want := range map[string]int{
		"/metrics": http.StatusOK,
		"/healthz": http.StatusOK,
		"/readyz":  http.StatusServiceUnavailable,
	} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, want, rec.Code, path)
	}
}

func TestStatusServer_StopsWithContext(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	srv := NewStatusServer(ln.Addr().String(), handler, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.False(t, srv.IsShuttingDown())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * DefaultShutdownTimeout):
		t.Fatal("server did not stop after cancellation")
	}
	assert.True(t, srv.IsShuttingDown())
}

func TestStatusServer_ShutdownOnce(t *testing.T) {
	srv := NewStatusServer("127.0.0.1:0", http.NotFoundHandler(), nil)

	assert.NoError(t, srv.Shutdown(time.Second))
	assert.NoError(t, srv.Shutdown(time.Second))
	assert.True(t, srv.IsShuttingDown())
}
