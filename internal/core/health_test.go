package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveHealth(t *testing.T, checks ...HealthCheck) (int, healthResponse) {
	t.Helper()
	srv := newTestServer(t)
	srv.Config.Build.Version = "1.4.0"
	srv.HealthChecks = checks

	rec := httptest.NewRecorder()
	srv.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var resp healthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return rec.Code, resp
}

func ok(context.Context) error { return nil }

func TestHandleHealth_NoChecks(t *testing.T) {
	code, resp := serveHealth(t)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "1.4.0", resp.Version)
	assert.Empty(t, resp.Components)
}

func TestHandleHealth_AllHealthy(t *testing.T) {
	code, resp := serveHealth(t, NewPingCheck("database", ok), NewPingCheck("redis", ok))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "healthy", resp.Components["database"].Status)
	assert.Equal(t, "healthy", resp.Components["redis"].Status)
}

func TestHandleHealth_FailingCheck(t *testing.T) {
	code, resp := serveHealth(t,
		NewPingCheck("database", ok),
		NewPingCheck("redis", func(context.Context) error { return errors.New("connection refused") }),
	)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Equal(t, "healthy", resp.Components["database"].Status)
	assert.Equal(t, "connection refused", resp.Components["redis"].Message)
}

func TestHandleHealth_PanickingCheck(t *testing.T) {
	code, resp := serveHealth(t, NewPingCheck("database", func(context.Context) error { panic("nil pool") }))
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, resp.Components["database"].Message, "check panicked")
}

func TestHandleHealth_SlowCheckTimesOut(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the health check deadline")
	}
	release := make(chan struct{})
	defer close(release)

	slow := NewPingCheck("redis", func(ctx context.Context) error {
		select {
		case <-release:
		case <-time.After(10 * time.Second):
		}
		return nil
	})

	code, resp := serveHealth(t, slow)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "health check timed out", resp.Components["redis"].Message)
}
