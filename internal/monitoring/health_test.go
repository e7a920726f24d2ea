package monitoring

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveHealth(t *testing.T, h *HealthChecker) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	return rec
}

func TestHealth_HealthyAfterHeartbeat(t *testing.T) {
	h := NewHealthChecker()
	h.SetConnected(true)
	h.MarkCycle()

	rec := serveHealth(t, h)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.True(t, body.IsConnected)
}

func TestHealth_DegradedWhenDisconnected(t *testing.T) {
	h := NewHealthChecker()
	h.MarkCycle()
	h.SetConnected(false)

	rec := serveHealth(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
}

func TestHealth_StaleWithErrorsResolvesToOneStatus(t *testing.T) {
	// No heartbeat, disconnected, and recent errors at once: the handler
	// must settle on a single status code, not write two headers
	h := NewHealthChecker()
	h.RecordError("order rejected")

	rec := serveHealth(t, h)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, []string{"order rejected"}, body.Errors)
}

func TestHealth_ErrorsClearAfterRecovery(t *testing.T) {
	h := NewHealthChecker()
	h.SetConnected(true)
	h.MarkCycle()
	h.RecordError("transient fetch failure")
	h.ClearErrors()

	rec := serveHealth(t, h)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Empty(t, body.Errors)
}
