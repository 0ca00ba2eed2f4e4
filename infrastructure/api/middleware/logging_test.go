package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func logOneRequest(t *testing.T, status int) map[string]any {
	t.Helper()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte("x"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogging_InfoOnSuccess(t *testing.T) {
	entry := logOneRequest(t, http.StatusOK)

	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "request completed", entry["msg"])
	assert.Equal(t, "GET", entry["method"])
	assert.Equal(t, "/health", entry["path"])
	assert.Equal(t, float64(http.StatusOK), entry["status"])
	assert.Equal(t, float64(1), entry["bytes"])
}

func TestLogging_WarnOnClientError(t *testing.T) {
	entry := logOneRequest(t, http.StatusNotFound)
	assert.Equal(t, "WARN", entry["level"])
}

func TestLogging_ErrorOnServerError(t *testing.T) {
	entry := logOneRequest(t, http.StatusInternalServerError)
	assert.Equal(t, "ERROR", entry["level"])
}
