package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/arbguard/internal/logger"
)

func TestHealth_AllChecksHealthy(t *testing.T) {
	s := NewServer(0, "v1.2.3", logger.NewNop())
	s.RegisterCheck("rpc:1", func(context.Context) (bool, string) { return true, "block 19000000" })

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var status Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, "v1.2.3", status.Version)
	assert.True(t, status.Checks["rpc:1"].Healthy)
}

func TestHealth_DegradedWhenAnyCheckFails(t *testing.T) {
	s := NewServer(0, "dev", logger.NewNop())
	s.RegisterCheck("rpc:1", func(context.Context) (bool, string) { return true, "" })
	s.RegisterCheck("rpc:5000", func(context.Context) (bool, string) { return false, "dial timeout" })

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "degraded")

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
