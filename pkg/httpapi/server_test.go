package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mazerunner/harness/test/dbtest"
)

type fakePoolStats struct{ admitted int }

func (f fakePoolStats) SessionsProcessed() int { return f.admitted }

func TestServer_Health_ReportsHealthyWithAdmissionStats(t *testing.T) {
	storeClient := dbtest.NewTestClient(t)
	s := NewServer(storeClient, fakePoolStats{admitted: 3})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	admission, ok := body["admission"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 3, admission["experiments_admitted"])
}

func TestServer_Health_ReportsUnhealthyWhenDatabaseClosed(t *testing.T) {
	storeClient := dbtest.NewTestClient(t)
	require.NoError(t, storeClient.Close())

	s := NewServer(storeClient, fakePoolStats{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_Shutdown_NoopBeforeStart(t *testing.T) {
	storeClient := dbtest.NewTestClient(t)
	s := NewServer(storeClient, nil)
	assert.NoError(t, s.Shutdown(context.Background()))
}
