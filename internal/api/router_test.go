package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/licsync/licsync/internal/models"
)

type stubSyncService struct {
	resp models.SyncResponse
	got  *models.SyncRequest
}

func (s *stubSyncService) ServiceRequest(ctx context.Context, req models.SyncRequest) models.SyncResponse {
	s.got = &req
	return s.resp
}

func newTestRouter(service *stubSyncService) *Router {
	return NewRouter(Config{
		NodeKeys: []string{"node-key"},
		Version:  "test",
		Commit:   "none",
	}, service, zerolog.Nop())
}

func postSync(t *testing.T, router *Router, key string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/api/v1/sync", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	w := httptest.NewRecorder()
	router.Engine.ServeHTTP(w, req)
	return w
}

func TestSyncEndpoint(t *testing.T) {
	service := &stubSyncService{resp: models.SyncResponse{
		DictionaryIncluded: models.IncludedYes,
		ReferenceIncluded:  models.IncludedNo,
		Payload:            []byte("archive-bytes"),
	}}
	router := newTestRouter(service)

	w := postSync(t, router, "node-key", models.SyncRequest{})
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, service.got)

	var resp models.SyncResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.IncludedYes, resp.DictionaryIncluded)
	assert.Equal(t, models.IncludedNo, resp.ReferenceIncluded)
	assert.Equal(t, []byte("archive-bytes"), resp.Payload)
}

func TestSyncEndpointRequiresKey(t *testing.T) {
	router := newTestRouter(&stubSyncService{})

	w := postSync(t, router, "", models.SyncRequest{})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = postSync(t, router, "wrong-key", models.SyncRequest{})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSyncEndpointRejectsMalformedBody(t *testing.T) {
	router := newTestRouter(&stubSyncService{})

	req := httptest.NewRequest("POST", "/api/v1/sync", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Authorization", "Bearer node-key")
	w := httptest.NewRecorder()
	router.Engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthAndVersion(t *testing.T) {
	router := newTestRouter(&stubSyncService{})

	w := httptest.NewRecorder()
	router.Engine.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.Engine.ServeHTTP(w, httptest.NewRequest("GET", "/version", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"test"`)
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(&stubSyncService{})

	w := httptest.NewRecorder()
	router.Engine.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
