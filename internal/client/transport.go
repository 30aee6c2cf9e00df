// Package client implements the enforcement node's side of the sync
// protocol: polling the server, unpacking the payload, and refreshing
// the local cache.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/licsync/licsync/internal/models"
)

// Transport delivers a sync request to the server.
type Transport interface {
	Sync(ctx context.Context, req models.SyncRequest) (models.SyncResponse, error)
}

// HTTPTransport talks to the licsync server over HTTP.
type HTTPTransport struct {
	serverURL  string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPTransport creates a transport for the given server.
func NewHTTPTransport(serverURL, apiKey string) *HTTPTransport {
	return &HTTPTransport{
		serverURL: serverURL,
		apiKey:    apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Sync posts the sync request and decodes the response.
func (t *HTTPTransport) Sync(ctx context.Context, syncReq models.SyncRequest) (models.SyncResponse, error) {
	var syncResp models.SyncResponse

	data, err := json.Marshal(syncReq)
	if err != nil {
		return syncResp, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", t.serverURL+"/api/v1/sync", bytes.NewReader(data))
	if err != nil {
		return syncResp, err
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return syncResp, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return syncResp, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return syncResp, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, &syncResp); err != nil {
		return syncResp, fmt.Errorf("decode response: %w", err)
	}
	return syncResp, nil
}
