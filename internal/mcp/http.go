package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/wiplab/wip-agent/internal/httpkit"
)

// HTTPTransport talks to a streamable-HTTP MCP server: each JSON-RPC
// message is one POST to the endpoint. The server may assign a session
// ID via the Mcp-Session-Id header, which is echoed on later requests.
type HTTPTransport struct {
	url        string
	headers    map[string]string
	httpClient *http.Client

	mu        sync.Mutex
	sessionID string
}

// NewHTTPTransport creates a transport for the given MCP endpoint URL.
// Extra headers (e.g. Authorization) are sent on every request.
func NewHTTPTransport(url string, headers map[string]string) *HTTPTransport {
	return &HTTPTransport{
		url:     url,
		headers: headers,
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(2 * time.Minute),
		),
	}
}

// Send posts a request and decodes the JSON-RPC response.
func (t *HTTPTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	body, err := t.post(ctx, req)
	if err != nil {
		return nil, err
	}

	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &resp, nil
}

// Notify posts a notification. Servers answer notifications with 202
// and an empty body; anything 2xx is accepted.
func (t *HTTPTransport) Notify(ctx context.Context, notif *Notification) error {
	_, err := t.post(ctx, notif)
	return err
}

func (t *HTTPTransport) post(ctx context.Context, msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range t.headers {
		httpReq.Header.Set(k, v)
	}

	t.mu.Lock()
	if t.sessionID != "" {
		httpReq.Header.Set("Mcp-Session-Id", t.sessionID)
	}
	t.mu.Unlock()

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 1<<20)

	if sid := resp.Header.Get("Mcp-Session-Id"); sid != "" {
		t.mu.Lock()
		t.sessionID = sid
		t.mu.Unlock()
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody := httpkit.ReadErrorBody(resp.Body, 4096)
		return nil, fmt.Errorf("server error %d: %s", resp.StatusCode, errBody)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return buf.Bytes(), nil
}

// Close is a no-op for the HTTP transport.
func (t *HTTPTransport) Close() error {
	return nil
}
