// Package client talks to a running pagewise gateway over HTTP and
// WebSocket.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/raphaelgruber/pagewise/internal/manager"
	"github.com/raphaelgruber/pagewise/internal/metrics"
)

// DefaultEndpoint is used when neither an endpoint nor PAGEWISE_SERVER_URL
// is given.
const DefaultEndpoint = "http://127.0.0.1:8484"

// Client calls the gateway.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// New creates a client. An empty endpoint falls back to
// PAGEWISE_SERVER_URL and then DefaultEndpoint.
func New(endpoint string) *Client {
	if endpoint == "" {
		endpoint = os.Getenv("PAGEWISE_SERVER_URL")
	}
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	// Chat frames wait on the model.
	timeout := 5 * time.Minute
	if t := os.Getenv("PAGEWISE_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Endpoint returns the gateway base URL.
func (c *Client) Endpoint() string { return c.endpoint }

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return nil, fmt.Errorf("gateway %s: %s", resp.Status, e.Error)
		}
		return nil, fmt.Errorf("gateway %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	return data, nil
}

func (c *Client) getJSON(ctx context.Context, path string, result any) error {
	data, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("unmarshal %s: %w", path, err)
	}
	return nil
}

// Health reports whether the gateway answers /health.
func (c *Client) Health(ctx context.Context) error {
	var body struct {
		Status string `json:"status"`
	}
	if err := c.getJSON(ctx, "/health", &body); err != nil {
		return err
	}
	if body.Status != "ok" {
		return fmt.Errorf("gateway unhealthy: %q", body.Status)
	}
	return nil
}

// Summary returns the gateway session summary.
func (c *Client) Summary(ctx context.Context) (*manager.Summary, error) {
	var s manager.Summary
	if err := c.getJSON(ctx, "/summary", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Metrics returns the gateway session statistics.
func (c *Client) Metrics(ctx context.Context) (*metrics.Snapshot, error) {
	var s metrics.Snapshot
	if err := c.getJSON(ctx, "/metrics", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Export downloads the gateway session as an export document.
func (c *Client) Export(ctx context.Context) ([]byte, error) {
	return c.do(ctx, http.MethodGet, "/export", nil)
}

// Import replaces the gateway session with doc.
func (c *Client) Import(ctx context.Context, doc []byte) (*manager.Summary, error) {
	data, err := c.do(ctx, http.MethodPost, "/import", doc)
	if err != nil {
		return nil, err
	}
	var s manager.Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal import summary: %w", err)
	}
	return &s, nil
}

// frame mirrors the gateway WebSocket envelope.
type frame struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// ErrFrame is wrapped by errors the gateway reports for a frame.
var ErrFrame = errors.New("gateway rejected frame")

// Call sends one frame over /ws and decodes the result payload into result.
func (c *Client) Call(ctx context.Context, frameType string, payload, result any) error {
	u, err := url.Parse(c.endpoint + "/ws")
	if err != nil {
		return fmt.Errorf("parse endpoint: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("websocket connect: %w", err)
	}

	var (
		mu     sync.Mutex
		closed bool
	)
	closeConn := func() {
		mu.Lock()
		defer mu.Unlock()
		if !closed {
			closed = true
			conn.Close()
		}
	}
	defer closeConn()

	req := frame{ID: uuid.NewString(), Type: frameType}
	if payload != nil {
		if req.Payload, err = json.Marshal(payload); err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
	}
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("send frame: %w", err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			closeConn()
		case <-done:
		}
	}()

	for {
		var reply frame
		if err := conn.ReadJSON(&reply); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read reply: %w", err)
		}
		// Replies to invalid frames carry no id.
		if reply.ID != req.ID && reply.ID != "" {
			continue
		}
		switch reply.Type {
		case "error":
			return fmt.Errorf("%w: %s", ErrFrame, reply.Error)
		case "result":
			if result == nil || len(reply.Payload) == 0 {
				return nil
			}
			if err := json.Unmarshal(reply.Payload, result); err != nil {
				return fmt.Errorf("unmarshal %s result: %w", frameType, err)
			}
			return nil
		}
	}
}
