package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Logger is the shared structured-logging interface used across this
// package, matching the shape the rest of the module logs through.
type Logger interface {
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
	Debug(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
func (noopLogger) Debug(string, ...any) {}

// HTTPClient wraps http.Client with context-aware header injection: every
// outbound call carries the caller's user id (if set via WithUserID) as
// X-User-ID, so downstream services can attribute tool/provider calls
// without the caller threading identity through every parameter list.
type HTTPClient struct {
	client *http.Client
	logger Logger
}

// NewHTTPClient wraps client (pass nil for http.DefaultClient) with
// logging. A nil logger discards everything.
func NewHTTPClient(client *http.Client, logger Logger) *HTTPClient {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &HTTPClient{client: client, logger: logger}
}

// Do issues method against url with an optional JSON body and headers,
// extracting X-User-ID from ctx. The caller owns closing resp.Body.
func (c *HTTPClient) Do(ctx context.Context, method, url string, headers map[string]string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if uid, ok := UserID(ctx); ok {
		req.Header.Set("X-User-ID", uid)
		c.logger.Debug("added X-User-ID header from context", "user_id", uid)
	}
	return c.client.Do(req)
}

// DoJSON marshals payload as the request body and decodes a JSON response
// into out (which may be nil to discard the body).
func (c *HTTPClient) DoJSON(ctx context.Context, method, url string, headers map[string]string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	resp, err := c.Do(ctx, method, url, headers, body)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: status %d: %s", method, url, resp.StatusCode, string(raw))
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}
