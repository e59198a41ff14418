package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HTTPTransport is the default transport: JSON request and response bodies
// over net/http, instrumented with otelhttp.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport builds the default transport. A zero timeout leaves the
// deadline to the request context.
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	return NewHTTPTransportWithClient(&http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	})
}

// NewHTTPTransportWithClient wraps an existing client.
func NewHTTPTransportWithClient(client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{client: client}
}

// CanCancel reports true: cancelling the request context aborts the call.
func (t *HTTPTransport) CanCancel() bool { return true }

func (t *HTTPTransport) RoundTrip(ctx context.Context, req *Request, _ int, _ string) (*Response, error) {
	var body io.Reader
	if req.Body != nil && req.Method != http.MethodGet {
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return &Response{Status: resp.StatusCode, Data: decodeBody(raw), Header: resp.Header}, nil
}

// decodeBody parses JSON, falling back to the raw text for other content.
func decodeBody(raw []byte) any {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}
