package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// DefaultMaxBody caps how much of a response body HTTPTool reads.
const DefaultMaxBody = 4 << 20

// HTTPTool performs HTTP requests against JSON services.
//
// Input:
//   - url: target URL (required)
//   - method: "GET" (default) or "POST"
//   - query: map of query parameters appended to the URL
//   - headers: map of request headers
//   - body: string sent verbatim, or a map encoded as JSON
//
// Output:
//   - status_code: HTTP status code
//   - headers: response headers (string, or []string when repeated)
//   - body: response body as a string
//   - json: decoded body when the response is application/json
//
// Timeouts come from ctx.
type HTTPTool struct {
	name    string
	client  *http.Client
	headers map[string]string
	maxBody int64
}

// HTTPOption configures an HTTPTool.
type HTTPOption func(*HTTPTool)

// WithHTTPClient sets the client used for requests.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPTool) { h.client = c }
}

// WithHeader adds a header sent on every request, such as an API key.
func WithHeader(key, value string) HTTPOption {
	return func(h *HTTPTool) { h.headers[key] = value }
}

// WithName overrides the tool name.
func WithName(name string) HTTPOption {
	return func(h *HTTPTool) { h.name = name }
}

// NewHTTPTool returns an HTTPTool named "http_request".
func NewHTTPTool(opts ...HTTPOption) *HTTPTool {
	h := &HTTPTool{
		name:    "http_request",
		client:  &http.Client{},
		headers: map[string]string{},
		maxBody: DefaultMaxBody,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Name implements Tool. It is "http_request" unless set with WithName.
func (h *HTTPTool) Name() string { return h.name }

// Call implements Tool.
func (h *HTTPTool) Call(ctx context.Context, input map[string]any) (map[string]any, error) {
	rawURL, err := StringInput(input, "url")
	if err != nil {
		return nil, err
	}

	method := http.MethodGet
	if m, ok := input["method"].(string); ok && m != "" {
		method = strings.ToUpper(m)
	}
	if method != http.MethodGet && method != http.MethodPost {
		return nil, fmt.Errorf("unsupported HTTP method: %s (supported: GET, POST)", method)
	}

	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if query, ok := input["query"].(map[string]any); ok {
		values := target.Query()
		for k, v := range query {
			values.Set(k, fmt.Sprint(v))
		}
		target.RawQuery = values.Encode()
	}

	var body io.Reader
	contentType := ""
	switch b := input["body"].(type) {
	case string:
		if b != "" {
			body = strings.NewReader(b)
		}
	case map[string]any:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}
	if headers, ok := input["headers"].(map[string]any); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, h.maxBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	respHeaders := make(map[string]any, len(resp.Header))
	for k, values := range resp.Header {
		if len(values) == 1 {
			respHeaders[k] = values[0]
		} else {
			respHeaders[k] = values
		}
	}

	result := map[string]any{
		"status_code": resp.StatusCode,
		"headers":     respHeaders,
		"body":        string(respBody),
	}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") && len(respBody) > 0 {
		var decoded any
		if err := json.Unmarshal(respBody, &decoded); err == nil {
			result["json"] = decoded
		}
	}
	return result, nil
}
