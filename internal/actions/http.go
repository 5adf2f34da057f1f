package actions

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/emilylaguna/memoryd/pkg/schema"
)

const (
	defaultMaxResponseBody = 1 * 1024 * 1024 // 1MB
	defaultHTTPTimeout     = 30 * time.Second
)

// HTTPConfig configures the http_request action.
type HTTPConfig struct {
	MaxResponseBody int64
	DefaultTimeout  time.Duration
	// Client overrides the default client, mainly for tests.
	Client *http.Client
}

type httpRequestAction struct {
	cfg HTTPConfig
}

// NewHTTPRequestAction creates the http_request handler.
func NewHTTPRequestAction(cfg HTTPConfig) Handler {
	if cfg.MaxResponseBody <= 0 {
		cfg.MaxResponseBody = defaultMaxResponseBody
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = defaultHTTPTimeout
	}
	return &httpRequestAction{cfg: cfg}
}

func (a *httpRequestAction) Type() schema.ActionType { return schema.ActionHTTPRequest }

func (a *httpRequestAction) Validate(params map[string]any) error {
	if err := requireString(a.Type(), params, "url"); err != nil {
		return err
	}
	rawURL := stringParam(params, "url", "")
	// Templated URLs are only checkable after resolution.
	if strings.Contains(rawURL, "{{") {
		return nil
	}
	u, err := url.ParseRequestURI(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return schema.NewErrorf(schema.ErrCodeValidation, "%s: invalid url %q", a.Type(), rawURL)
	}
	return nil
}

// Execute issues the request and captures status, headers and body.
// A response status of 400 or above is an action failure with the
// captured response attached to the error details.
func (a *httpRequestAction) Execute(ctx context.Context, params map[string]any, rc RunContext) (map[string]any, error) {
	method := strings.ToUpper(stringParam(params, "method", "GET"))
	rawURL := stringParam(params, "url", "")

	if u, err := url.ParseRequestURI(rawURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "%s: invalid url %q", a.Type(), rawURL)
	}

	timeout := a.cfg.DefaultTimeout
	if ts := stringParam(params, "timeout", ""); ts != "" {
		if d, err := time.ParseDuration(ts); err == nil {
			timeout = d
		}
	}

	var bodyReader io.Reader
	var contentType string
	if rawBody, ok := params["body"]; ok && rawBody != nil {
		if s, isStr := rawBody.(string); isStr {
			bodyReader = strings.NewReader(s)
			contentType = "text/plain"
		} else {
			b, err := json.Marshal(rawBody)
			if err != nil {
				return nil, schema.NewErrorf(schema.ErrCodeExecution, "%s: cannot marshal body as JSON", a.Type()).WithCause(err)
			}
			bodyReader = strings.NewReader(string(b))
			contentType = "application/json"
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, rawURL, bodyReader)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "%s: cannot build request", a.Type()).WithCause(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range stringMapParam(params, "headers") {
		req.Header.Set(k, v)
	}

	client := a.cfg.Client
	if client == nil {
		client = http.DefaultClient
	}

	start := time.Now()
	resp, err := client.Do(req)
	durationMs := time.Since(start).Milliseconds()
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "%s: request failed: %s", a.Type(), err.Error()).WithCause(err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, a.cfg.MaxResponseBody))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "%s: cannot read response body", a.Type()).WithCause(err)
	}

	respContentType := resp.Header.Get("Content-Type")
	var parsedBody any
	switch {
	case len(bodyBytes) == 0:
		parsedBody = nil
	case strings.Contains(respContentType, "application/json"):
		var jsonBody any
		if err := json.Unmarshal(bodyBytes, &jsonBody); err == nil {
			parsedBody = jsonBody
		} else {
			parsedBody = string(bodyBytes)
		}
	default:
		parsedBody = string(bodyBytes)
	}

	respHeaders := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		respHeaders[k] = resp.Header.Get(k)
	}

	result := map[string]any{
		"status_code":  resp.StatusCode,
		"status":       resp.Status,
		"headers":      respHeaders,
		"body":         parsedBody,
		"content_type": respContentType,
		"duration_ms":  durationMs,
	}

	if resp.StatusCode >= 400 {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "%s: server returned %d", a.Type(), resp.StatusCode).
			WithDetails(result)
	}
	return result, nil
}
