package actions

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emilylaguna/memoryd/pkg/schema"
)

func TestHTTPRequestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "token", r.Header.Get("X-Api-Key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	a := NewHTTPRequestAction(HTTPConfig{Client: srv.Client()})
	out, err := a.Execute(context.Background(), map[string]any{
		"url":     srv.URL,
		"headers": map[string]any{"X-Api-Key": "token"},
	}, testRunContext())
	require.NoError(t, err)

	assert.Equal(t, 200, out["status_code"])
	body, ok := out["body"].(map[string]any)
	require.True(t, ok, "JSON response should be parsed")
	assert.Equal(t, true, body["ok"])
}

func TestHTTPRequestPostsJSONBody(t *testing.T) {
	var gotBody map[string]any
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	a := NewHTTPRequestAction(HTTPConfig{Client: srv.Client()})
	out, err := a.Execute(context.Background(), map[string]any{
		"url":    srv.URL,
		"method": "post",
		"body":   map[string]any{"name": "review"},
	}, testRunContext())
	require.NoError(t, err)

	assert.Equal(t, 201, out["status_code"])
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "review", gotBody["name"])
}

func TestHTTPRequestStringBodyIsPlainText(t *testing.T) {
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
	}))
	defer srv.Close()

	a := NewHTTPRequestAction(HTTPConfig{Client: srv.Client()})
	_, err := a.Execute(context.Background(), map[string]any{
		"url":    srv.URL,
		"method": "POST",
		"body":   "raw text",
	}, testRunContext())
	require.NoError(t, err)
	assert.Equal(t, "text/plain", gotContentType)
}

func TestHTTPRequestErrorStatusFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	a := NewHTTPRequestAction(HTTPConfig{Client: srv.Client()})
	_, err := a.Execute(context.Background(), map[string]any{"url": srv.URL}, testRunContext())
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeExecution, schema.CodeOf(err))

	autoErr := err.(*schema.AutomationError)
	assert.Equal(t, 403, autoErr.Details["status_code"])
	assert.Equal(t, "nope\n", autoErr.Details["body"])
}

func TestHTTPRequestResponseBodyCapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("0123456789abcdef"))
	}))
	defer srv.Close()

	a := NewHTTPRequestAction(HTTPConfig{Client: srv.Client(), MaxResponseBody: 10})
	out, err := a.Execute(context.Background(), map[string]any{"url": srv.URL}, testRunContext())
	require.NoError(t, err)
	assert.Equal(t, "0123456789", out["body"])
}

func TestHTTPRequestValidateURL(t *testing.T) {
	a := NewHTTPRequestAction(HTTPConfig{})

	assert.Error(t, a.Validate(map[string]any{}))
	assert.Error(t, a.Validate(map[string]any{"url": "not a url"}))
	assert.Error(t, a.Validate(map[string]any{"url": "ftp://example.com"}))
	assert.NoError(t, a.Validate(map[string]any{"url": "https://example.com/hook"}))
	// Templated URLs are deferred to execution.
	assert.NoError(t, a.Validate(map[string]any{"url": "https://example.com/{{ entity.id }}"}))
}

func TestHTTPRequestRejectsUnresolvedURLAtExecution(t *testing.T) {
	a := NewHTTPRequestAction(HTTPConfig{})
	_, err := a.Execute(context.Background(), map[string]any{"url": "nonsense"}, testRunContext())
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeExecution, schema.CodeOf(err))
}
