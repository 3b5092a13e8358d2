// Package testutil holds helpers shared by handler tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/go-chi/chi/v5"

	"playroom/internal/identity"
)

// TestPlayer is a signed-in identity without admin rights.
var TestPlayer = identity.Identity{
	ID:          "test-player-id-123",
	Email:       "player@example.com",
	DisplayName: "Test Player",
	AvatarURL:   "https://example.com/avatar.png",
	Roles:       []identity.Role{identity.RoleUser},
}

// TestAdmin is a signed-in identity holding the admin role.
var TestAdmin = identity.Identity{
	ID:          "test-admin-id-456",
	Email:       "admin@example.com",
	DisplayName: "Admin",
	Roles:       []identity.Role{identity.RoleUser, identity.RoleAdmin},
}

// NewRequest creates a new HTTP request for testing, JSON-encoding body.
func NewRequest(method, path string, body any) *http.Request {
	var r *http.Request
	if body != nil {
		bodyBytes, _ := json.Marshal(body)
		r = httptest.NewRequest(method, path, bytes.NewReader(bodyBytes))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	return r
}

// AsIdentity attaches id to the request as if authentication middleware
// had resolved it. A nil id leaves the request anonymous.
func AsIdentity(r *http.Request, id *identity.Identity) *http.Request {
	if id == nil {
		return r
	}
	clone := *id
	return r.WithContext(identity.ContextWith(r.Context(), &clone, "test-token"))
}

// WithURLParams sets chi route parameters on r, as pairs of key and value.
func WithURLParams(r *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// RecordResponse is a decoded response envelope.
type RecordResponse struct {
	Code   int
	Header http.Header
	Body   map[string]any
}

// RecordHTTPResponse decodes the recorded response body as JSON.
func RecordHTTPResponse(w *httptest.ResponseRecorder) RecordResponse {
	result := w.Result()
	defer result.Body.Close()

	bodyBytes, _ := io.ReadAll(result.Body)

	var bodyMap map[string]any
	if len(bodyBytes) > 0 {
		_ = json.Unmarshal(bodyBytes, &bodyMap)
	}

	return RecordResponse{
		Code:   result.StatusCode,
		Header: result.Header,
		Body:   bodyMap,
	}
}

// Data returns the envelope's data member.
func (r RecordResponse) Data() any {
	return r.Body["data"]
}

// Meta returns the envelope's meta member.
func (r RecordResponse) Meta() map[string]any {
	m, _ := r.Body["meta"].(map[string]any)
	return m
}

// ErrorCode returns error.code from an error envelope.
func (r RecordResponse) ErrorCode() string {
	e, _ := r.Body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}
