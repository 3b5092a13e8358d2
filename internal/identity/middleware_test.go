package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type stubResolver map[string]*Identity

func (s stubResolver) Resolve(_ context.Context, token string) (*Identity, error) {
	if id, ok := s[token]; ok {
		return id, nil
	}
	if token == "broken" {
		return nil, errors.New("store unavailable")
	}
	return nil, ErrUnauthorized
}

var (
	player = &Identity{ID: "u1", Email: "player@example.com", Roles: []Role{RoleUser}}
	admin  = &Identity{ID: "u2", Email: "admin@example.com", Roles: []Role{RoleUser, RoleAdmin}}
)

func withIdentity(r *http.Request, id *Identity) *http.Request {
	return r.WithContext(ContextWith(r.Context(), id, "token"))
}

func TestAuthenticate(t *testing.T) {
	resolver := stubResolver{"player-token": player}
	var seen *Identity
	handler := Authenticate(resolver, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromRequest(r)
	}))

	tests := []struct {
		name  string
		setup func(r *http.Request)
		want  *Identity
	}{
		{"no token", func(r *http.Request) {}, nil},
		{"bearer header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer player-token") }, player},
		{"query param", func(r *http.Request) {
			q := r.URL.Query()
			q.Set("access_token", "player-token")
			r.URL.RawQuery = q.Encode()
		}, player},
		{"invalid token stays anonymous", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, nil},
		{"resolver failure stays anonymous", func(r *http.Request) { r.Header.Set("Authorization", "Bearer broken") }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			r := httptest.NewRequest(http.MethodGet, "/v1/games", nil)
			tt.setup(r)
			handler.ServeHTTP(httptest.NewRecorder(), r)
			assert.Equal(t, tt.want, seen)
		})
	}
}

func TestRequireIdentity(t *testing.T) {
	handler := RequireIdentity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/games/g1/reviews", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, withIdentity(httptest.NewRequest(http.MethodPost, "/v1/games/g1/reviews", nil), player))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name     string
		id       *Identity
		accept   string
		wantCode int
	}{
		{"anonymous api", nil, "application/json", http.StatusUnauthorized},
		{"non-admin api", player, "application/json", http.StatusForbidden},
		{"anonymous browser", nil, "text/html,application/xhtml+xml", http.StatusSeeOther},
		{"non-admin browser", player, "text/html", http.StatusSeeOther},
		{"admin", admin, "application/json", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/v1/admin/games", nil)
			r.Header.Set("Accept", tt.accept)
			if tt.id != nil {
				r = withIdentity(r, tt.id)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)

			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantCode == http.StatusSeeOther {
				assert.Equal(t, "/", w.Header().Get("Location"))
			}
		})
	}
}

func TestIdentity_Roles(t *testing.T) {
	var none *Identity
	assert.False(t, none.IsAdmin())
	assert.False(t, player.IsAdmin())
	assert.True(t, admin.IsAdmin())

	assert.Equal(t, "admin@example.com", admin.AuthorLabel())
	assert.Equal(t, "u9", (&Identity{ID: "u9"}).AuthorLabel())
}
