package identity

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"playroom/internal/httpx"
)

// Resolver turns an access token into an identity.
type Resolver interface {
	Resolve(ctx context.Context, token string) (*Identity, error)
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	// Browsers cannot set headers on websocket upgrades.
	return r.URL.Query().Get("access_token")
}

// Authenticate resolves the caller's token when one is present. Requests
// without a usable token continue anonymously.
func Authenticate(resolver Resolver, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			id, err := resolver.Resolve(r.Context(), token)
			if err != nil {
				if !errors.Is(err, ErrUnauthorized) {
					log.Error("resolve identity failed",
						httpx.RequestIDField(r),
						zap.Error(err),
					)
				}
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWith(r.Context(), id, token)))
		})
	}
}

// RequireIdentity rejects anonymous callers with 401.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if FromRequest(r) == nil {
			deny(w, r, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole admits only identities holding role. Browser navigations are
// sent back to the landing page; API callers get 401 or 403.
func RequireRole(role Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := FromRequest(r)
			switch {
			case id == nil:
				deny(w, r, http.StatusUnauthorized)
			case !id.HasRole(role):
				deny(w, r, http.StatusForbidden)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func deny(w http.ResponseWriter, r *http.Request, status int) {
	if wantsHTML(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	if status == http.StatusForbidden {
		httpx.JSONError(w, r, status, httpx.CodeForbidden, "Forbidden", nil)
		return
	}
	httpx.JSONError(w, r, status, httpx.CodeUnauthorized, "Unauthorized", nil)
}
