package identity

import (
	"context"
	"net/http"

	"playroom/internal/httpx"
)

type contextKey string

const (
	identityKey contextKey = "identity"
	tokenKey    contextKey = "accessToken"
)

// ContextWith attaches the resolved identity and its access token.
func ContextWith(ctx context.Context, id *Identity, token string) context.Context {
	ctx = httpx.ContextWithUserID(ctx, id.ID)
	ctx = context.WithValue(ctx, identityKey, id)
	return context.WithValue(ctx, tokenKey, token)
}

// FromRequest returns the caller's identity, or nil for anonymous callers.
func FromRequest(r *http.Request) *Identity {
	return FromContext(r.Context())
}

func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey).(*Identity)
	return id
}

// TokenFromRequest returns the access token the identity was resolved from.
func TokenFromRequest(r *http.Request) string {
	t, _ := r.Context().Value(tokenKey).(string)
	return t
}
