package httpx

import (
	"context"
	"net/http"
	"sync"
)

type contextKey string

const (
	userIDKey     contextKey = "userID"
	userHolderKey contextKey = "userHolder"
	requestIDKey  contextKey = "requestID"
)

type userHolder struct {
	mu sync.Mutex
	id string
}

func (h *userHolder) set(id string) {
	h.mu.Lock()
	h.id = id
	h.mu.Unlock()
}

func (h *userHolder) get() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.id
}

func withUserHolder(ctx context.Context, h *userHolder) context.Context {
	return context.WithValue(ctx, userHolderKey, h)
}

// UserIDFrom retrieves the authenticated user ID from the request context.
func UserIDFrom(r *http.Request) string {
	if v, ok := r.Context().Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// ContextWithUserID records the authenticated user, including for the
// access log wrapped around the request.
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	if h, ok := ctx.Value(userHolderKey).(*userHolder); ok {
		h.set(userID)
	}
	return context.WithValue(ctx, userIDKey, userID)
}

// RequestIDFrom retrieves the request ID from the request context.
func RequestIDFrom(r *http.Request) string {
	if v, ok := r.Context().Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}
