package review

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"playroom/internal/httpx"
	"playroom/internal/identity"
)

type HTTPHandler struct {
	service *Service
	log     *zap.Logger
}

func NewHTTPHandler(service *Service, log *zap.Logger) *HTTPHandler {
	return &HTTPHandler{service: service, log: log.Named("review.http")}
}

// ListForGame handles GET /v1/games/{id}/reviews
// @Summary Reviews of a game, newest first
// @Tags reviews
// @Produce json
// @Param id path string true "Game ID"
// @Success 200 {object} httpx.SuccessResponse
// @Router /v1/games/{id}/reviews [get]
func (h *HTTPHandler) ListForGame(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "id")
	reviews, err := h.service.ListForGame(r.Context(), gameID)
	if err != nil {
		h.log.Error("list reviews failed", zap.String("game_id", gameID), zap.Error(err))
		httpx.InternalError(w, r)
		return
	}
	httpx.JSONSuccessWithMeta(w, r, Views(identity.FromRequest(r), reviews), map[string]any{
		"total": len(reviews),
	})
}

// Create handles POST /v1/games/{id}/reviews
// @Summary Leave a review
// @Tags reviews
// @Accept json
// @Produce json
// @Security Bearer
// @Success 201 {object} httpx.SuccessResponse
// @Failure 400 {object} httpx.ErrorResponse
// @Failure 401 {object} httpx.ErrorResponse
// @Router /v1/games/{id}/reviews [post]
func (h *HTTPHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor := identity.FromRequest(r)
	if actor == nil {
		httpx.JSONError(w, r, http.StatusUnauthorized, httpx.CodeUnauthorized, ErrUnauthenticated.Error(), nil)
		return
	}

	var in Input
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.JSONError(w, r, http.StatusBadRequest, httpx.CodeBadRequest, err.Error(), nil)
		return
	}
	if details := httpx.ValidateStruct(in); len(details) > 0 {
		httpx.ValidationError(w, r, details)
		return
	}

	rv, err := h.service.Create(r.Context(), actor, chi.URLParam(r, "id"), in)
	if err != nil {
		switch {
		case errors.Is(err, ErrUnauthenticated):
			httpx.JSONError(w, r, http.StatusUnauthorized, httpx.CodeUnauthorized, err.Error(), nil)
		case errors.Is(err, ErrEmptyComment):
			httpx.ValidationError(w, r, []httpx.ErrorDetail{{Field: "comment", Message: err.Error()}})
		default:
			httpx.InternalError(w, r)
		}
		return
	}
	httpx.JSONCreated(w, r, NewView(actor, rv))
}

// Delete handles DELETE /v1/reviews/{id}
func (h *HTTPHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if !httpx.Confirmed(r) {
		httpx.ConfirmationRequired(w, r)
		return
	}
	err := h.service.Delete(r.Context(), identity.FromRequest(r), chi.URLParam(r, "id"))
	switch {
	case err == nil:
		httpx.NoContent(w)
	case errors.Is(err, ErrUnauthenticated):
		httpx.JSONError(w, r, http.StatusUnauthorized, httpx.CodeUnauthorized, "Unauthorized", nil)
	case errors.Is(err, ErrForbidden):
		httpx.JSONError(w, r, http.StatusForbidden, httpx.CodeForbidden, err.Error(), nil)
	case errors.Is(err, ErrNotFound):
		httpx.JSONError(w, r, http.StatusNotFound, httpx.CodeNotFound, "Review not found", nil)
	default:
		httpx.InternalError(w, r)
	}
}
