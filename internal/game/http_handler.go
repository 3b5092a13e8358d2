package game

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"playroom/internal/httpx"
	"playroom/internal/identity"
)

type HTTPHandler struct {
	service       *Service
	publicBaseURL string
	log           *zap.Logger
}

func NewHTTPHandler(service *Service, publicBaseURL string, log *zap.Logger) *HTTPHandler {
	return &HTTPHandler{service: service, publicBaseURL: publicBaseURL, log: log.Named("game.http")}
}

func manageMeta(r *http.Request) map[string]any {
	return map[string]any{"can_manage": identity.FromRequest(r).IsAdmin()}
}

// List handles GET /v1/games
// @Summary List games
// @Description Catalog filtered by category and a case-insensitive title search
// @Tags games
// @Produce json
// @Param category query string false "Action, Puzzle, Education, Arcade, Simulation or All"
// @Param q query string false "Title search"
// @Success 200 {object} httpx.SuccessResponse
// @Router /v1/games [get]
func (h *HTTPHandler) List(w http.ResponseWriter, r *http.Request) {
	games, err := h.service.List(r.Context())
	if err != nil {
		h.log.Error("list games failed", httpx.RequestIDField(r), zap.Error(err))
		httpx.InternalError(w, r)
		return
	}

	category := ParseCategory(r.URL.Query().Get("category"))
	term := r.URL.Query().Get("q")
	filtered := Filter(games, category, term)

	meta := manageMeta(r)
	meta["category"] = category
	meta["total"] = len(filtered)
	httpx.JSONSuccessWithMeta(w, r, NewCards(filtered), meta)
}

// Get handles GET /v1/games/{id}
// @Summary Game detail
// @Tags games
// @Produce json
// @Param id path string true "Game ID"
// @Success 200 {object} httpx.SuccessResponse
// @Failure 404 {object} httpx.ErrorResponse
// @Router /v1/games/{id} [get]
func (h *HTTPHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	g, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.JSONError(w, r, http.StatusNotFound, httpx.CodeNotFound, "Game not found", nil)
			return
		}
		h.log.Error("get game failed", zap.String("game_id", id), zap.Error(err))
		httpx.InternalError(w, r)
		return
	}

	detail, err := NewDetail(g, h.publicBaseURL)
	if err != nil {
		h.log.Error("render game failed", zap.String("game_id", id), zap.Error(err))
		httpx.InternalError(w, r)
		return
	}
	httpx.JSONSuccessWithMeta(w, r, detail, manageMeta(r))
}

// AdminList handles GET /v1/admin/games
func (h *HTTPHandler) AdminList(w http.ResponseWriter, r *http.Request) {
	games, err := h.service.List(r.Context())
	if err != nil {
		httpx.InternalError(w, r)
		return
	}
	httpx.JSONSuccessWithMeta(w, r, games, map[string]any{"total": len(games)})
}

func decodeInput(w http.ResponseWriter, r *http.Request) (Input, bool) {
	var in Input
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.JSONError(w, r, http.StatusBadRequest, httpx.CodeBadRequest, err.Error(), nil)
		return Input{}, false
	}
	in.Title = strings.TrimSpace(in.Title)
	in.ScreenshotURL = strings.TrimSpace(in.ScreenshotURL)
	in.VideoURL = strings.TrimSpace(in.VideoURL)
	in.PlayURL = strings.TrimSpace(in.PlayURL)
	if details := httpx.ValidateStruct(in); len(details) > 0 {
		httpx.ValidationError(w, r, details)
		return Input{}, false
	}
	return in, true
}

// Create handles POST /v1/admin/games
// @Summary Add a game
// @Tags admin
// @Accept json
// @Produce json
// @Security Bearer
// @Success 201 {object} httpx.SuccessResponse
// @Failure 400 {object} httpx.ErrorResponse
// @Failure 403 {object} httpx.ErrorResponse
// @Router /v1/admin/games [post]
func (h *HTTPHandler) Create(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeInput(w, r)
	if !ok {
		return
	}
	g, games, err := h.service.Create(r.Context(), identity.FromRequest(r), in)
	if err != nil {
		h.writeMutationError(w, r, err)
		return
	}
	httpx.JSONCreated(w, r, map[string]any{
		"game":  g,
		"games": games,
	})
}

// Update handles PUT /v1/admin/games/{id}
func (h *HTTPHandler) Update(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeInput(w, r)
	if !ok {
		return
	}
	g, err := h.service.Update(r.Context(), identity.FromRequest(r), chi.URLParam(r, "id"), in)
	if err != nil {
		h.writeMutationError(w, r, err)
		return
	}
	httpx.JSONSuccess(w, r, g)
}

// Delete handles DELETE /v1/admin/games/{id}. The request must carry an
// explicit confirmation.
func (h *HTTPHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if !httpx.Confirmed(r) {
		httpx.ConfirmationRequired(w, r)
		return
	}
	games, err := h.service.Delete(r.Context(), identity.FromRequest(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeMutationError(w, r, err)
		return
	}
	httpx.JSONSuccess(w, r, map[string]any{"games": games})
}

func (h *HTTPHandler) writeMutationError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.JSONError(w, r, http.StatusNotFound, httpx.CodeNotFound, "Game not found", nil)
	case errors.Is(err, ErrForbidden):
		httpx.JSONError(w, r, http.StatusForbidden, httpx.CodeForbidden, "Forbidden", nil)
	default:
		httpx.InternalError(w, r)
	}
}
