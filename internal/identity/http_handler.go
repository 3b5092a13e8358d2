package identity

import (
	"errors"
	"net/http"
	"strings"

	"playroom/internal/httpx"
)

type HTTPHandler struct {
	service *Service
}

func NewHTTPHandler(service *Service) *HTTPHandler {
	return &HTTPHandler{service: service}
}

type registerReq struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,password_strength"`
	DisplayName string `json:"display_name" validate:"omitempty,max=50"`
	AvatarURL   string `json:"avatar_url" validate:"omitempty,url"`
}

type signInReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Register handles POST /v1/auth/register
// @Summary Register a new account
// @Tags auth
// @Accept json
// @Produce json
// @Success 201 {object} httpx.SuccessResponse
// @Failure 400 {object} httpx.ErrorResponse
// @Failure 409 {object} httpx.ErrorResponse
// @Router /v1/auth/register [post]
func (h *HTTPHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerReq
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.JSONError(w, r, http.StatusBadRequest, httpx.CodeBadRequest, err.Error(), nil)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.DisplayName = strings.TrimSpace(req.DisplayName)

	if details := httpx.ValidateStruct(req); len(details) > 0 {
		httpx.ValidationError(w, r, details)
		return
	}

	id, err := h.service.Register(r.Context(), RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		AvatarURL:   req.AvatarURL,
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			httpx.JSONError(w, r, http.StatusConflict, httpx.CodeConflict, "Email already registered", nil)
			return
		}
		httpx.InternalError(w, r)
		return
	}
	httpx.JSONCreated(w, r, id)
}

// SignIn handles POST /v1/auth/sign-in
// @Summary Sign in with email and password
// @Tags auth
// @Accept json
// @Produce json
// @Success 200 {object} httpx.SuccessResponse
// @Failure 401 {object} httpx.ErrorResponse
// @Router /v1/auth/sign-in [post]
func (h *HTTPHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInReq
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.JSONError(w, r, http.StatusBadRequest, httpx.CodeBadRequest, err.Error(), nil)
		return
	}
	if details := httpx.ValidateStruct(req); len(details) > 0 {
		httpx.ValidationError(w, r, details)
		return
	}

	sess, err := h.service.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			httpx.JSONError(w, r, http.StatusUnauthorized, httpx.CodeUnauthorized, "Invalid email or password", nil)
			return
		}
		httpx.InternalError(w, r)
		return
	}
	httpx.JSONSuccess(w, r, sess)
}

// SignOut handles POST /v1/auth/sign-out
func (h *HTTPHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	token := TokenFromRequest(r)
	if token == "" {
		httpx.JSONError(w, r, http.StatusUnauthorized, httpx.CodeUnauthorized, "Unauthorized", nil)
		return
	}
	if err := h.service.SignOut(r.Context(), token); err != nil {
		if errors.Is(err, ErrUnauthorized) {
			httpx.JSONError(w, r, http.StatusUnauthorized, httpx.CodeUnauthorized, "Unauthorized", nil)
			return
		}
		httpx.InternalError(w, r)
		return
	}
	httpx.NoContent(w)
}

// Me handles GET /v1/me
func (h *HTTPHandler) Me(w http.ResponseWriter, r *http.Request) {
	id := FromRequest(r)
	if id == nil {
		httpx.JSONError(w, r, http.StatusUnauthorized, httpx.CodeUnauthorized, "Unauthorized", nil)
		return
	}
	httpx.JSONSuccess(w, r, map[string]any{
		"identity": id,
		"is_admin": id.IsAdmin(),
	})
}
