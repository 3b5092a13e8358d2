package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type SuccessResponse struct {
	Success bool           `json:"success"`
	Data    any            `json:"data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

type ErrorResponse struct {
	Success bool              `json:"success"`
	Error   ErrorResponseBody `json:"error"`
	Meta    map[string]any    `json:"meta,omitempty"`
}

type ErrorResponseBody struct {
	Code    string        `json:"code"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

type ErrorDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error codes shared by every handler.
const (
	CodeValidation           = "VALIDATION_ERROR"
	CodeBadRequest           = "BAD_REQUEST"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeForbidden            = "FORBIDDEN"
	CodeNotFound             = "NOT_FOUND"
	CodeConflict             = "CONFLICT"
	CodeConfirmationRequired = "CONFIRMATION_REQUIRED"
	CodeRateLimited          = "RATE_LIMIT_EXCEEDED"
	CodeInternal             = "INTERNAL_ERROR"
)

// GenericFailureMessage is shown for any failure the caller cannot act on.
const GenericFailureMessage = "Something went wrong"

func buildMeta(r *http.Request, custom map[string]any) map[string]any {
	requestID := RequestIDFrom(r)
	if requestID == "" && len(custom) == 0 {
		return nil
	}
	meta := make(map[string]any, len(custom)+1)
	if requestID != "" {
		meta["request_id"] = requestID
	}
	for k, v := range custom {
		meta[k] = v
	}
	return meta
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// JSONSuccess writes a 200 envelope.
func JSONSuccess(w http.ResponseWriter, r *http.Request, data any) {
	JSONSuccessWithMeta(w, r, data, nil)
}

func JSONSuccessWithMeta(w http.ResponseWriter, r *http.Request, data any, meta map[string]any) {
	writeJSON(w, http.StatusOK, SuccessResponse{
		Success: true,
		Data:    data,
		Meta:    buildMeta(r, meta),
	})
}

func JSONCreated(w http.ResponseWriter, r *http.Request, data any) {
	writeJSON(w, http.StatusCreated, SuccessResponse{
		Success: true,
		Data:    data,
		Meta:    buildMeta(r, nil),
	})
}

func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func JSONError(w http.ResponseWriter, r *http.Request, status int, code, message string, details []ErrorDetail) {
	writeJSON(w, status, ErrorResponse{
		Success: false,
		Error: ErrorResponseBody{
			Code:    code,
			Message: message,
			Details: details,
		},
		Meta: buildMeta(r, nil),
	})
}

// InternalError writes the generic 500 envelope.
func InternalError(w http.ResponseWriter, r *http.Request) {
	JSONError(w, r, http.StatusInternalServerError, CodeInternal, GenericFailureMessage, nil)
}

func ValidationError(w http.ResponseWriter, r *http.Request, details []ErrorDetail) {
	JSONError(w, r, http.StatusBadRequest, CodeValidation, "Request validation failed", details)
}

// DecodeJSON reads a single JSON object from the request body into dst.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("request body must not exceed %d bytes", maxErr.Limit)
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

// Confirmed reports whether a destructive request carries explicit
// confirmation, via the X-Confirm header or a confirm query parameter.
func Confirmed(r *http.Request) bool {
	if strings.EqualFold(r.Header.Get("X-Confirm"), "true") {
		return true
	}
	return strings.EqualFold(r.URL.Query().Get("confirm"), "true")
}

// ConfirmationRequired writes the 428 envelope for unconfirmed deletes.
func ConfirmationRequired(w http.ResponseWriter, r *http.Request) {
	JSONError(w, r, http.StatusPreconditionRequired, CodeConfirmationRequired,
		"Repeat the request with X-Confirm: true to proceed", nil)
}
