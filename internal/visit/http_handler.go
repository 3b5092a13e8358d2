package visit

import (
	"net/http"

	"go.uber.org/zap"

	"playroom/internal/httpx"
)

type HTTPHandler struct {
	counter *Counter
	log     *zap.Logger
}

func NewHTTPHandler(counter *Counter, log *zap.Logger) *HTTPHandler {
	return &HTTPHandler{counter: counter, log: log.Named("visit.http")}
}

type statsResponse struct {
	Recorded    bool   `json:"recorded"`
	TotalVisits *int64 `json:"total_visits"`
}

// Record handles POST /v1/visits. Must run inside the session middleware.
func (h *HTTPHandler) Record(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{Recorded: h.counter.Record(r.Context())}
	resp.TotalVisits = h.total(r)
	httpx.JSONSuccess(w, r, resp)
}

// Stats handles GET /v1/stats
func (h *HTTPHandler) Stats(w http.ResponseWriter, r *http.Request) {
	httpx.JSONSuccess(w, r, statsResponse{TotalVisits: h.total(r)})
}

// total is nil when the counter cannot be read; the failure is only logged.
func (h *HTTPHandler) total(r *http.Request) *int64 {
	n, err := h.counter.Total(r.Context())
	if err != nil {
		h.log.Warn("read visit total failed", httpx.RequestIDField(r), zap.Error(err))
		return nil
	}
	return &n
}
