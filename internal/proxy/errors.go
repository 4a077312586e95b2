package proxy

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/vnmchuo/ollama-gateway/internal/chat"
	"github.com/vnmchuo/ollama-gateway/internal/provider"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps the error taxonomy onto distinct statuses so callers can
// tell bad input from a failing or slow upstream.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var vErr *chat.ValidationError
	var upErr *provider.UpstreamError
	var tooLarge *http.MaxBytesError

	switch {
	case errors.As(err, &tooLarge):
		writeErrorMessage(w, http.StatusRequestEntityTooLarge, "request body too large")
	case errors.As(err, &vErr):
		writeErrorMessage(w, http.StatusBadRequest, vErr.Error())
	case errors.Is(err, provider.ErrTimeout):
		writeErrorMessage(w, http.StatusGatewayTimeout, "upstream timeout")
	case errors.Is(err, provider.ErrUnavailable):
		writeErrorMessage(w, http.StatusServiceUnavailable, "upstream unavailable")
	case errors.As(err, &upErr):
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":           "upstream error: " + upErr.Body,
			"upstream_status": upErr.StatusCode,
		})
	default:
		h.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", requestID(r)),
			zap.Error(err),
		)
		writeErrorMessage(w, http.StatusInternalServerError, "internal server error")
	}
}
