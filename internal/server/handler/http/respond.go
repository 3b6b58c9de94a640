package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/atinyakov/crmkeeper/internal/middleware"
	"github.com/atinyakov/crmkeeper/internal/service"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps service errors onto HTTP status codes. Unknown errors are
// logged and answered with 500.
func writeError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	var ve *service.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, ve)
	case errors.Is(err, service.ErrInvalidCredentials):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, service.ErrNoSession):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrNoReport):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, service.ErrDuplicateEmail), errors.Is(err, service.ErrBusy):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, service.ErrCustomersUnavailable):
		http.Error(w, service.ErrCustomersUnavailable.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, service.ErrGenerationFailed):
		http.Error(w, service.ErrGenerationFailed.Error(), http.StatusBadGateway)
	default:
		if log != nil {
			log.Error("request failed",
				zap.String("path", r.URL.Path),
				zap.String("tenant", middleware.GetTenantFromContext(r.Context())),
				zap.Error(err))
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return false
	}
	return true
}
