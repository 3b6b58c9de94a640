package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/atinyakov/crmkeeper/internal/toast"
)

// ToastService defines the notification operations required by the
// ToastHandler.
type ToastService interface {
	Toasts() []toast.Toast
	DismissToast(id string) bool
}

// ToastHandler handles the notification endpoints.
type ToastHandler struct {
	ToastService ToastService
}

// List handles GET /api/toasts.
func (h *ToastHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ToastService.Toasts())
}

// Dismiss handles DELETE /api/toasts/{id}.
func (h *ToastHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	if !h.ToastService.DismissToast(chi.URLParam(r, "id")) {
		http.Error(w, "toast not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
