package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/atinyakov/crmkeeper/internal/generator"
	"github.com/atinyakov/crmkeeper/internal/models"
	"github.com/atinyakov/crmkeeper/internal/service"
)

const defaultTop = 5

// CustomerService defines the customer operations required by the
// CustomerHandler.
type CustomerService interface {
	Customers() (*service.Customers, error)
	AddCustomer(ctx context.Context, c models.Customer) (models.Customer, error)
	UpdateCustomer(ctx context.Context, c models.Customer) (models.Customer, error)
	DeleteCustomer(ctx context.Context, id string) error
	LogActivity(ctx context.Context, id string, kind models.ActivityKind, text string) (models.Activity, error)
	Dashboard(top int) (models.DashboardStats, error)
}

// CustomerHandler handles the customer and dashboard endpoints.
type CustomerHandler struct {
	CustomerService CustomerService
	Log             *zap.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// List handles GET /api/customers?q=&status=.
func (h *CustomerHandler) List(w http.ResponseWriter, r *http.Request) {
	customers, ok := h.customers(w, r)
	if !ok {
		return
	}
	var status models.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		s, err := models.ParseStatus(raw)
		if err != nil {
			writeError(w, r, h.Log, &service.ValidationError{Errors: map[string]string{"status": "must be one of: Active Lead Inactive"}})
			return
		}
		status = s
	}
	writeJSON(w, http.StatusOK, customers.Query(r.URL.Query().Get("q"), status))
}

// Get handles GET /api/customers/{id}.
func (h *CustomerHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, ok := h.customer(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Add handles POST /api/customers.
func (h *CustomerHandler) Add(w http.ResponseWriter, r *http.Request) {
	var c models.Customer
	if !decode(w, r, &c) {
		return
	}
	added, err := h.CustomerService.AddCustomer(r.Context(), c)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, added)
}

// Update handles PUT /api/customers/{id}. The id of the path wins over the
// body.
func (h *CustomerHandler) Update(w http.ResponseWriter, r *http.Request) {
	var c models.Customer
	if !decode(w, r, &c) {
		return
	}
	c.ID = chi.URLParam(r, "id")
	updated, err := h.CustomerService.UpdateCustomer(r.Context(), c)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/customers/{id}.
func (h *CustomerHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.CustomerService.DeleteCustomer(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddActivity handles POST /api/customers/{id}/activities.
func (h *CustomerHandler) AddActivity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kind string `json:"kind"`
		Text string `json:"text"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Kind == "" {
		req.Kind = string(models.ActivityNote)
	}
	kind, err := models.ParseActivityKind(req.Kind)
	if err != nil {
		writeError(w, r, h.Log, &service.ValidationError{Errors: map[string]string{"kind": "must be one of: note status-change call email"}})
		return
	}
	entry, err := h.CustomerService.LogActivity(r.Context(), chi.URLParam(r, "id"), kind, req.Text)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// Advice handles GET /api/customers/{id}/advice.
func (h *CustomerHandler) Advice(w http.ResponseWriter, r *http.Request) {
	c, ok := h.customer(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"advice": generator.Advice(c)})
}

// Top handles GET /api/customers/top?n=.
func (h *CustomerHandler) Top(w http.ResponseWriter, r *http.Request) {
	n, ok := intParam(w, r, "n", defaultTop)
	if !ok {
		return
	}
	customers, ok := h.customers(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, customers.TopAccounts(n))
}

// ChurnRisk handles GET /api/customers/churn-risk.
func (h *CustomerHandler) ChurnRisk(w http.ResponseWriter, r *http.Request) {
	customers, ok := h.customers(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, customers.ChurnRisk(h.now()))
}

// Dashboard handles GET /api/dashboard?top=.
func (h *CustomerHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	top, ok := intParam(w, r, "top", defaultTop)
	if !ok {
		return
	}
	stats, err := h.CustomerService.Dashboard(top)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *CustomerHandler) customers(w http.ResponseWriter, r *http.Request) (*service.Customers, bool) {
	customers, err := h.CustomerService.Customers()
	if err != nil {
		writeError(w, r, h.Log, err)
		return nil, false
	}
	return customers, true
}

func (h *CustomerHandler) customer(w http.ResponseWriter, r *http.Request) (models.Customer, bool) {
	customers, ok := h.customers(w, r)
	if !ok {
		return models.Customer{}, false
	}
	c, found := customers.Get(chi.URLParam(r, "id"))
	if !found {
		writeError(w, r, h.Log, service.ErrNotFound)
		return models.Customer{}, false
	}
	return c, true
}

func (h *CustomerHandler) now() time.Time {
	if h.Now == nil {
		return time.Now()
	}
	return h.Now()
}

func intParam(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		http.Error(w, "invalid "+name, http.StatusBadRequest)
		return 0, false
	}
	return n, true
}
