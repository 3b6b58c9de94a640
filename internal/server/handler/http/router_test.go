package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/atinyakov/crmkeeper/internal/generator"
	"github.com/atinyakov/crmkeeper/internal/models"
	"github.com/atinyakov/crmkeeper/internal/repository"
	"github.com/atinyakov/crmkeeper/internal/seed"
	handler "github.com/atinyakov/crmkeeper/internal/server/handler/http"
	"github.com/atinyakov/crmkeeper/internal/service"
	"github.com/atinyakov/crmkeeper/internal/storage"
	"github.com/atinyakov/crmkeeper/internal/toast"
)

type failingGenerator struct{}

func (failingGenerator) Generate(context.Context, []models.CustomerSummary) (string, error) {
	return "", assert.AnError
}

func (failingGenerator) Refine(context.Context, string, string) (string, error) {
	return "", assert.AnError
}

func newServer(t *testing.T, gen service.Generator) *httptest.Server {
	t.Helper()
	durable := storage.NewMemory()
	data := repository.NewTenantStore(durable, seed.Default, nil)
	identities := service.NewIdentityService(repository.NewIdentityRepository(durable, nil), nil,
		service.WithHashCost(bcrypt.MinCost),
		service.WithDemoTenant(seed.NewDemoTenant("demo@crm.local"), data))
	ws := service.NewWorkspace(service.WorkspaceDeps{
		Identities: identities,
		Sessions:   service.NewSessionManager(durable, storage.NewMemory(), nil),
		Data:       data,
		Prefs:      durable,
		Generator:  gen,
		Toasts:     toast.NewEmitter(time.Minute),
	})
	log := zap.NewNop()
	router := handler.NewRouter(handler.Handlers{
		Auth:      &handler.AuthHandler{AuthService: ws, Log: log},
		Customers: &handler.CustomerHandler{CustomerService: ws, Log: log},
		Report:    &handler.ReportHandler{ReportService: ws, Log: log},
		Toasts:    &handler.ToastHandler{ToastService: ws},
		Sessions:  ws,
	}, log)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func register(t *testing.T, srv *httptest.Server, email string) {
	t.Helper()
	resp := do(t, srv, http.MethodPost, "/api/register", handler.RegisterRequest{Name: "Ana", Email: email, Password: "s3cret"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestRouter_TenantRoutesRequireSession(t *testing.T) {
	srv := newServer(t, generator.NewTemplate())

	for _, path := range []string{"/api/session", "/api/customers", "/api/dashboard", "/api/report"} {
		resp := do(t, srv, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}
}

func TestRouter_RegisterLoginLogout(t *testing.T) {
	srv := newServer(t, generator.NewTemplate())
	register(t, srv, "ana@example.com")

	resp := do(t, srv, http.MethodPost, "/api/register", handler.RegisterRequest{Name: "Ana", Email: "ana@example.com", Password: "x"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = do(t, srv, http.MethodPost, "/api/register", handler.RegisterRequest{Email: "bad"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	ve := decodeBody[service.ValidationError](t, resp)
	assert.Contains(t, ve.Errors, "name")

	resp = do(t, srv, http.MethodGet, "/api/session", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	session := decodeBody[models.Session](t, resp)
	assert.Equal(t, "ana@example.com", session.Tenant())
	assert.Empty(t, session.Identity.PasswordHash)

	resp = do(t, srv, http.MethodPost, "/api/logout", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = do(t, srv, http.MethodGet, "/api/session", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = do(t, srv, http.MethodPost, "/api/login", handler.LoginRequest{Email: "ana@example.com", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp = do(t, srv, http.MethodPost, "/api/login", handler.LoginRequest{Email: "ana@example.com", Password: "s3cret"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_RejectsNonJSON(t *testing.T) {
	srv := newServer(t, generator.NewTemplate())
	resp, err := srv.Client().Post(srv.URL+"/api/login", "text/plain", strings.NewReader("email=a"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
}

func TestRouter_DemoTenant(t *testing.T) {
	srv := newServer(t, generator.NewTemplate())
	resp := do(t, srv, http.MethodPost, "/api/login", handler.LoginRequest{Email: "demo@crm.local", Password: "any"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, srv, http.MethodGet, "/api/customers", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeBody[[]models.Customer](t, resp), seed.DefaultDemoCustomers)
}

func TestRouter_CustomerLifecycle(t *testing.T) {
	srv := newServer(t, generator.NewTemplate())
	register(t, srv, "ana@example.com")

	resp := do(t, srv, http.MethodPost, "/api/customers", models.Customer{Name: "Zeca", Company: "Zeca SA", Value: 900, Status: models.StatusActive})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	added := decodeBody[models.Customer](t, resp)
	require.NotEmpty(t, added.ID)

	resp = do(t, srv, http.MethodGet, "/api/customers?q=zeca", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeBody[[]models.Customer](t, resp), 1)

	resp = do(t, srv, http.MethodGet, "/api/customers?status=Unknown", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	added.Status = models.StatusInactive
	resp = do(t, srv, http.MethodPut, "/api/customers/"+added.ID, added)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decodeBody[models.Customer](t, resp)
	require.Len(t, updated.ActivityLog, 1)
	assert.Equal(t, models.ActivityStatusChange, updated.ActivityLog[0].Kind)

	resp = do(t, srv, http.MethodPost, "/api/customers/"+added.ID+"/activities", map[string]string{"kind": "call", "text": "intro call"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = do(t, srv, http.MethodPost, "/api/customers/"+added.ID+"/activities", map[string]string{"kind": "fax", "text": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, srv, http.MethodGet, "/api/customers/"+added.ID+"/advice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, decodeBody[map[string]string](t, resp)["advice"], "reactivate Zeca")

	resp = do(t, srv, http.MethodGet, "/api/customers/top?n=1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	top := decodeBody[[]models.Customer](t, resp)
	require.Len(t, top, 1)

	resp = do(t, srv, http.MethodGet, "/api/customers/churn-risk", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, srv, http.MethodGet, "/api/dashboard", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stats := decodeBody[models.DashboardStats](t, resp)
	assert.Equal(t, len(seed.Default())+1, stats.TotalCustomers)

	resp = do(t, srv, http.MethodDelete, "/api/customers/"+added.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = do(t, srv, http.MethodDelete, "/api/customers/"+added.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = do(t, srv, http.MethodGet, "/api/customers/"+added.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRouter_Report(t *testing.T) {
	srv := newServer(t, generator.NewTemplate())
	register(t, srv, "ana@example.com")

	resp := do(t, srv, http.MethodGet, "/api/report/export?format=md", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, srv, http.MethodPost, "/api/report/generate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[map[string]string](t, resp)
	assert.Contains(t, body["text"], "Customer Portfolio Analysis")
	assert.Equal(t, "ready", body["state"])

	resp = do(t, srv, http.MethodPost, "/api/report/refine", map[string]string{"instruction": "be brief"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, decodeBody[map[string]string](t, resp)["text"], "be brief")

	resp = do(t, srv, http.MethodPut, "/api/report", map[string]string{"text": "mine"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, srv, http.MethodGet, "/api/report/export?format=txt", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "crm_report_")
	assert.Contains(t, resp.Header.Get("Content-Disposition"), ".txt")
}

func TestRouter_ReportGeneratorFailure(t *testing.T) {
	srv := newServer(t, failingGenerator{})
	register(t, srv, "ana@example.com")

	resp := do(t, srv, http.MethodPost, "/api/report/generate", nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	resp = do(t, srv, http.MethodGet, "/api/toasts", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	toasts := decodeBody[[]toast.Toast](t, resp)
	require.NotEmpty(t, toasts)
	last := toasts[len(toasts)-1]
	assert.Equal(t, toast.Error, last.Kind)

	resp = do(t, srv, http.MethodDelete, "/api/toasts/"+last.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = do(t, srv, http.MethodDelete, "/api/toasts/"+last.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRouter_ThemeAndOnboarding(t *testing.T) {
	srv := newServer(t, generator.NewTemplate())

	resp := do(t, srv, http.MethodPut, "/api/theme", map[string]string{"theme": "dark"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = do(t, srv, http.MethodGet, "/api/theme", nil)
	assert.Equal(t, "dark", decodeBody[map[string]string](t, resp)["theme"])
	resp = do(t, srv, http.MethodPut, "/api/theme", map[string]string{"theme": "neon"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	register(t, srv, "ana@example.com")
	resp = do(t, srv, http.MethodGet, "/api/onboarding", nil)
	assert.True(t, decodeBody[map[string]bool](t, resp)["needed"])
	resp = do(t, srv, http.MethodPost, "/api/onboarding/complete", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = do(t, srv, http.MethodGet, "/api/onboarding", nil)
	assert.False(t, decodeBody[map[string]bool](t, resp)["needed"])

	name := "Ana Paula"
	resp = do(t, srv, http.MethodPatch, "/api/profile", models.IdentityPatch{Name: &name})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, name, decodeBody[models.Session](t, resp).Identity.Name)
}

func TestRouter_Metrics(t *testing.T) {
	srv := newServer(t, generator.NewTemplate())
	register(t, srv, "ana@example.com")

	resp := do(t, srv, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	assert.Contains(t, buf.String(), "crm_auth_attempts_total")
}
