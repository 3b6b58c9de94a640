package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/atinyakov/crmkeeper/internal/models"
	"github.com/atinyakov/crmkeeper/internal/storage"
	"github.com/atinyakov/crmkeeper/internal/toast"
)

// ThemeKey is the global display preference key in the durable tier.
const ThemeKey = "crm_theme"

const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

// DefaultReportTimeout bounds a single generator request.
const DefaultReportTimeout = 2 * time.Minute

// TenantData defines the tenant-scoped persistence the workspace hydrates from.
type TenantData interface {
	CustomerStore
	ReportStore
	LoadCustomers(ctx context.Context, tenant string) ([]models.Customer, error)
	LoadReport(ctx context.Context, tenant string) (string, bool, error)
	HasSeenOnboarding(ctx context.Context, tenant string) (bool, error)
	MarkOnboardingSeen(ctx context.Context, tenant string) error
}

// WorkspaceDeps groups the collaborators of a Workspace.
type WorkspaceDeps struct {
	Identities *IdentityService
	Sessions   *SessionManager
	Data       TenantData
	// Prefs holds global preferences such as the theme. Usually the durable tier.
	Prefs     storage.Tier
	Generator Generator
	Toasts    *toast.Emitter
	Log       *zap.Logger
	// ReportTimeout bounds generator calls. Zero selects DefaultReportTimeout.
	ReportTimeout time.Duration
}

type tenantState struct {
	session   models.Session
	customers *Customers
	reports   *Reports
	onboarded bool
}

// Workspace is the single active working context of the process: the
// session, its customers and its report. Every user-facing operation reports
// its outcome as a toast as well as through its return values.
type Workspace struct {
	identities    *IdentityService
	sessions      *SessionManager
	data          TenantData
	prefs         storage.Tier
	gen           Generator
	toasts        *toast.Emitter
	log           *zap.Logger
	reportTimeout time.Duration
	now           func() time.Time

	mu    sync.RWMutex
	state *tenantState
}

// NewWorkspace constructs a Workspace with no active session.
func NewWorkspace(d WorkspaceDeps) *Workspace {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Toasts == nil {
		d.Toasts = toast.NewEmitter(toast.DefaultTTL)
	}
	if d.ReportTimeout <= 0 {
		d.ReportTimeout = DefaultReportTimeout
	}
	return &Workspace{
		identities:    d.Identities,
		sessions:      d.Sessions,
		data:          d.Data,
		prefs:         d.Prefs,
		gen:           d.Generator,
		toasts:        d.Toasts,
		log:           d.Log,
		reportTimeout: d.ReportTimeout,
		now:           time.Now,
	}
}

// Restore resumes a persisted session, if any, and hydrates its data.
func (w *Workspace) Restore(ctx context.Context) (models.Session, bool) {
	session, ok := w.sessions.Restore(ctx)
	if !ok {
		return models.Session{}, false
	}
	w.activate(ctx, session)
	w.log.Info("session restored", zap.String("tenant", session.Tenant()))
	return session, true
}

// Register creates an identity and logs it in.
func (w *Workspace) Register(ctx context.Context, name, email, password string, remember bool) (models.Session, error) {
	identity, err := w.identities.Register(ctx, name, email, password)
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			w.toasts.Emit(toast.Error, "This email is already registered.")
		}
		return models.Session{}, err
	}
	return w.start(ctx, identity, remember)
}

// Login authenticates email and makes it the active session.
func (w *Workspace) Login(ctx context.Context, email, password string, remember bool) (models.Session, error) {
	identity, err := w.identities.Authenticate(ctx, email, password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			w.toasts.Emit(toast.Error, "Email or password incorrect.")
		}
		return models.Session{}, err
	}
	return w.start(ctx, identity, remember)
}

func (w *Workspace) start(ctx context.Context, identity models.Identity, remember bool) (models.Session, error) {
	session, err := w.sessions.Login(ctx, identity, remember)
	if err != nil {
		return models.Session{}, err
	}
	w.activate(ctx, session)
	w.toasts.Emit(toast.Success, fmt.Sprintf("Welcome, %s!", session.Identity.Name))
	return session, nil
}

// activate replaces the working memory with the data of session.
func (w *Workspace) activate(ctx context.Context, session models.Session) {
	state := w.hydrate(ctx, session)

	w.mu.Lock()
	prev := w.state
	w.state = state
	w.mu.Unlock()
	if prev != nil {
		prev.reports.Detach()
	}
}

// hydrate loads the tenant's customers, report and onboarding flag
// concurrently. A failed load raises an error toast. A failed report or
// onboarding load falls back to its default; a failed customer load leaves
// the repository empty and read-only until writableCustomers reloads it.
func (w *Workspace) hydrate(ctx context.Context, session models.Session) *tenantState {
	tenant := session.Tenant()
	log := w.log.With(zap.String("tenant", tenant))

	var (
		customers       []models.Customer
		customersFailed bool
		report          string
		onboarded       bool
		g               errgroup.Group
	)
	g.Go(func() error {
		cs, err := w.data.LoadCustomers(ctx, tenant)
		if err != nil {
			customersFailed = true
			return fmt.Errorf("load customers: %w", err)
		}
		customers = cs
		return nil
	})
	g.Go(func() error {
		text, _, err := w.data.LoadReport(ctx, tenant)
		if err != nil {
			return fmt.Errorf("load report: %w", err)
		}
		report = text
		return nil
	})
	g.Go(func() error {
		seen, err := w.data.HasSeenOnboarding(ctx, tenant)
		if err != nil {
			return fmt.Errorf("load onboarding flag: %w", err)
		}
		onboarded = seen
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Error("failed to hydrate workspace", zap.Error(err))
		w.toasts.Emit(toast.Error, "Some saved data could not be loaded.")
	}

	repo := NewCustomers(tenant, customers, w.data, w.log)
	if customersFailed {
		repo.markUnavailable()
	}
	return &tenantState{
		session:   session,
		customers: repo,
		reports:   NewReports(tenant, report, w.gen, w.data, w.log),
		onboarded: onboarded,
	}
}

// Logout ends the session. Working memory is dropped and both session tiers
// are cleared; tenant data stays in storage.
func (w *Workspace) Logout(ctx context.Context) error {
	w.mu.Lock()
	prev := w.state
	w.state = nil
	w.mu.Unlock()
	if prev != nil {
		prev.reports.Detach()
	}

	if err := w.sessions.Logout(ctx); err != nil {
		w.log.Error("failed to clear session", zap.Error(err))
		return err
	}
	w.toasts.Emit(toast.Info, "Session ended.")
	return nil
}

// Session returns the active session.
func (w *Workspace) Session() (models.Session, bool) {
	st, err := w.active()
	if err != nil {
		return models.Session{}, false
	}
	return st.session, true
}

// UpdateProfile edits the identity of the active session. The change is
// written to the registered set and to the session snapshot.
func (w *Workspace) UpdateProfile(ctx context.Context, patch models.IdentityPatch) (models.Session, error) {
	st, err := w.active()
	if err != nil {
		return models.Session{}, err
	}
	if _, err := w.identities.UpdateProfile(ctx, st.session.Tenant(), patch); err != nil && !errors.Is(err, ErrNotFound) {
		return models.Session{}, err
	}
	session, err := w.sessions.UpdateIdentity(ctx, patch)
	if err != nil {
		return models.Session{}, err
	}

	w.mu.Lock()
	if w.state == st {
		st.session = session
	}
	w.mu.Unlock()
	w.toasts.Emit(toast.Success, "Profile updated.")
	return session, nil
}

// Customers returns the customer repository of the active session.
func (w *Workspace) Customers() (*Customers, error) {
	st, err := w.active()
	if err != nil {
		return nil, err
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return st.customers, nil
}

// writableCustomers returns the customer repository for a mutation. When the
// customers could not be loaded at login they are loaded again first; while
// that keeps failing, ErrCustomersUnavailable is returned and nothing is
// written.
func (w *Workspace) writableCustomers(ctx context.Context) (*Customers, error) {
	st, err := w.active()
	if err != nil {
		return nil, err
	}
	w.mu.RLock()
	current := st.customers
	w.mu.RUnlock()
	if current.Available() {
		return current, nil
	}

	tenant := st.session.Tenant()
	loaded, err := w.data.LoadCustomers(ctx, tenant)
	if err != nil {
		w.log.Error("failed to reload customers", zap.String("tenant", tenant), zap.Error(err))
		w.toasts.Emit(toast.Error, "Saved customers could not be loaded. Changes are disabled.")
		return nil, fmt.Errorf("%w: %w", ErrCustomersUnavailable, err)
	}
	fresh := NewCustomers(tenant, loaded, w.data, w.log)

	w.mu.Lock()
	defer w.mu.Unlock()
	if st.customers != current {
		return st.customers, nil
	}
	st.customers = fresh
	w.log.Info("customers reloaded", zap.String("tenant", tenant), zap.Int("count", len(loaded)))
	return fresh, nil
}

// Reports returns the report cache of the active session.
func (w *Workspace) Reports() (*Reports, error) {
	st, err := w.active()
	if err != nil {
		return nil, err
	}
	return st.reports, nil
}

// AddCustomer adds c to the active tenant.
func (w *Workspace) AddCustomer(ctx context.Context, c models.Customer) (models.Customer, error) {
	customers, err := w.writableCustomers(ctx)
	if err != nil {
		return models.Customer{}, err
	}
	added, err := customers.Add(ctx, c)
	if w.report(err, "Customer added.") {
		return models.Customer{}, err
	}
	return added, err
}

// UpdateCustomer replaces the record with the id of c.
func (w *Workspace) UpdateCustomer(ctx context.Context, c models.Customer) (models.Customer, error) {
	customers, err := w.writableCustomers(ctx)
	if err != nil {
		return models.Customer{}, err
	}
	ok, err := customers.Update(ctx, c)
	if err == nil && !ok {
		err = ErrNotFound
	}
	if w.report(err, "Customer updated.") {
		return models.Customer{}, err
	}
	updated, _ := customers.Get(c.ID)
	return updated, err
}

// DeleteCustomer removes the customer with id.
func (w *Workspace) DeleteCustomer(ctx context.Context, id string) error {
	customers, err := w.writableCustomers(ctx)
	if err != nil {
		return err
	}
	ok, err := customers.Remove(ctx, id)
	if err == nil && !ok {
		err = ErrNotFound
	}
	w.report(err, "Customer removed.")
	return err
}

// LogActivity appends an activity to customer id.
func (w *Workspace) LogActivity(ctx context.Context, id string, kind models.ActivityKind, text string) (models.Activity, error) {
	customers, err := w.writableCustomers(ctx)
	if err != nil {
		return models.Activity{}, err
	}
	entry, err := customers.AppendActivity(ctx, id, kind, text)
	if w.report(err, "Activity logged.") {
		return models.Activity{}, err
	}
	return entry, err
}

// Dashboard returns the metrics of the active tenant.
func (w *Workspace) Dashboard(top int) (models.DashboardStats, error) {
	customers, err := w.Customers()
	if err != nil {
		return models.DashboardStats{}, err
	}
	return customers.Stats(w.now(), top), nil
}

// GenerateReport runs the generator over the active tenant's customers. It
// fails with ErrCustomersUnavailable rather than report on customers that
// could not be loaded. The request is bounded by the report timeout and
// outlives the cancellation of ctx.
func (w *Workspace) GenerateReport(ctx context.Context) (string, error) {
	st, err := w.active()
	if err != nil {
		return "", err
	}
	customers, err := w.writableCustomers(ctx)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.reportTimeout)
	defer cancel()

	text, err := st.reports.Generate(ctx, customers.List())
	w.reportGenerator(err, "Strategic report generated!", "Could not generate the report.")
	return text, err
}

// RefineReport rewrites the current report following instruction.
func (w *Workspace) RefineReport(ctx context.Context, instruction string) (string, error) {
	reports, err := w.Reports()
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.reportTimeout)
	defer cancel()

	text, err := reports.Refine(ctx, instruction)
	w.reportGenerator(err, "Refinement applied!", "Refinement failed.")
	return text, err
}

// SetReportText stores a manually edited report.
func (w *Workspace) SetReportText(ctx context.Context, text string) error {
	reports, err := w.Reports()
	if err != nil {
		return err
	}
	err = reports.SetManualText(ctx, text)
	w.report(err, "Report saved.")
	return err
}

// ExportReport returns the file name and content of the report download.
func (w *Workspace) ExportReport(format string) (string, string, error) {
	reports, err := w.Reports()
	if err != nil {
		return "", "", err
	}
	name, text, err := reports.Export(format, w.now())
	if err != nil {
		return "", "", err
	}
	w.toasts.Emit(toast.Success, fmt.Sprintf("Downloaded %s.", name))
	return name, text, nil
}

// NeedsOnboarding reports whether the welcome tour should be shown.
func (w *Workspace) NeedsOnboarding() (bool, error) {
	st, err := w.active()
	if err != nil {
		return false, err
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return !st.onboarded, nil
}

// CompleteOnboarding records that the welcome tour was seen.
func (w *Workspace) CompleteOnboarding(ctx context.Context) error {
	st, err := w.active()
	if err != nil {
		return err
	}
	if err := w.data.MarkOnboardingSeen(ctx, st.session.Tenant()); err != nil {
		w.log.Error("failed to persist onboarding flag", zap.Error(err))
		return fmt.Errorf("persist onboarding flag: %w", err)
	}
	w.mu.Lock()
	st.onboarded = true
	w.mu.Unlock()
	return nil
}

// Theme returns the display theme. It defaults to light.
func (w *Workspace) Theme(ctx context.Context) string {
	v, ok, err := w.prefs.Get(ctx, ThemeKey)
	if err != nil {
		w.log.Warn("failed to read theme", zap.Error(err))
		return ThemeLight
	}
	if !ok || (v != ThemeLight && v != ThemeDark) {
		return ThemeLight
	}
	return v
}

// SetTheme stores the display theme.
func (w *Workspace) SetTheme(ctx context.Context, theme string) error {
	if theme != ThemeLight && theme != ThemeDark {
		return &ValidationError{Errors: map[string]string{"theme": "must be one of: light dark"}}
	}
	if err := w.prefs.Set(ctx, ThemeKey, theme); err != nil {
		w.log.Error("failed to persist theme", zap.Error(err))
		return fmt.Errorf("persist theme: %w", err)
	}
	if theme == ThemeDark {
		w.toasts.Emit(toast.Info, "Dark mode enabled.")
	} else {
		w.toasts.Emit(toast.Info, "Light mode enabled.")
	}
	return nil
}

// Toasts returns the visible notifications.
func (w *Workspace) Toasts() []toast.Toast {
	return w.toasts.Active()
}

// DismissToast hides the notification with id.
func (w *Workspace) DismissToast(id string) bool {
	return w.toasts.Dismiss(id)
}

func (w *Workspace) active() (*tenantState, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.state == nil {
		return nil, ErrNoSession
	}
	return w.state, nil
}

// report emits the toast matching err and reports whether err is a
// rejection that left working memory unchanged.
func (w *Workspace) report(err error, success string) bool {
	var ve *ValidationError
	switch {
	case err == nil:
		w.toasts.Emit(toast.Success, success)
		return false
	case errors.As(err, &ve):
		w.toasts.Emit(toast.Error, "Please fill in the required fields.")
		return true
	case errors.Is(err, ErrNotFound):
		w.toasts.Emit(toast.Error, "Customer not found.")
		return true
	case errors.Is(err, ErrNoReport):
		w.toasts.Emit(toast.Error, "There is no report yet.")
		return true
	default:
		w.toasts.Emit(toast.Error, "Changes could not be saved.")
		return false
	}
}

func (w *Workspace) reportGenerator(err error, success, failure string) {
	switch {
	case err == nil:
		w.toasts.Emit(toast.Success, success)
	case errors.Is(err, ErrBusy):
		w.toasts.Emit(toast.Info, "A report request is already running.")
	case errors.Is(err, ErrNoReport):
		w.toasts.Emit(toast.Error, "There is no report to refine.")
	case errors.Is(err, ErrGenerationFailed):
		w.toasts.Emit(toast.Error, failure)
	default:
		w.toasts.Emit(toast.Error, "The report could not be saved.")
	}
}
