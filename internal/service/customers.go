package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/atinyakov/crmkeeper/internal/models"
)

// ChurnThreshold is the staleness after which an Active customer is at risk.
// A customer is at risk only when strictly more whole days than this have
// passed since the last contact.
const ChurnThreshold = 45 * 24 * time.Hour

// CustomerStore defines the persistence operation the repository needs.
type CustomerStore interface {
	// SaveCustomers overwrites the full customer sequence of tenant.
	SaveCustomers(ctx context.Context, tenant string, customers []models.Customer) error
}

// Customers is the working-memory customer repository of one tenant. Every
// mutation rewrites the tenant's full sequence through the store.
type Customers struct {
	tenant   string
	store    CustomerStore
	validate *validator.Validate
	log      *zap.Logger
	now      func() time.Time

	mu    sync.RWMutex
	items []models.Customer
	// unavailable blocks every write so the stored sequence, which could not
	// be read, is never overwritten with a partial one.
	unavailable bool
}

// NewCustomers wraps the loaded sequence of tenant.
func NewCustomers(tenant string, items []models.Customer, store CustomerStore, log *zap.Logger) *Customers {
	if log == nil {
		log = zap.NewNop()
	}
	cloned := make([]models.Customer, len(items))
	for i, c := range items {
		cloned[i] = c.Clone()
	}
	return &Customers{
		tenant:   tenant,
		store:    store,
		validate: newValidator(),
		log:      log.With(zap.String("tenant", tenant)),
		now:      time.Now,
		items:    cloned,
	}
}

// Tenant returns the owner of the repository.
func (r *Customers) Tenant() string {
	return r.tenant
}

// Add validates c, gives it a fresh id unless it carries an unused one, and
// prepends it. Missing status, priority and last contact get defaults.
func (r *Customers) Add(ctx context.Context, c models.Customer) (models.Customer, error) {
	c = c.Clone()
	if c.Status == "" {
		c.Status = models.StatusLead
	}
	if c.Priority == "" {
		c.Priority = models.PriorityMedium
	}
	if c.LastContact == "" {
		c.LastContact = r.now().UTC().Format(models.DateLayout)
	}
	if err := validateStruct(r.validate, c); err != nil {
		return models.Customer{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unavailable {
		return models.Customer{}, ErrCustomersUnavailable
	}
	if c.ID == "" || r.indexOf(c.ID) >= 0 {
		c.ID = r.freshID()
	}
	r.items = append([]models.Customer{c}, r.items...)
	return c.Clone(), r.persist(ctx)
}

// Update replaces the record with the same id in place. It reports false,
// without writing, when no record matches. The stored activity log is kept:
// entries are appended only through AppendActivity, and a status change
// appends its own entry.
func (r *Customers) Update(ctx context.Context, c models.Customer) (bool, error) {
	c = c.Clone()
	c.ActivityLog = nil
	if err := validateStruct(r.validate, c); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unavailable {
		return false, ErrCustomersUnavailable
	}
	i := r.indexOf(c.ID)
	if i < 0 {
		r.log.Debug("update of unknown customer ignored", zap.String("id", c.ID))
		return false, nil
	}
	prev := r.items[i]
	c.ActivityLog = prev.ActivityLog
	if prev.Status != c.Status {
		entry := r.newActivity(models.ActivityStatusChange,
			fmt.Sprintf("Status changed from %s to %s.", prev.Status, c.Status))
		c.ActivityLog = append([]models.Activity{entry}, prev.ActivityLog...)
	}
	r.items[i] = c
	return true, r.persist(ctx)
}

// Remove deletes the record with id. It reports false, without writing, when
// no record matches.
func (r *Customers) Remove(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unavailable {
		return false, ErrCustomersUnavailable
	}
	i := r.indexOf(id)
	if i < 0 {
		return false, nil
	}
	r.items = append(r.items[:i:i], r.items[i+1:]...)
	return true, r.persist(ctx)
}

// AppendActivity prepends a new entry to the log of customer id. Calls and
// emails also count as a contact and move LastContact to today.
func (r *Customers) AppendActivity(ctx context.Context, id string, kind models.ActivityKind, text string) (models.Activity, error) {
	entry := r.newActivity(kind, strings.TrimSpace(text))
	if err := validateStruct(r.validate, entry); err != nil {
		return models.Activity{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unavailable {
		return models.Activity{}, ErrCustomersUnavailable
	}
	i := r.indexOf(id)
	if i < 0 {
		return models.Activity{}, ErrNotFound
	}
	c := r.items[i].Clone()
	c.ActivityLog = append([]models.Activity{entry}, c.ActivityLog...)
	if kind == models.ActivityCall || kind == models.ActivityEmail {
		c.LastContact = entry.At.Format(models.DateLayout)
	}
	r.items[i] = c
	return entry, r.persist(ctx)
}

// Available reports whether the repository accepts writes. It is false when
// the stored customers could not be loaded.
func (r *Customers) Available() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !r.unavailable
}

func (r *Customers) markUnavailable() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unavailable = true
}

// Get returns the customer with id.
func (r *Customers) Get(id string) (models.Customer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := r.indexOf(id)
	if i < 0 {
		return models.Customer{}, false
	}
	return r.items[i].Clone(), true
}

// List returns the full sequence in stored order.
func (r *Customers) List() []models.Customer {
	return r.filter(func(models.Customer) bool { return true })
}

// Len returns the number of customers.
func (r *Customers) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Search returns customers whose name or company contains q, ignoring case.
func (r *Customers) Search(q string) []models.Customer {
	return r.Query(q, "")
}

// FilterStatus returns the customers with status s.
func (r *Customers) FilterStatus(s models.Status) []models.Customer {
	return r.Query("", s)
}

// Query combines Search and FilterStatus. Empty arguments match everything.
func (r *Customers) Query(q string, status models.Status) []models.Customer {
	q = strings.ToLower(strings.TrimSpace(q))
	return r.filter(func(c models.Customer) bool {
		if status != "" && c.Status != status {
			return false
		}
		if q == "" {
			return true
		}
		return strings.Contains(strings.ToLower(c.Name), q) ||
			strings.Contains(strings.ToLower(c.Company), q)
	})
}

// TopAccounts returns up to n customers by value, highest first. Equal values
// keep their stored order. n <= 0 returns all.
func (r *Customers) TopAccounts(n int) []models.Customer {
	out := r.List()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value > out[j].Value })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// ChurnRisk returns the Active customers last contacted more than 45 whole
// days before now. Customers without a readable date are not included.
func (r *Customers) ChurnRisk(now time.Time) []models.Customer {
	return r.filter(func(c models.Customer) bool {
		return c.Status == models.StatusActive && atChurnRisk(c, now)
	})
}

// Stats derives the dashboard metrics from the current sequence.
func (r *Customers) Stats(now time.Time, top int) models.DashboardStats {
	all := r.List()
	stats := models.DashboardStats{TotalCustomers: len(all), TopAccounts: r.TopAccounts(top)}
	for _, c := range all {
		stats.PortfolioValue += c.Value
		switch c.Status {
		case models.StatusActive:
			stats.Active++
			if atChurnRisk(c, now) {
				stats.ChurnRisk++
			}
		case models.StatusLead:
			stats.Leads++
		case models.StatusInactive:
			stats.Inactive++
		}
	}
	if len(all) > 0 {
		stats.AverageValue = stats.PortfolioValue / float64(len(all))
	}
	return stats
}

// DaysSince counts whole calendar days, in UTC, from date to now.
func DaysSince(date, now time.Time) int {
	y, m, d := now.UTC().Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	y, m, d = date.UTC().Date()
	then := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return int(today.Sub(then) / (24 * time.Hour))
}

func atChurnRisk(c models.Customer, now time.Time) bool {
	last, ok := c.LastContactDate()
	if !ok {
		return false
	}
	return DaysSince(last, now) > int(ChurnThreshold/(24*time.Hour))
}

func (r *Customers) filter(keep func(models.Customer) bool) []models.Customer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Customer, 0, len(r.items))
	for _, c := range r.items {
		if keep(c) {
			out = append(out, c.Clone())
		}
	}
	return out
}

// indexOf must be called with mu held.
func (r *Customers) indexOf(id string) int {
	for i := range r.items {
		if r.items[i].ID == id {
			return i
		}
	}
	return -1
}

// freshID must be called with mu held.
func (r *Customers) freshID() string {
	for {
		id := uuid.NewString()
		if r.indexOf(id) < 0 {
			return id
		}
	}
}

func (r *Customers) newActivity(kind models.ActivityKind, text string) models.Activity {
	now := r.now().UTC()
	return models.Activity{
		ID:   ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		At:   now,
		Text: text,
		Kind: kind,
	}
}

// persist must be called with mu held so writes reach the store in mutation order.
func (r *Customers) persist(ctx context.Context) error {
	snapshot := make([]models.Customer, len(r.items))
	copy(snapshot, r.items)
	if err := r.store.SaveCustomers(ctx, r.tenant, snapshot); err != nil {
		r.log.Error("failed to persist customers", zap.Error(err))
		return fmt.Errorf("persist customers: %w", err)
	}
	return nil
}
