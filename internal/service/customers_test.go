package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atinyakov/crmkeeper/internal/models"
	"github.com/atinyakov/crmkeeper/internal/repository"
	"github.com/atinyakov/crmkeeper/internal/seed"
	"github.com/atinyakov/crmkeeper/internal/storage"
)

var testNow = time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)

type recordingStore struct {
	mu    sync.Mutex
	saves int
	last  []models.Customer
	err   error
}

func (s *recordingStore) SaveCustomers(_ context.Context, _ string, cs []models.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saves++
	s.last = cs
	return nil
}

func customer(id, name string, status models.Status, value float64, lastContact string) models.Customer {
	return models.Customer{
		ID:          id,
		Name:        name,
		Company:     name + " Ltd",
		Status:      status,
		Value:       value,
		Priority:    models.PriorityMedium,
		LastContact: lastContact,
	}
}

func newTestCustomers(store CustomerStore, items ...models.Customer) *Customers {
	c := NewCustomers("ana@example.com", items, store, nil)
	c.now = func() time.Time { return testNow }
	return c
}

func TestCustomers_AddPrependsAndPersists(t *testing.T) {
	store := &recordingStore{}
	repo := newTestCustomers(store, customer("1", "First", models.StatusActive, 10, "2024-02-01"))

	added, err := repo.Add(context.Background(), models.Customer{Name: "New One"})
	require.NoError(t, err)
	assert.NotEmpty(t, added.ID)
	assert.Equal(t, models.StatusLead, added.Status)
	assert.Equal(t, models.PriorityMedium, added.Priority)
	assert.Equal(t, "2024-03-01", added.LastContact)

	list := repo.List()
	require.Len(t, list, 2)
	assert.Equal(t, added.ID, list[0].ID)
	assert.Equal(t, 1, store.saves)
	assert.Len(t, store.last, 2)
}

func TestCustomers_AddReplacesCollidingID(t *testing.T) {
	repo := newTestCustomers(&recordingStore{}, customer("1", "First", models.StatusActive, 10, "2024-02-01"))

	added, err := repo.Add(context.Background(), customer("1", "Second", models.StatusLead, 5, "2024-02-01"))
	require.NoError(t, err)
	assert.NotEqual(t, "1", added.ID)
	assert.Equal(t, 2, repo.Len())
}

func TestCustomers_AddValidation(t *testing.T) {
	store := &recordingStore{}
	repo := newTestCustomers(store)

	_, err := repo.Add(context.Background(), models.Customer{Name: "", Email: "bad", Value: -1})
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, ve.Errors, "name")
	assert.Contains(t, ve.Errors, "email")
	assert.Contains(t, ve.Errors, "value")
	assert.Equal(t, 0, repo.Len())
	assert.Equal(t, 0, store.saves)
}

func TestCustomers_UpdateInPlace(t *testing.T) {
	store := &recordingStore{}
	repo := newTestCustomers(store,
		customer("1", "First", models.StatusLead, 10, "2024-02-01"),
		customer("2", "Second", models.StatusLead, 20, "2024-02-01"),
	)

	changed := customer("1", "First Renamed", models.StatusActive, 99, "2024-02-20")
	changed.ActivityLog = []models.Activity{{ID: "x", Text: "forged", Kind: models.ActivityNote}}
	ok, err := repo.Update(context.Background(), changed)
	require.NoError(t, err)
	require.True(t, ok)

	list := repo.List()
	assert.Equal(t, "1", list[0].ID, "order must be preserved")
	assert.Equal(t, "First Renamed", list[0].Name)
	require.Len(t, list[0].ActivityLog, 1, "incoming log is ignored, status change appended")
	assert.Equal(t, models.ActivityStatusChange, list[0].ActivityLog[0].Kind)
	assert.Equal(t, "Status changed from Lead to Active.", list[0].ActivityLog[0].Text)
	assert.Equal(t, 1, store.saves)
}

func TestCustomers_UpdateUnknownIsNoop(t *testing.T) {
	store := &recordingStore{}
	repo := newTestCustomers(store, customer("1", "First", models.StatusLead, 10, "2024-02-01"))

	ok, err := repo.Update(context.Background(), customer("404", "Ghost", models.StatusLead, 1, "2024-02-01"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, store.saves)
	assert.Equal(t, 1, repo.Len())
}

func TestCustomers_Remove(t *testing.T) {
	store := &recordingStore{}
	repo := newTestCustomers(store,
		customer("1", "First", models.StatusLead, 10, "2024-02-01"),
		customer("2", "Second", models.StatusLead, 20, "2024-02-01"),
	)

	ok, err := repo.Remove(context.Background(), "404")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, store.saves)

	ok, err = repo.Remove(context.Background(), "1")
	require.NoError(t, err)
	assert.True(t, ok)
	_, found := repo.Get("1")
	assert.False(t, found)
	assert.Equal(t, 1, store.saves)
}

func TestCustomers_AppendActivity(t *testing.T) {
	repo := newTestCustomers(&recordingStore{}, customer("1", "First", models.StatusActive, 10, "2023-12-01"))
	ctx := context.Background()

	note, err := repo.AppendActivity(ctx, "1", models.ActivityNote, "  met at fair ")
	require.NoError(t, err)
	assert.Equal(t, "met at fair", note.Text)
	assert.Len(t, note.ID, 26)
	c, _ := repo.Get("1")
	assert.Equal(t, "2023-12-01", c.LastContact, "notes do not count as contact")

	call, err := repo.AppendActivity(ctx, "1", models.ActivityCall, "follow-up call")
	require.NoError(t, err)
	c, _ = repo.Get("1")
	assert.Equal(t, "2024-03-01", c.LastContact)
	require.Len(t, c.ActivityLog, 2)
	assert.Equal(t, call.ID, c.ActivityLog[0].ID, "most recent first")

	_, err = repo.AppendActivity(ctx, "404", models.ActivityNote, "x")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = repo.AppendActivity(ctx, "1", models.ActivityNote, "   ")
	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestCustomers_PersistFailureKeepsMutation(t *testing.T) {
	store := &recordingStore{err: errors.New("quota exceeded")}
	repo := newTestCustomers(store)

	_, err := repo.Add(context.Background(), models.Customer{Name: "Kept"})
	require.Error(t, err)
	assert.Equal(t, 1, repo.Len())
}

func TestCustomers_Views(t *testing.T) {
	repo := newTestCustomers(&recordingStore{},
		customer("1", "Ana", models.StatusActive, 300, "2024-02-01"),
		customer("2", "Bruno", models.StatusLead, 500, "2024-02-01"),
		customer("3", "Carla", models.StatusActive, 300, "2023-01-01"),
		customer("4", "Diego", models.StatusInactive, 100, "2023-01-01"),
	)

	assert.Len(t, repo.Search("ANA"), 1)
	assert.Len(t, repo.Search("ltd"), 4, "company is searched too")
	assert.Len(t, repo.FilterStatus(models.StatusActive), 2)
	assert.Len(t, repo.Query("a", models.StatusActive), 2)
	assert.Len(t, repo.Query("", ""), 4)

	top := repo.TopAccounts(3)
	require.Len(t, top, 3)
	assert.Equal(t, []string{"2", "1", "3"}, []string{top[0].ID, top[1].ID, top[2].ID})

	risk := repo.ChurnRisk(testNow)
	require.Len(t, risk, 1)
	assert.Equal(t, "3", risk[0].ID)

	stats := repo.Stats(testNow, 2)
	assert.Equal(t, 4, stats.TotalCustomers)
	assert.Equal(t, 2, stats.Active)
	assert.Equal(t, 1, stats.Leads)
	assert.Equal(t, 1, stats.Inactive)
	assert.Equal(t, 1200.0, stats.PortfolioValue)
	assert.Equal(t, 300.0, stats.AverageValue)
	assert.Equal(t, 1, stats.ChurnRisk)
	assert.Len(t, stats.TopAccounts, 2)
}

func TestCustomers_ChurnBoundary(t *testing.T) {
	day := func(n int) string { return testNow.AddDate(0, 0, -n).Format(models.DateLayout) }
	repo := newTestCustomers(&recordingStore{},
		customer("44", "A", models.StatusActive, 1, day(44)),
		customer("45", "B", models.StatusActive, 1, day(45)),
		customer("46", "C", models.StatusActive, 1, day(46)),
		customer("lead", "D", models.StatusLead, 1, day(90)),
		customer("bad", "E", models.StatusActive, 1, "not-a-date"),
	)

	risk := repo.ChurnRisk(testNow)
	require.Len(t, risk, 1)
	assert.Equal(t, "46", risk[0].ID)
}

func TestDaysSince_WholeUTCDays(t *testing.T) {
	last := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, DaysSince(last, time.Date(2024, 1, 1, 23, 59, 0, 0, time.UTC)))
	assert.Equal(t, 1, DaysSince(last, time.Date(2024, 1, 2, 0, 1, 0, 0, time.UTC)))
	assert.Equal(t, 60, DaysSince(last, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)))
}

func TestCustomers_DeleteThenReload(t *testing.T) {
	ctx := context.Background()
	store := repository.NewTenantStore(storage.NewMemory(), seed.Default, nil)

	loaded, err := store.LoadCustomers(ctx, "ana@example.com")
	require.NoError(t, err)
	repo := NewCustomers("ana@example.com", loaded, store, nil)
	ok, err := repo.Remove(ctx, loaded[0].ID)
	require.NoError(t, err)
	require.True(t, ok)

	reloaded, err := store.LoadCustomers(ctx, "ana@example.com")
	require.NoError(t, err)
	require.Len(t, reloaded, len(loaded)-1)
	for _, c := range reloaded {
		assert.NotEqual(t, loaded[0].ID, c.ID)
	}
}
