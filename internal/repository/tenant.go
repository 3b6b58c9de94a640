package repository

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/atinyakov/crmkeeper/internal/metrics"
	"github.com/atinyakov/crmkeeper/internal/models"
	"github.com/atinyakov/crmkeeper/internal/storage"
)

// KeyPrefix namespaces every key this module writes.
const KeyPrefix = "crm"

// DataKind identifies one independently keyed piece of tenant data.
type DataKind string

const (
	KindCustomers  DataKind = "data"
	KindReport     DataKind = "report"
	KindOnboarding DataKind = "welcome_seen"
)

// TenantKey derives the storage key of kind for the tenant identified by email.
// The email is base64 encoded so the key is reversible and tenants never share a key.
func TenantKey(kind DataKind, email string) string {
	return KeyPrefix + "_" + string(kind) + "_" + base64.StdEncoding.EncodeToString([]byte(email))
}

// ParseTenantKey is the inverse of TenantKey.
func ParseTenantKey(key string) (DataKind, string, error) {
	rest, ok := strings.CutPrefix(key, KeyPrefix+"_")
	if !ok {
		return "", "", fmt.Errorf("key %q is not a tenant key", key)
	}
	for _, kind := range []DataKind{KindOnboarding, KindCustomers, KindReport} {
		encoded, ok := strings.CutPrefix(rest, string(kind)+"_")
		if !ok {
			continue
		}
		email, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return "", "", fmt.Errorf("decode tenant of %q: %w", key, err)
		}
		return kind, string(email), nil
	}
	return "", "", fmt.Errorf("key %q has unknown data kind", key)
}

// TenantStore reads and writes a tenant's customers, report and onboarding
// flag. Each kind is one blob under its own key and every write replaces it.
type TenantStore struct {
	tier storage.Tier
	seed func() []models.Customer
	log  *zap.Logger
}

// NewTenantStore creates a TenantStore on tier. seed supplies the customers
// returned for a tenant without stored data.
func NewTenantStore(tier storage.Tier, seed func() []models.Customer, log *zap.Logger) *TenantStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &TenantStore{tier: tier, seed: seed, log: log}
}

// LoadCustomers returns the stored customers of tenant, or the seed sequence
// when nothing (or nothing decodable) is stored.
func (s *TenantStore) LoadCustomers(ctx context.Context, tenant string) ([]models.Customer, error) {
	key := TenantKey(KindCustomers, tenant)
	raw, ok, err := s.tier.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load customers: %w", err)
	}
	if !ok {
		return s.seed(), nil
	}
	var customers []models.Customer
	if err := json.Unmarshal([]byte(raw), &customers); err != nil {
		s.dropCorrupt(ctx, key, err)
		return s.seed(), nil
	}
	if customers == nil {
		customers = []models.Customer{}
	}
	return customers, nil
}

// SaveCustomers overwrites the stored customers of tenant.
func (s *TenantStore) SaveCustomers(ctx context.Context, tenant string, customers []models.Customer) error {
	if customers == nil {
		customers = []models.Customer{}
	}
	raw, err := json.Marshal(customers)
	if err != nil {
		return fmt.Errorf("encode customers: %w", err)
	}
	return s.write(ctx, KindCustomers, tenant, string(raw))
}

// SeedCustomers stores customers only when tenant has no stored customers yet.
// It reports whether a write happened.
func (s *TenantStore) SeedCustomers(ctx context.Context, tenant string, customers []models.Customer) (bool, error) {
	_, ok, err := s.tier.Get(ctx, TenantKey(KindCustomers, tenant))
	if err != nil {
		return false, fmt.Errorf("check customers: %w", err)
	}
	if ok {
		return false, nil
	}
	if err := s.SaveCustomers(ctx, tenant, customers); err != nil {
		return false, err
	}
	return true, nil
}

// LoadReport returns the stored report of tenant. ok is false when none exists.
func (s *TenantStore) LoadReport(ctx context.Context, tenant string) (string, bool, error) {
	key := TenantKey(KindReport, tenant)
	raw, ok, err := s.tier.Get(ctx, key)
	if err != nil {
		return "", false, fmt.Errorf("load report: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	var text string
	if err := json.Unmarshal([]byte(raw), &text); err != nil {
		s.dropCorrupt(ctx, key, err)
		return "", false, nil
	}
	return text, text != "", nil
}

// SaveReport overwrites the report of tenant. An empty text removes it.
func (s *TenantStore) SaveReport(ctx context.Context, tenant, text string) error {
	if text == "" {
		if err := s.tier.Delete(ctx, TenantKey(KindReport, tenant)); err != nil {
			metrics.PersistWrites.WithLabelValues(string(KindReport), "error").Inc()
			return fmt.Errorf("delete report: %w", err)
		}
		metrics.PersistWrites.WithLabelValues(string(KindReport), "ok").Inc()
		return nil
	}
	raw, err := json.Marshal(text)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return s.write(ctx, KindReport, tenant, string(raw))
}

// HasSeenOnboarding reports whether tenant dismissed the welcome screen.
func (s *TenantStore) HasSeenOnboarding(ctx context.Context, tenant string) (bool, error) {
	raw, ok, err := s.tier.Get(ctx, TenantKey(KindOnboarding, tenant))
	if err != nil {
		return false, fmt.Errorf("load onboarding flag: %w", err)
	}
	return ok && raw == "true", nil
}

// MarkOnboardingSeen sets the one-shot onboarding flag of tenant.
func (s *TenantStore) MarkOnboardingSeen(ctx context.Context, tenant string) error {
	return s.write(ctx, KindOnboarding, tenant, "true")
}

func (s *TenantStore) write(ctx context.Context, kind DataKind, tenant, value string) error {
	err := s.tier.Set(ctx, TenantKey(kind, tenant), value)
	metrics.PersistWrites.WithLabelValues(string(kind), metrics.Outcome(err)).Inc()
	if err != nil {
		return fmt.Errorf("save %s: %w", kind, err)
	}
	return nil
}

func (s *TenantStore) dropCorrupt(ctx context.Context, key string, cause error) {
	s.log.Warn("discarding undecodable stored entry", zap.String("key", key), zap.Error(cause))
	if err := s.tier.Delete(ctx, key); err != nil {
		s.log.Error("failed to delete corrupt entry", zap.String("key", key), zap.Error(err))
	}
}
