package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/atinyakov/crmkeeper/internal/models"
	"github.com/atinyakov/crmkeeper/internal/storage"
)

// RegisteredUsersKey holds the registered-identity set, keyed by email.
const RegisteredUsersKey = KeyPrefix + "_registered_users"

// IdentityRepository stores registered identities as one JSON map in a
// durable tier.
type IdentityRepository struct {
	tier storage.Tier
	log  *zap.Logger
	// mu serialises read-modify-write cycles of the shared map.
	mu sync.Mutex
}

// NewIdentityRepository creates an IdentityRepository on tier.
func NewIdentityRepository(tier storage.Tier, log *zap.Logger) *IdentityRepository {
	if log == nil {
		log = zap.NewNop()
	}
	return &IdentityRepository{tier: tier, log: log}
}

// UserExists reports whether an identity is registered for email.
func (r *IdentityRepository) UserExists(ctx context.Context, email string) (bool, error) {
	id, err := r.GetUser(ctx, email)
	return id != nil, err
}

// GetUser returns the identity registered for email, or nil when none is.
func (r *IdentityRepository) GetUser(ctx context.Context, email string) (*models.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	users, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	id, ok := users[email]
	if !ok {
		return nil, nil
	}
	return &id, nil
}

// RegisterUser inserts identity. It fails when the email is already registered.
func (r *IdentityRepository) RegisterUser(ctx context.Context, identity models.Identity) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	users, err := r.load(ctx)
	if err != nil {
		return false, err
	}
	if _, taken := users[identity.Email]; taken {
		return false, nil
	}
	users[identity.Email] = identity
	return true, r.save(ctx, users)
}

// SaveUser inserts or replaces identity.
func (r *IdentityRepository) SaveUser(ctx context.Context, identity models.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	users, err := r.load(ctx)
	if err != nil {
		return err
	}
	users[identity.Email] = identity
	return r.save(ctx, users)
}

func (r *IdentityRepository) load(ctx context.Context) (map[string]models.Identity, error) {
	raw, ok, err := r.tier.Get(ctx, RegisteredUsersKey)
	if err != nil {
		return nil, fmt.Errorf("load registered users: %w", err)
	}
	users := make(map[string]models.Identity)
	if !ok {
		return users, nil
	}
	if err := json.Unmarshal([]byte(raw), &users); err != nil {
		r.log.Warn("discarding undecodable registered users", zap.Error(err))
		if err := r.tier.Delete(ctx, RegisteredUsersKey); err != nil {
			return nil, fmt.Errorf("clear registered users: %w", err)
		}
		return make(map[string]models.Identity), nil
	}
	if users == nil {
		users = make(map[string]models.Identity)
	}
	return users, nil
}

func (r *IdentityRepository) save(ctx context.Context, users map[string]models.Identity) error {
	raw, err := json.Marshal(users)
	if err != nil {
		return fmt.Errorf("encode registered users: %w", err)
	}
	if err := r.tier.Set(ctx, RegisteredUsersKey, string(raw)); err != nil {
		return fmt.Errorf("save registered users: %w", err)
	}
	return nil
}
