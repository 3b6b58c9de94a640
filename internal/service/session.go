package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/crmkeeper/internal/models"
	"github.com/atinyakov/crmkeeper/internal/storage"
)

// SessionKey is the fixed key of the active session snapshot in both tiers.
const SessionKey = "crm_active_session"

// SessionManager establishes, persists and restores the single active
// session of the process. A remembered session is written to the durable
// tier, any other session to the ephemeral tier.
type SessionManager struct {
	durable   storage.Tier
	ephemeral storage.Tier
	log       *zap.Logger
	now       func() time.Time

	mu      sync.RWMutex
	current *models.Session
}

// NewSessionManager constructs a SessionManager over the two tiers.
func NewSessionManager(durable, ephemeral storage.Tier, log *zap.Logger) *SessionManager {
	if log == nil {
		log = zap.NewNop()
	}
	return &SessionManager{durable: durable, ephemeral: ephemeral, log: log, now: time.Now}
}

// Login makes identity the active session and persists the snapshot into the
// tier selected by remember. Any snapshot in the other tier is removed so a
// later Restore cannot pick up a stale session.
func (m *SessionManager) Login(ctx context.Context, identity models.Identity, remember bool) (models.Session, error) {
	identity = identity.Public()
	identity.Remember = remember
	session := models.Session{Identity: identity, Remember: remember, StartedAt: m.now().UTC()}
	if !session.Valid() {
		return models.Session{}, &ValidationError{Errors: map[string]string{"identity": "id, name and email are required"}}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	target, other := m.tiers(remember)
	if err := m.write(ctx, target, session); err != nil {
		return models.Session{}, err
	}
	if err := other.Delete(ctx, SessionKey); err != nil {
		m.log.Warn("failed to clear session from inactive tier", zap.Error(err))
	}
	m.current = &session
	return session, nil
}

// Restore looks for a persisted session, durable tier first. Snapshots that
// fail to decode or validate are deleted and skipped. Tier errors are logged
// and treated as no session.
func (m *SessionManager) Restore(ctx context.Context) (models.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, tier := range []storage.Tier{m.durable, m.ephemeral} {
		raw, ok, err := tier.Get(ctx, SessionKey)
		if err != nil {
			m.log.Warn("failed to read persisted session", zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		var session models.Session
		if err := json.Unmarshal([]byte(raw), &session); err != nil || !session.Valid() {
			m.log.Warn("discarding corrupt session snapshot", zap.Error(err))
			if err := tier.Delete(ctx, SessionKey); err != nil {
				m.log.Error("failed to delete corrupt session", zap.Error(err))
			}
			continue
		}
		m.current = &session
		return session, true
	}
	m.current = nil
	return models.Session{}, false
}

// Logout clears the snapshot from both tiers and forgets the active session.
// It succeeds when no session exists.
func (m *SessionManager) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = nil

	var firstErr error
	for _, tier := range []storage.Tier{m.durable, m.ephemeral} {
		if err := tier.Delete(ctx, SessionKey); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("clear session: %w", err)
		}
	}
	return firstErr
}

// UpdateIdentity merges patch into the active session and re-persists it
// into the tier the session lives in.
func (m *SessionManager) UpdateIdentity(ctx context.Context, patch models.IdentityPatch) (models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return models.Session{}, ErrNoSession
	}
	updated := *m.current
	updated.Identity = updated.Identity.Public()
	updated.Identity.Apply(patch)
	if !updated.Valid() {
		return models.Session{}, &ValidationError{Errors: map[string]string{"name": "is required"}}
	}

	target, _ := m.tiers(updated.Remember)
	if err := m.write(ctx, target, updated); err != nil {
		return models.Session{}, err
	}
	m.current = &updated
	return updated, nil
}

// Current returns the active session.
func (m *SessionManager) Current() (models.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return models.Session{}, false
	}
	return *m.current, true
}

func (m *SessionManager) tiers(remember bool) (target, other storage.Tier) {
	if remember {
		return m.durable, m.ephemeral
	}
	return m.ephemeral, m.durable
}

func (m *SessionManager) write(ctx context.Context, tier storage.Tier, session models.Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := tier.Set(ctx, SessionKey, string(raw)); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}
