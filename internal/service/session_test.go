package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atinyakov/crmkeeper/internal/models"
	"github.com/atinyakov/crmkeeper/internal/storage"
)

func testIdentity() models.Identity {
	return models.Identity{ID: "u_1", Name: "Ana", Email: "ana@example.com", PasswordHash: "hash"}
}

func TestSessionManager_LoginRememberedSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	durable := storage.NewMemory()

	m := NewSessionManager(durable, storage.NewMemory(), nil)
	_, err := m.Login(ctx, testIdentity(), true)
	require.NoError(t, err)

	restarted := NewSessionManager(durable, storage.NewMemory(), nil)
	got, ok := restarted.Restore(ctx)
	require.True(t, ok)
	assert.Equal(t, "ana@example.com", got.Tenant())
	assert.True(t, got.Remember)
	assert.Empty(t, got.Identity.PasswordHash, "snapshot must not carry the credential")
}

func TestSessionManager_LoginEphemeralLostOnRestart(t *testing.T) {
	ctx := context.Background()
	durable := storage.NewMemory()
	ephemeral := storage.NewMemory()

	m := NewSessionManager(durable, ephemeral, nil)
	_, err := m.Login(ctx, testIdentity(), false)
	require.NoError(t, err)

	_, ok, _ := durable.Get(ctx, SessionKey)
	assert.False(t, ok, "ephemeral login must not touch the durable tier")

	sameProcess := NewSessionManager(durable, ephemeral, nil)
	_, ok = sameProcess.Restore(ctx)
	assert.True(t, ok, "restore within the same process")

	restarted := NewSessionManager(durable, storage.NewMemory(), nil)
	_, ok = restarted.Restore(ctx)
	assert.False(t, ok, "restore after restart")
}

func TestSessionManager_LoginClearsOtherTier(t *testing.T) {
	ctx := context.Background()
	durable := storage.NewMemory()
	ephemeral := storage.NewMemory()
	m := NewSessionManager(durable, ephemeral, nil)

	_, err := m.Login(ctx, testIdentity(), true)
	require.NoError(t, err)
	_, err = m.Login(ctx, testIdentity(), false)
	require.NoError(t, err)

	_, ok, _ := durable.Get(ctx, SessionKey)
	assert.False(t, ok)
	_, ok, _ = ephemeral.Get(ctx, SessionKey)
	assert.True(t, ok)
}

func TestSessionManager_LoginRejectsIncompleteIdentity(t *testing.T) {
	m := NewSessionManager(storage.NewMemory(), storage.NewMemory(), nil)
	_, err := m.Login(context.Background(), models.Identity{Email: "x@example.com"}, true)
	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
	_, ok := m.Current()
	assert.False(t, ok)
}

func TestSessionManager_LogoutIsIdempotent(t *testing.T) {
	ctx := context.Background()
	durable := storage.NewMemory()
	ephemeral := storage.NewMemory()
	m := NewSessionManager(durable, ephemeral, nil)
	_, err := m.Login(ctx, testIdentity(), true)
	require.NoError(t, err)

	require.NoError(t, m.Logout(ctx))
	require.NoError(t, m.Logout(ctx))

	_, ok := m.Current()
	assert.False(t, ok)
	assert.Empty(t, durable.Keys(""))
	assert.Empty(t, ephemeral.Keys(""))
	_, ok = NewSessionManager(durable, ephemeral, nil).Restore(ctx)
	assert.False(t, ok)
}

func TestSessionManager_RestoreDiscardsCorrupt(t *testing.T) {
	ctx := context.Background()
	durable := storage.NewMemory()
	ephemeral := storage.NewMemory()
	require.NoError(t, durable.Set(ctx, SessionKey, "{not json"))
	require.NoError(t, ephemeral.Set(ctx, SessionKey, `{"identity":{"id":"u_2","name":"Bia","email":"bia@example.com"}}`))

	m := NewSessionManager(durable, ephemeral, nil)
	got, ok := m.Restore(ctx)
	require.True(t, ok)
	assert.Equal(t, "bia@example.com", got.Tenant())

	_, ok, _ = durable.Get(ctx, SessionKey)
	assert.False(t, ok, "corrupt snapshot must be deleted")
}

func TestSessionManager_RestoreDiscardsInvalid(t *testing.T) {
	ctx := context.Background()
	durable := storage.NewMemory()
	require.NoError(t, durable.Set(ctx, SessionKey, `{"identity":{"id":"u_2","email":"bia@example.com"}}`))

	m := NewSessionManager(durable, storage.NewMemory(), nil)
	_, ok := m.Restore(ctx)
	assert.False(t, ok)
	_, ok, _ = durable.Get(ctx, SessionKey)
	assert.False(t, ok)
}

func TestSessionManager_RestoreSwallowsTierErrors(t *testing.T) {
	m := NewSessionManager(failingTier{}, failingTier{}, nil)
	_, ok := m.Restore(context.Background())
	assert.False(t, ok)
}

func TestSessionManager_UpdateIdentity(t *testing.T) {
	ctx := context.Background()
	durable := storage.NewMemory()
	m := NewSessionManager(durable, storage.NewMemory(), nil)

	_, err := m.UpdateIdentity(ctx, models.IdentityPatch{})
	assert.ErrorIs(t, err, ErrNoSession)

	_, err = m.Login(ctx, testIdentity(), true)
	require.NoError(t, err)
	name := "Ana Maria"
	updated, err := m.UpdateIdentity(ctx, models.IdentityPatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, updated.Identity.Name)

	restored, ok := NewSessionManager(durable, storage.NewMemory(), nil).Restore(ctx)
	require.True(t, ok)
	assert.Equal(t, name, restored.Identity.Name)
}

type failingTier struct{}

func (failingTier) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("tier down")
}

func (failingTier) Set(context.Context, string, string) error { return errors.New("tier down") }

func (failingTier) Delete(context.Context, string) error { return errors.New("tier down") }
