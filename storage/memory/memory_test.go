package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowreach/accountsync/pkg/accountsync"
)

func TestStore_UpsertAndGet(t *testing.T) {
	store := New()
	ctx := context.Background()

	profile := &accountsync.Profile{
		ID:              "user-1",
		Role:            accountsync.RolePro,
		Active:          true,
		FullName:        "Ada Lovelace",
		Preferences:     map[string]interface{}{accountsync.PrefExternalContactID: "crm-42"},
		StatusUpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.UpsertProfile(ctx, profile))

	fetched, err := store.GetProfile(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, accountsync.RolePro, fetched.Role)
	assert.True(t, fetched.Active)
	assert.Equal(t, "crm-42", fetched.Preferences[accountsync.PrefExternalContactID])
}

func TestStore_GetUnknown(t *testing.T) {
	store := New()

	_, err := store.GetProfile(context.Background(), "missing")
	assert.ErrorIs(t, err, accountsync.ErrProfileNotFound)
}

func TestStore_UpsertReplaces(t *testing.T) {
	store := New()
	ctx := context.Background()

	require.NoError(t, store.UpsertProfile(ctx, &accountsync.Profile{ID: "user-1", Role: accountsync.RoleUser, Active: true}))
	require.NoError(t, store.UpsertProfile(ctx, &accountsync.Profile{ID: "user-1", Role: accountsync.RolePro, Active: false}))

	fetched, err := store.GetProfile(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, accountsync.RolePro, fetched.Role)
	assert.False(t, fetched.Active)
}

func TestStore_InvalidProfile(t *testing.T) {
	store := New()
	ctx := context.Background()

	assert.Error(t, store.UpsertProfile(ctx, nil))
	assert.Error(t, store.UpsertProfile(ctx, &accountsync.Profile{}))
}

func TestStore_CopySemantics(t *testing.T) {
	store := New()
	ctx := context.Background()

	profile := &accountsync.Profile{
		ID:          "user-1",
		Preferences: map[string]interface{}{"k": "v"},
	}
	require.NoError(t, store.UpsertProfile(ctx, profile))

	// Mutations after the write must not leak into the store
	profile.Preferences["k"] = "mutated"

	fetched, err := store.GetProfile(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "v", fetched.Preferences["k"])

	// Mutations of a read result must not leak either
	fetched.Preferences["k"] = "mutated"
	again, err := store.GetProfile(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "v", again.Preferences["k"])
}
