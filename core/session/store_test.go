package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	sessions := New(NewMemoryStore())

	_, found, err := sessions.State(ctx, 42)
	require.NoError(t, err)
	assert.False(t, found, "unseen user has no state")

	require.NoError(t, sessions.SetState(ctx, 42, "MAIN_MENU"))
	state, found, err := sessions.State(ctx, 42)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "MAIN_MENU", state)

	require.NoError(t, sessions.SetState(ctx, 42, "COURSE"))
	state, _, err = sessions.State(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "COURSE", state)
}

func TestProfileKeysAreScopedPerUser(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	sessions := New(store)

	require.NoError(t, sessions.SetProfile(ctx, 42, "Иван", "Петров"))
	require.NoError(t, sessions.SetState(ctx, 42, "START"))

	first, found, err := sessions.FirstName(ctx, 42)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Иван", first)

	last, found, err := sessions.LastName(ctx, 42)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Петров", last)

	// a different user sees none of it
	_, found, err = sessions.FirstName(ctx, 43)
	require.NoError(t, err)
	assert.False(t, found)

	// state and the two profile keys
	assert.Equal(t, 3, store.Len())
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	value := []byte("START")
	require.NoError(t, store.Set(ctx, "42", value))
	value[0] = 'X'

	got, found, err := store.Get(ctx, "42")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("START"), got)
}
