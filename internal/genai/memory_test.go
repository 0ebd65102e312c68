package genai

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pilothub/api/internal/kv"
)

func TestMemoryKey(t *testing.T) {
	assert.Equal(t, DefaultMemoryKey, MemoryKey(Identity{}))
	assert.Equal(t, DefaultMemoryKey, MemoryKey(Identity{Provider: "github"}))
	assert.Equal(t, "gt_user_github_42_memory", MemoryKey(Identity{Provider: "github", ID: "42"}))
}

func TestMemoryRecordAndReload(t *testing.T) {
	store := kv.NewMemoryStore()
	ctx := context.Background()
	id := Identity{Provider: "google", ID: "u1"}

	mem, err := LoadMemory(ctx, store, id)
	require.NoError(t, err)
	assert.True(t, mem.Enabled())
	assert.Empty(t, mem.History())

	require.NoError(t, mem.Record(ctx, "make a todo app", "Here it is."))
	require.NoError(t, mem.Record(ctx, "add dark mode", ""))

	reloaded, err := LoadMemory(ctx, store, id)
	require.NoError(t, err)
	assert.Equal(t, []Turn{
		{Role: RoleUser, Text: "make a todo app"},
		{Role: RoleModel, Text: "Here it is."},
		{Role: RoleUser, Text: "add dark mode"},
	}, reloaded.History())

	last, ok := reloaded.LastPrompt()
	require.True(t, ok)
	assert.Equal(t, "add dark mode", last)

	// other identities are isolated
	other, err := LoadMemory(ctx, store, Identity{Provider: "google", ID: "u2"})
	require.NoError(t, err)
	assert.Empty(t, other.History())
}

func TestMemoryToggleOff(t *testing.T) {
	store := kv.NewMemoryStore()
	ctx := context.Background()

	mem, err := LoadMemory(ctx, store, Identity{})
	require.NoError(t, err)
	require.NoError(t, mem.Record(ctx, "p", "r"))

	require.NoError(t, mem.SetEnabled(ctx, false))
	assert.Nil(t, mem.History())
	require.NoError(t, mem.Record(ctx, "ignored", "ignored"))

	toggle, err := store.Get(ctx, ToggleKey)
	require.NoError(t, err)
	assert.Equal(t, "off", toggle)
	_, err = store.Get(ctx, DefaultMemoryKey)
	assert.ErrorIs(t, err, kv.ErrNotFound)

	reloaded, err := LoadMemory(ctx, store, Identity{})
	require.NoError(t, err)
	assert.False(t, reloaded.Enabled())

	require.NoError(t, reloaded.SetEnabled(ctx, true))
	assert.True(t, reloaded.Enabled())
}

func TestMemoryBoundedTurns(t *testing.T) {
	store := kv.NewMemoryStore()
	ctx := context.Background()
	mem, err := LoadMemory(ctx, store, Identity{})
	require.NoError(t, err)

	for i := 0; i < MaxTurns; i++ {
		require.NoError(t, mem.Record(ctx, fmt.Sprintf("p%d", i), fmt.Sprintf("r%d", i)))
	}
	history := mem.History()
	require.Len(t, history, MaxTurns)
	assert.Equal(t, fmt.Sprintf("r%d", MaxTurns-1), history[len(history)-1].Text)
}

func TestMemoryCorruptLogStartsEmpty(t *testing.T) {
	store := kv.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, DefaultMemoryKey, "not json"))

	mem, err := LoadMemory(ctx, store, Identity{})
	require.NoError(t, err)
	assert.Empty(t, mem.History())

	require.NoError(t, mem.Clear(ctx))
	_, err = store.Get(ctx, DefaultMemoryKey)
	assert.ErrorIs(t, err, kv.ErrNotFound)
}
