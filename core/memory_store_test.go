package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SetGet(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k1", "v1", 0))
	v, err := m.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "v1", v)
}

func TestMemoryStore_ExpiresAfterTTL(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k1", "v1", 10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)

	v, err := m.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "", v)

	exists, err := m.Exists(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemoryStore_EvictsLeastRecentlyUsedAtCapacity(t *testing.T) {
	m := NewBoundedMemoryStore(2)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "a", "1", 0))
	require.NoError(t, m.Set(ctx, "b", "2", 0))
	_, _ = m.Get(ctx, "a") // promote a to most-recently-used
	require.NoError(t, m.Set(ctx, "c", "3", 0))

	assert.Equal(t, 2, m.Len())
	exists, _ := m.Exists(ctx, "b")
	assert.False(t, exists, "b should have been evicted as least recently used")
	exists, _ = m.Exists(ctx, "a")
	assert.True(t, exists)
	exists, _ = m.Exists(ctx, "c")
	assert.True(t, exists)
}

func TestMemoryStore_Delete(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "k", "v", 0))
	require.NoError(t, m.Delete(ctx, "k"))
	exists, _ := m.Exists(ctx, "k")
	assert.False(t, exists)
}
