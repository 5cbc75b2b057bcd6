package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryDeleteByPatternMatchesAcrossSlash(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	for _, k := range []string{"mw:SHARD/FRAGMENT:6", "mw:WHEAT:1", "latest:page:1"} {
		require.NoError(t, mc.Set(ctx, k, "v", time.Minute))
	}
	require.NoError(t, mc.DeleteByPattern(ctx, BuildPattern("mw:")))

	ok, err := mc.Exists(ctx, "mw:SHARD/FRAGMENT:6", "mw:WHEAT:1")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = mc.Exists(ctx, "latest:page:1")
	require.NoError(t, err)
	assert.True(t, ok)

	// other globs keep path.Match semantics
	require.NoError(t, mc.Set(ctx, "mw:A:1", "v", time.Minute))
	require.NoError(t, mc.Set(ctx, "mw:A:6", "v", time.Minute))
	require.NoError(t, mc.DeleteByPattern(ctx, "mw:A:?"))
	ok, err = mc.Exists(ctx, "mw:A:1", "mw:A:6")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryUnlockRequiresOwnerToken(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	first, ok, err := mc.TryLock(ctx, "scheduler:lock:compaction", 20*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)
	_, ok, err = mc.TryLock(ctx, "scheduler:lock:compaction", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "held")

	time.Sleep(40 * time.Millisecond)
	second, ok, err := mc.TryLock(ctx, "scheduler:lock:compaction", time.Minute)
	require.NoError(t, err)
	require.True(t, ok, "expired lock is free again")
	assert.NotEqual(t, first, second)

	// the expired holder cannot release the new one
	require.NoError(t, mc.Unlock(ctx, "scheduler:lock:compaction", first))
	_, ok, err = mc.TryLock(ctx, "scheduler:lock:compaction", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mc.Unlock(ctx, "scheduler:lock:compaction", second))
	_, ok, err = mc.TryLock(ctx, "scheduler:lock:compaction", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
