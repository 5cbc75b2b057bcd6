package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgcache "BazaarPull/pkg/cache"
)

type row struct {
	ID    string  `json:"id"`
	Value float64 `json:"value"`
}

func TestGetOrComputeCachesResult(t *testing.T) {
	mem := pkgcache.NewMemoryCache()
	defer mem.Close()
	c := NewReadThrough(mem, "mw", time.Minute, nil)
	ctx := context.Background()

	calls := 0
	compute := func(context.Context) (interface{}, error) {
		calls++
		return []row{{ID: "A", Value: 1.5}}, nil
	}

	var first []row
	hit, err := c.GetOrCompute(ctx, c.Key("A", 6), 0, &first, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []row{{ID: "A", Value: 1.5}}, first)

	var second []row
	hit, err = c.GetOrCompute(ctx, c.Key("A", 6), 0, &second, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
}

func TestInvalidateAllStaysInNamespace(t *testing.T) {
	mem := pkgcache.NewMemoryCache()
	defer mem.Close()
	ctx := context.Background()
	mw := NewReadThrough(mem, "mw", time.Minute, nil)
	latest := NewReadThrough(mem, "latest", time.Minute, nil)

	one := func(context.Context) (interface{}, error) { return 1, nil }
	var v int
	_, err := mw.GetOrCompute(ctx, mw.Key("A", 1), 0, &v, one)
	require.NoError(t, err)
	_, err = latest.GetOrCompute(ctx, latest.Key("q"), 0, &v, one)
	require.NoError(t, err)

	require.NoError(t, mw.InvalidateAll(ctx))

	ok, err := mem.Exists(ctx, "mw:A:1")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = mem.Exists(ctx, "latest:q")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGetOrComputePropagatesComputeError(t *testing.T) {
	mem := pkgcache.NewMemoryCache()
	defer mem.Close()
	c := NewReadThrough(mem, "mw", time.Minute, nil)

	boom := errors.New("store down")
	var v int
	_, err := c.GetOrCompute(context.Background(), "mw:x", 0, &v, func(context.Context) (interface{}, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)

	ok, _ := mem.Exists(context.Background(), "mw:x")
	assert.False(t, ok)
}

func TestGetOrComputeRejectsMismatchedDest(t *testing.T) {
	mem := pkgcache.NewMemoryCache()
	defer mem.Close()
	c := NewReadThrough(mem, "mw", time.Minute, nil)

	var s string
	_, err := c.GetOrCompute(context.Background(), "mw:y", 0, &s, func(context.Context) (interface{}, error) { return 7, nil })
	assert.Error(t, err)

	_, err = c.GetOrCompute(context.Background(), "mw:y", 0, s, func(context.Context) (interface{}, error) { return "a", nil })
	assert.Error(t, err)
}
