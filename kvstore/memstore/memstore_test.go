package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreSetGetAllDel(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.SetFields(ctx, "a", map[string]string{"x": "1", "y": "2"}))
	all, err := s.GetAll(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"x": "1", "y": "2"}, all)

	v, ok, err := s.GetField(ctx, "a", "x")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	require.NoError(t, s.DelField(ctx, "a", "x"))
	_, ok, err = s.GetField(ctx, "a", "x")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Del(ctx, "a"))
	exists, err := s.Exists(ctx, "a")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStoreIncrIsAtomicPerCall(t *testing.T) {
	ctx := context.Background()
	s := New()

	var last int64
	for i := 0; i < 10; i++ {
		n, err := s.Incr(ctx, "counter", "dl", 1)
		require.NoError(t, err)
		require.Equal(t, last+1, n)
		last = n
	}
}

func TestStoreExpireAndTTL(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.SetFields(ctx, "a", map[string]string{"x": "1"}))

	_, ok, err := s.TTL(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok) // present but no TTL set yet: -1

	require.NoError(t, s.Expire(ctx, "a", 10*time.Millisecond))
	ttl, ok, err := s.TTL(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, ttl > 0 && ttl <= 10*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	exists, err := s.Exists(ctx, "a")
	require.NoError(t, err)
	assert.False(t, exists, "record should have expired")
}
