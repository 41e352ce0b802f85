package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := NewClient(Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStore(client), mr
}

func TestStore_SetGet(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", "v", time.Minute))

	val, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", val)
}

func TestStore_GetMissing(t *testing.T) {
	s, _ := newTestStore(t)

	val, ok, err := s.Get(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, val)
}

func TestStore_Expiry(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", "v", 10*time.Second))
	require.Equal(t, 10*time.Second, mr.TTL("k"))

	mr.FastForward(11 * time.Second)

	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStore_DelIsIdempotent(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", "v", 0))
	require.NoError(t, s.Del(ctx, "k"))
	require.False(t, mr.Exists("k"))
	require.NoError(t, s.Del(ctx, "k"))
}

func TestStore_IsAlive(t *testing.T) {
	s, mr := newTestStore(t)

	require.True(t, s.IsAlive(context.Background()))

	mr.Close()
	require.False(t, s.IsAlive(context.Background()))
}

func TestStore_ErrorsWhenDown(t *testing.T) {
	s, mr := newTestStore(t)
	mr.Close()

	_, _, err := s.Get(context.Background(), "k")
	require.Error(t, err)
}
