package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exercise(t *testing.T, c Client) {
	t.Helper()
	ctx := context.Background()

	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, c.Set(ctx, "k", "v", 0))
	v, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	require.NoError(t, c.Delete(ctx, "k"))
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, c.Delete(ctx, "k"))

	require.NoError(t, c.Set(ctx, "short", "v", 50*time.Millisecond))
	time.Sleep(1100 * time.Millisecond)
	_, err = c.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory(t *testing.T) {
	exercise(t, NewMemory("test", time.Minute))
}

func TestMemory_PrefixIsolates(t *testing.T) {
	ctx := context.Background()
	m := NewMemory("a", time.Minute)
	require.NoError(t, m.Set(ctx, "k", "v", 0))
	v, ok := m.c.Get("a:k")
	require.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestNew_DefaultsToMemory(t *testing.T) {
	c, err := New(context.Background(), Config{})
	require.NoError(t, err)
	_, ok := c.(*Memory)
	assert.True(t, ok)
}

// Requiere un Redis real: SOCIALAUTH_TEST_REDIS_ADDR=localhost:6379
func TestRedis(t *testing.T) {
	addr := os.Getenv("SOCIALAUTH_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SOCIALAUTH_TEST_REDIS_ADDR not set")
	}
	c, err := NewRedis(context.Background(), Config{Addr: addr, Prefix: "socialauth-test"})
	require.NoError(t, err)
	defer c.Close()
	exercise(t, c)
}
