package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// unreachableClient points at a port nothing listens on.
func unreachableClient(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisStoreReportsErrors(t *testing.T) {
	s := NewRedisStore(unreachableClient(t), RedisConfig{Prefix: "sb"})
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "k")
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Error(t, s.Set(ctx, "k", []byte("v"), time.Minute))
	assert.Error(t, s.Delete(ctx, "k"))
	assert.Error(t, s.Ping(ctx))
}

func TestRedisStoreKeyPrefix(t *testing.T) {
	assert.Equal(t, "sb:shaHash:x", NewRedisStore(nil, RedisConfig{Prefix: "sb"}).key("shaHash:x"))
	assert.Equal(t, "shaHash:x", NewRedisStore(nil, RedisConfig{}).key("shaHash:x"))
}

func TestRedisStoreRejectsCancelledContext(t *testing.T) {
	s := NewRedisStore(unreachableClient(t), RedisConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAdapterOverUnreachableRedis(t *testing.T) {
	store := NewInstrumentedStore(NewRedisStore(unreachableClient(t), RedisConfig{Prefix: "sb"}))
	a := NewAdapter(store, AdapterConfig{Name: "test"}, zaptest.NewLogger(t))
	ctx := context.Background()

	_, ok := a.Get(ctx, HashKey("abc"))
	assert.False(t, ok)
	assert.False(t, a.Set(ctx, HashKey("abc"), []byte("v"), 0))
	a.SetAsync(ctx, HashKey("abc"), []byte("v"), 0)
	a.Wait()
	assert.Error(t, a.Ping(ctx))
}

func TestNewStore(t *testing.T) {
	s, err := NewStore(Config{Backend: BackendMemory}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)
	s.(*MemoryStore).Close()

	_, err = NewStore(Config{Backend: BackendRedis}, nil)
	assert.ErrorIs(t, err, ErrNilStore)

	s, err = NewStore(Config{Backend: BackendRedis, Prefix: "sb"}, unreachableClient(t))
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, s)

	_, err = NewStore(Config{Backend: "memcached"}, nil)
	assert.Error(t, err)
}
