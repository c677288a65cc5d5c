package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LegalDoc-Intelligence/pkg/errors"
	"github.com/turtacn/LegalDoc-Intelligence/pkg/types/entity"
)

func newMiniredisClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewClient(&RedisConfig{Mode: "standalone", Addr: mr.Addr()}, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestNewClient_ConnectionFailed(t *testing.T) {
	client, err := NewClient(&RedisConfig{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond}, nil)
	require.Error(t, err)
	assert.Nil(t, client)
	assert.True(t, errors.IsCode(err, errors.ErrCodeCacheError))
}

func TestClient_Operations(t *testing.T) {
	client, _ := newMiniredisClient(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "foo", "bar", 0).Err())
	val, err := client.Get(ctx, "foo").Result()
	require.NoError(t, err)
	assert.Equal(t, "bar", val)

	n, err := client.Del(ctx, "foo").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestClient_Close(t *testing.T) {
	client, _ := newMiniredisClient(t)
	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	assert.Equal(t, ErrClientClosed, client.Get(context.Background(), "foo").Err())
	assert.Equal(t, ErrClientClosed, client.Set(context.Background(), "foo", "x", 0).Err())
	assert.Equal(t, ErrClientClosed, client.Ping(context.Background()))
}

func TestResultCache_Miniredis_TTLAndRoundTrip(t *testing.T) {
	client, mr := newMiniredisClient(t)
	cache := NewResultCache(client, nil, WithDefaultTTL(time.Minute), WithoutJitter())
	ctx := context.Background()

	key := DocumentKey(&entity.Document{Text: "Huế"}, "v1")
	res := sampleResult()
	require.NoError(t, cache.Set(ctx, key, res))
	assert.Equal(t, time.Minute, mr.TTL("legaldoc:"+key))

	got, err := cache.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, res, got)

	mr.FastForward(2 * time.Minute)
	_, err = cache.Get(ctx, key)
	assert.Equal(t, ErrCacheMiss, err)
}
