package cache

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Zubariev/quarantine/internal/game"
	"github.com/Zubariev/quarantine/internal/store/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("QUARANTINE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("QUARANTINE_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}
	client.FlushDB(ctx)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func newCachedStore(t *testing.T, client *redis.Client) (*CatalogStore, *sqlite.Store) {
	t.Helper()
	ctx := context.Background()
	st, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.SeedCatalog(ctx, game.DefaultActivities(), game.DefaultShopItems()))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewCatalogStore(st, client, time.Minute, logger), st
}

func TestListShopItemsIsCached(t *testing.T) {
	client := setupTestRedis(t)
	cs, _ := newCachedStore(t, client)
	ctx := context.Background()

	items, err := cs.ListShopItems(ctx, game.CategoryFood)
	require.NoError(t, err)
	require.NotEmpty(t, items)

	ttl, err := client.TTL(ctx, listKey(game.CategoryFood)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	again, err := cs.ListShopItems(ctx, game.CategoryFood)
	require.NoError(t, err)
	assert.Equal(t, items, again)
}

func TestGetShopItemsMixesHitsAndMisses(t *testing.T) {
	client := setupTestRedis(t)
	cs, _ := newCachedStore(t, client)
	ctx := context.Background()

	pizza, err := cs.GetShopItem(ctx, "food-pizza")
	require.NoError(t, err)
	exists, err := client.Exists(ctx, itemKey("food-pizza")).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists)

	got, err := cs.GetShopItems(ctx, []string{"food-pizza", "course-yoga", "missing"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, pizza, got["food-pizza"])
	assert.Equal(t, game.PurchaseRealMoney, got["course-yoga"].PurchaseType)

	_, err = cs.GetShopItem(ctx, "missing")
	assert.ErrorIs(t, err, game.ErrRecordNotFound)
}

func TestSeedCatalogInvalidates(t *testing.T) {
	client := setupTestRedis(t)
	cs, _ := newCachedStore(t, client)
	ctx := context.Background()

	_, err := cs.ListShopItems(ctx, "")
	require.NoError(t, err)
	_, err = cs.GetShopItem(ctx, "food-salad")
	require.NoError(t, err)

	require.NoError(t, cs.SeedCatalog(ctx, nil, nil))
	keys, err := client.Keys(ctx, keyPrefix+"*").Result()
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestSeedAndReadWithRedisDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	cs, _ := newCachedStore(t, client)
	svc := game.NewService(cs, slog.New(slog.NewTextHandler(io.Discard, nil)), game.Options{})
	ctx := context.Background()

	require.NoError(t, svc.SeedDefaults(ctx))

	items, err := svc.ListItems(ctx, "")
	require.NoError(t, err)
	assert.NotEmpty(t, items)
}
