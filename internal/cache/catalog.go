// Package cache keeps read-mostly shop catalog lookups in Redis in front of
// a game.Store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Zubariev/quarantine/internal/game"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultTTL = 5 * time.Minute
	keyPrefix  = "quarantine:catalog:"
)

// CatalogStore decorates a game.Store. Only the shop catalog reads are
// cached; everything else goes straight to the wrapped store. Redis failures
// are logged and fall through to the store.
type CatalogStore struct {
	game.Store
	client *redis.Client
	ttl    time.Duration
	log    *slog.Logger
}

var _ game.Store = (*CatalogStore)(nil)

func NewCatalogStore(store game.Store, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CatalogStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogStore{Store: store, client: client, ttl: ttl, log: logger}
}

func listKey(category game.ItemCategory) string {
	if category == "" {
		return keyPrefix + "items:all"
	}
	return keyPrefix + "items:" + string(category)
}

func itemKey(id string) string {
	return keyPrefix + "item:" + id
}

func (c *CatalogStore) ListShopItems(ctx context.Context, category game.ItemCategory) ([]game.ShopItem, error) {
	key := listKey(category)
	var items []game.ShopItem
	if c.get(ctx, key, &items) {
		return items, nil
	}
	items, err := c.Store.ListShopItems(ctx, category)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, items)
	return items, nil
}

func (c *CatalogStore) GetShopItem(ctx context.Context, id string) (game.ShopItem, error) {
	key := itemKey(id)
	var item game.ShopItem
	if c.get(ctx, key, &item) {
		return item, nil
	}
	item, err := c.Store.GetShopItem(ctx, id)
	if err != nil {
		return game.ShopItem{}, err
	}
	c.set(ctx, key, item)
	return item, nil
}

func (c *CatalogStore) GetShopItems(ctx context.Context, ids []string) (map[string]game.ShopItem, error) {
	out := make(map[string]game.ShopItem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = itemKey(id)
	}

	var missing []string
	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		c.log.Warn("catalog cache mget failed", "err", err)
		missing = ids
	} else {
		for i, v := range vals {
			raw, ok := v.(string)
			if !ok {
				missing = append(missing, ids[i])
				continue
			}
			var item game.ShopItem
			if err := json.Unmarshal([]byte(raw), &item); err != nil {
				missing = append(missing, ids[i])
				continue
			}
			out[ids[i]] = item
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	found, err := c.Store.GetShopItems(ctx, missing)
	if err != nil {
		return nil, err
	}
	for id, item := range found {
		out[id] = item
		c.set(ctx, itemKey(id), item)
	}
	return out, nil
}

// SeedCatalog writes through and then drops every cached catalog entry. A
// cache that cannot be cleared is logged; the store write still stands.
func (c *CatalogStore) SeedCatalog(ctx context.Context, activities []game.Activity, items []game.ShopItem) error {
	if err := c.Store.SeedCatalog(ctx, activities, items); err != nil {
		return err
	}
	if err := c.Invalidate(ctx); err != nil {
		c.log.Warn("catalog cache invalidation failed", "err", err)
	}
	return nil
}

func (c *CatalogStore) Invalidate(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan catalog cache: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("invalidate catalog cache: %w", err)
	}
	return nil
}

func (c *CatalogStore) get(ctx context.Context, key string, dst any) bool {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		c.log.Warn("catalog cache read failed", "key", key, "err", err)
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		c.log.Warn("catalog cache entry corrupt", "key", key, "err", err)
		return false
	}
	return true
}

func (c *CatalogStore) set(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.log.Warn("catalog cache write failed", "key", key, "err", err)
	}
}
