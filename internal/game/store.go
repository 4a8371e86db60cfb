package game

import (
	"context"
	"time"
)

// Store is the persistence surface the engine needs. Implementations return
// ErrRecordNotFound for missing single rows and ErrDuplicateID when an insert
// hits an existing primary key.
type Store interface {
	StatsStore
	ActivityStore
	ScheduleStore
	ShopStore
}

type StatsStore interface {
	// EnsureStats returns the user's stats, inserting defaults first if the
	// row does not exist. Must be safe under concurrent first use.
	EnsureStats(ctx context.Context, userID string, defaults Stats) (Stats, error)
	UpdateStats(ctx context.Context, userID string, values map[Stat]int64) error
	InsertStatHistory(ctx context.Context, entries []StatHistoryEntry) error
	ListStatHistory(ctx context.Context, userID string, stat Stat, limit int) ([]StatHistoryEntry, error)
}

type ActivityStore interface {
	ListActivities(ctx context.Context, userID string) ([]ActivityRecord, error)
	ActivityExists(ctx context.Context, id string) (bool, error)
	// FindVisibleActivityIDs returns the subset of ids that are global or
	// owned by userID.
	FindVisibleActivityIDs(ctx context.Context, userID string, ids []string) ([]string, error)
	InsertActivity(ctx context.Context, a Activity) error
}

type ScheduleStore interface {
	GetSchedule(ctx context.Context, userID, date string) (ScheduleRecord, error)
	ListSchedules(ctx context.Context, userID, fromDate, toDate string) ([]ScheduleRecord, error)
	UpsertSchedule(ctx context.Context, userID, date string, blocks []byte, updatedAt time.Time) error
}

type ShopStore interface {
	ListShopItems(ctx context.Context, category ItemCategory) ([]ShopItem, error)
	GetShopItem(ctx context.Context, id string) (ShopItem, error)
	GetShopItems(ctx context.Context, ids []string) (map[string]ShopItem, error)

	GetInventoryEntry(ctx context.Context, userID, itemID string) (InventoryEntry, error)
	ListInventory(ctx context.Context, userID string, offset, limit int) ([]InventoryEntry, error)
	// AddInventory atomically increments quantity and, when usesDelta is
	// non-nil, uses_remaining, creating the row if needed.
	AddInventory(ctx context.Context, userID, itemID string, quantity int64, usesDelta *int64, at time.Time) (InventoryEntry, error)
	SetInventory(ctx context.Context, userID, itemID string, quantity int64, usesRemaining *int64) error
	DeleteInventory(ctx context.Context, userID, itemID string) error

	// InsertPurchase returns false without error when rec.PaymentRef is
	// already recorded.
	InsertPurchase(ctx context.Context, rec PurchaseRecord) (bool, error)
	DeletePurchaseByRef(ctx context.Context, paymentRef string) error
	ListPurchases(ctx context.Context, userID string, limit int) ([]PurchaseRecord, error)
	InsertItemUsage(ctx context.Context, rec ItemUsageRecord) error

	SeedCatalog(ctx context.Context, activities []Activity, items []ShopItem) error
}
