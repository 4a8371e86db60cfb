package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Zubariev/quarantine/internal/game"
	"github.com/jackc/pgx/v5"
)

const shopItemColumns = `id, name, description, category, price, purchase_type, image_url, stats_effects, usable, limited_use`

func scanShopItem(row pgx.Row) (game.ShopItem, error) {
	var (
		it           game.ShopItem
		category     string
		purchaseType string
		effects      []byte
	)
	if err := row.Scan(&it.ID, &it.Name, &it.Description, &category, &it.Price, &purchaseType, &it.ImageURL, &effects, &it.Usable, &it.LimitedUse); err != nil {
		return game.ShopItem{}, err
	}
	it.Category = game.ItemCategory(category)
	it.PurchaseType = game.PurchaseType(purchaseType)
	it.Effects, _ = game.NormalizeEffects(game.ParseEffectsJSON(effects))
	return it, nil
}

func (s *Store) ListShopItems(ctx context.Context, category game.ItemCategory) ([]game.ShopItem, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+shopItemColumns+`
		FROM quarantine.shop_items
		WHERE $1 = '' OR category = $1
		ORDER BY category, price, id
	`, string(category))
	if err != nil {
		return nil, fmt.Errorf("list shop items: %w", err)
	}
	defer rows.Close()
	var out []game.ShopItem
	for rows.Next() {
		it, err := scanShopItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *Store) GetShopItem(ctx context.Context, id string) (game.ShopItem, error) {
	it, err := scanShopItem(s.db.QueryRow(ctx, `SELECT `+shopItemColumns+` FROM quarantine.shop_items WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return game.ShopItem{}, game.ErrRecordNotFound
	}
	if err != nil {
		return game.ShopItem{}, fmt.Errorf("read shop item: %w", err)
	}
	return it, nil
}

func (s *Store) GetShopItems(ctx context.Context, ids []string) (map[string]game.ShopItem, error) {
	out := make(map[string]game.ShopItem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.db.Query(ctx, `SELECT `+shopItemColumns+` FROM quarantine.shop_items WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("read shop items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		it, err := scanShopItem(rows)
		if err != nil {
			return nil, err
		}
		out[it.ID] = it
	}
	return out, rows.Err()
}

func (s *Store) GetInventoryEntry(ctx context.Context, userID, itemID string) (game.InventoryEntry, error) {
	var e game.InventoryEntry
	err := s.db.QueryRow(ctx, `
		SELECT item_id, quantity, uses_remaining, purchased_at
		FROM quarantine.user_inventory
		WHERE user_id = $1 AND item_id = $2
	`, userID, itemID).Scan(&e.ItemID, &e.Quantity, &e.UsesRemaining, &e.PurchasedAt)
	if err == pgx.ErrNoRows {
		return game.InventoryEntry{}, game.ErrRecordNotFound
	}
	if err != nil {
		return game.InventoryEntry{}, fmt.Errorf("read inventory: %w", err)
	}
	return e, nil
}

func (s *Store) ListInventory(ctx context.Context, userID string, offset, limit int) ([]game.InventoryEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT item_id, quantity, uses_remaining, purchased_at
		FROM quarantine.user_inventory
		WHERE user_id = $1
		ORDER BY purchased_at DESC, item_id
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list inventory: %w", err)
	}
	defer rows.Close()
	var out []game.InventoryEntry
	for rows.Next() {
		var e game.InventoryEntry
		if err := rows.Scan(&e.ItemID, &e.Quantity, &e.UsesRemaining, &e.PurchasedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) AddInventory(ctx context.Context, userID, itemID string, quantity int64, usesDelta *int64, at time.Time) (game.InventoryEntry, error) {
	var e game.InventoryEntry
	err := s.db.QueryRow(ctx, `
		INSERT INTO quarantine.user_inventory (user_id, item_id, quantity, uses_remaining, purchased_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, item_id) DO UPDATE
		SET quantity = quarantine.user_inventory.quantity + EXCLUDED.quantity,
		    uses_remaining = CASE
		        WHEN EXCLUDED.uses_remaining IS NULL THEN quarantine.user_inventory.uses_remaining
		        ELSE COALESCE(quarantine.user_inventory.uses_remaining, 0) + EXCLUDED.uses_remaining
		    END
		RETURNING item_id, quantity, uses_remaining, purchased_at
	`, userID, itemID, quantity, usesDelta, at).Scan(&e.ItemID, &e.Quantity, &e.UsesRemaining, &e.PurchasedAt)
	if err != nil {
		return game.InventoryEntry{}, fmt.Errorf("add inventory: %w", err)
	}
	return e, nil
}

func (s *Store) SetInventory(ctx context.Context, userID, itemID string, quantity int64, usesRemaining *int64) error {
	cmd, err := s.db.Exec(ctx, `
		UPDATE quarantine.user_inventory
		SET quantity = $3, uses_remaining = $4
		WHERE user_id = $1 AND item_id = $2
	`, userID, itemID, quantity, usesRemaining)
	if err != nil {
		return fmt.Errorf("update inventory: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return game.ErrRecordNotFound
	}
	return nil
}

func (s *Store) DeleteInventory(ctx context.Context, userID, itemID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM quarantine.user_inventory WHERE user_id = $1 AND item_id = $2`, userID, itemID); err != nil {
		return fmt.Errorf("delete inventory: %w", err)
	}
	return nil
}

// InsertPurchase doubles as the payment claim: the unique payment_ref makes
// concurrent deliveries of one payment insert at most one row.
func (s *Store) InsertPurchase(ctx context.Context, rec game.PurchaseRecord) (bool, error) {
	cmd, err := s.db.Exec(ctx, `
		INSERT INTO quarantine.purchase_history (id, user_id, item_id, quantity, total_cost, purchase_type, payment_ref, purchased_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (payment_ref) DO NOTHING
	`, rec.ID, rec.UserID, rec.ItemID, rec.Quantity, rec.TotalCost, string(rec.PurchaseType), nullableText(rec.PaymentRef), rec.PurchasedAt)
	if err != nil {
		return false, fmt.Errorf("insert purchase: %w", err)
	}
	return cmd.RowsAffected() > 0, nil
}

func (s *Store) DeletePurchaseByRef(ctx context.Context, paymentRef string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM quarantine.purchase_history WHERE payment_ref = $1`, paymentRef); err != nil {
		return fmt.Errorf("delete purchase: %w", err)
	}
	return nil
}

func (s *Store) ListPurchases(ctx context.Context, userID string, limit int) ([]game.PurchaseRecord, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id::text, user_id, item_id, quantity, total_cost, purchase_type, COALESCE(payment_ref, ''), purchased_at
		FROM quarantine.purchase_history
		WHERE user_id = $1
		ORDER BY purchased_at DESC, seq DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	defer rows.Close()
	var out []game.PurchaseRecord
	for rows.Next() {
		var (
			rec          game.PurchaseRecord
			purchaseType string
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.ItemID, &rec.Quantity, &rec.TotalCost, &purchaseType, &rec.PaymentRef, &rec.PurchasedAt); err != nil {
			return nil, err
		}
		rec.PurchaseType = game.PurchaseType(purchaseType)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) InsertItemUsage(ctx context.Context, rec game.ItemUsageRecord) error {
	if _, err := s.db.Exec(ctx, `
		INSERT INTO quarantine.item_usage_history (id, user_id, item_id, quantity, used_at)
		VALUES ($1, $2, $3, $4, $5)
	`, rec.ID, rec.UserID, rec.ItemID, rec.Quantity, rec.UsedAt); err != nil {
		return fmt.Errorf("insert item usage: %w", err)
	}
	return nil
}

func (s *Store) SeedCatalog(ctx context.Context, activities []game.Activity, items []game.ShopItem) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, a := range activities {
		effects, err := encodeEffects(a.Effects)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO quarantine.activities (id, type, name, description, duration_hours, stats_effects, icon, color)
			VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8)
			ON CONFLICT (id) DO NOTHING
		`, a.ID, string(a.Type), a.Name, a.Description, a.DurationHours, effects, a.Icon, a.Color); err != nil {
			return fmt.Errorf("seed activity %s: %w", a.ID, err)
		}
	}
	for _, it := range items {
		effects, err := encodeEffects(it.Effects)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO quarantine.shop_items (`+shopItemColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9, $10)
			ON CONFLICT (id) DO NOTHING
		`, it.ID, it.Name, it.Description, string(it.Category), it.Price, string(it.PurchaseType), it.ImageURL, effects, it.Usable, it.LimitedUse); err != nil {
			return fmt.Errorf("seed shop item %s: %w", it.ID, err)
		}
	}
	return tx.Commit(ctx)
}
