package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Zubariev/quarantine/internal/game"
)

func (s *Store) GetInventoryEntry(ctx context.Context, userID, itemID string) (game.InventoryEntry, error) {
	var (
		e         game.InventoryEntry
		uses      sql.NullInt64
		purchased int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT item_id, quantity, uses_remaining, purchased_at
		FROM user_inventory
		WHERE user_id = ? AND item_id = ?
	`, userID, itemID).Scan(&e.ItemID, &e.Quantity, &uses, &purchased)
	if errors.Is(err, sql.ErrNoRows) {
		return game.InventoryEntry{}, game.ErrRecordNotFound
	}
	if err != nil {
		return game.InventoryEntry{}, fmt.Errorf("read inventory: %w", err)
	}
	e.UsesRemaining = intPtr(uses)
	e.PurchasedAt = fromNanos(purchased)
	return e, nil
}

func (s *Store) ListInventory(ctx context.Context, userID string, offset, limit int) ([]game.InventoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, quantity, uses_remaining, purchased_at
		FROM user_inventory
		WHERE user_id = ?
		ORDER BY purchased_at DESC, item_id
		LIMIT ? OFFSET ?
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list inventory: %w", err)
	}
	defer rows.Close()
	var out []game.InventoryEntry
	for rows.Next() {
		var (
			e         game.InventoryEntry
			uses      sql.NullInt64
			purchased int64
		)
		if err := rows.Scan(&e.ItemID, &e.Quantity, &uses, &purchased); err != nil {
			return nil, err
		}
		e.UsesRemaining = intPtr(uses)
		e.PurchasedAt = fromNanos(purchased)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) AddInventory(ctx context.Context, userID, itemID string, quantity int64, usesDelta *int64, at time.Time) (game.InventoryEntry, error) {
	var (
		e         game.InventoryEntry
		uses      sql.NullInt64
		purchased int64
	)
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO user_inventory (user_id, item_id, quantity, uses_remaining, purchased_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, item_id) DO UPDATE
		SET quantity = user_inventory.quantity + excluded.quantity,
		    uses_remaining = CASE
		        WHEN excluded.uses_remaining IS NULL THEN user_inventory.uses_remaining
		        ELSE COALESCE(user_inventory.uses_remaining, 0) + excluded.uses_remaining
		    END
		RETURNING item_id, quantity, uses_remaining, purchased_at
	`, userID, itemID, quantity, nullInt(usesDelta), toNanos(at)).Scan(&e.ItemID, &e.Quantity, &uses, &purchased)
	if err != nil {
		return game.InventoryEntry{}, fmt.Errorf("add inventory: %w", err)
	}
	e.UsesRemaining = intPtr(uses)
	e.PurchasedAt = fromNanos(purchased)
	return e, nil
}

func (s *Store) SetInventory(ctx context.Context, userID, itemID string, quantity int64, usesRemaining *int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE user_inventory
		SET quantity = ?, uses_remaining = ?
		WHERE user_id = ? AND item_id = ?
	`, quantity, nullInt(usesRemaining), userID, itemID)
	if err != nil {
		return fmt.Errorf("update inventory: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return game.ErrRecordNotFound
	}
	return nil
}

func (s *Store) DeleteInventory(ctx context.Context, userID, itemID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM user_inventory WHERE user_id = ? AND item_id = ?`, userID, itemID); err != nil {
		return fmt.Errorf("delete inventory: %w", err)
	}
	return nil
}

func (s *Store) InsertPurchase(ctx context.Context, rec game.PurchaseRecord) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO purchase_history (id, user_id, item_id, quantity, total_cost, purchase_type, payment_ref, purchased_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (payment_ref) DO NOTHING
	`, rec.ID, rec.UserID, rec.ItemID, rec.Quantity, rec.TotalCost, string(rec.PurchaseType), nullString(rec.PaymentRef), toNanos(rec.PurchasedAt))
	if err != nil {
		return false, fmt.Errorf("insert purchase: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) DeletePurchaseByRef(ctx context.Context, paymentRef string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM purchase_history WHERE payment_ref = ?`, paymentRef); err != nil {
		return fmt.Errorf("delete purchase: %w", err)
	}
	return nil
}

func (s *Store) ListPurchases(ctx context.Context, userID string, limit int) ([]game.PurchaseRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, item_id, quantity, total_cost, purchase_type, COALESCE(payment_ref, ''), purchased_at
		FROM purchase_history
		WHERE user_id = ?
		ORDER BY purchased_at DESC, rowid DESC
		LIMIT ?
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
			purchased    int64
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.ItemID, &rec.Quantity, &rec.TotalCost, &purchaseType, &rec.PaymentRef, &purchased); err != nil {
			return nil, err
		}
		rec.PurchaseType = game.PurchaseType(purchaseType)
		rec.PurchasedAt = fromNanos(purchased)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) InsertItemUsage(ctx context.Context, rec game.ItemUsageRecord) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO item_usage_history (id, user_id, item_id, quantity, used_at)
		VALUES (?, ?, ?, ?, ?)
	`, rec.ID, rec.UserID, rec.ItemID, rec.Quantity, toNanos(rec.UsedAt)); err != nil {
		return fmt.Errorf("insert item usage: %w", err)
	}
	return nil
}
