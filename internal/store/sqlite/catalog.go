package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Zubariev/quarantine/internal/game"
)

func (s *Store) ListActivities(ctx context.Context, userID string) ([]game.ActivityRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, name, description, duration_hours, stats_effects, icon, color, COALESCE(user_id, '')
		FROM activities
		WHERE user_id IS NULL OR user_id = ?
		ORDER BY user_id IS NOT NULL, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()
	var out []game.ActivityRecord
	for rows.Next() {
		var (
			rec     game.ActivityRecord
			effects string
		)
		if err := rows.Scan(&rec.ID, &rec.Type, &rec.Name, &rec.Description, &rec.DurationHours, &effects, &rec.Icon, &rec.Color, &rec.OwnerID); err != nil {
			return nil, err
		}
		rec.Effects = game.ParseEffectsJSON([]byte(effects))
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) ActivityExists(ctx context.Context, id string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM activities WHERE id = ?`, id).Scan(&n); err != nil {
		return false, fmt.Errorf("check activity: %w", err)
	}
	return n > 0, nil
}

func (s *Store) FindVisibleActivityIDs(ctx context.Context, userID string, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(ids)+1)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, userID)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM activities
		WHERE id IN (`+placeholders(len(ids))+`) AND (user_id IS NULL OR user_id = ?)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("find activities: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) InsertActivity(ctx context.Context, a game.Activity) error {
	effects, err := encodeEffects(a.Effects)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO activities (id, type, name, description, duration_hours, stats_effects, icon, color, user_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, string(a.Type), a.Name, a.Description, a.DurationHours, effects, a.Icon, a.Color, nullString(a.OwnerID), toNanos(time.Now()))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: activity %q", game.ErrDuplicateID, a.ID)
		}
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

func (s *Store) GetSchedule(ctx context.Context, userID, date string) (game.ScheduleRecord, error) {
	var (
		rec     game.ScheduleRecord
		blocks  string
		updated int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT date, blocks, updated_at
		FROM user_schedules
		WHERE user_id = ? AND date = ?
	`, userID, date).Scan(&rec.Date, &blocks, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return game.ScheduleRecord{}, game.ErrRecordNotFound
	}
	if err != nil {
		return game.ScheduleRecord{}, fmt.Errorf("read schedule: %w", err)
	}
	rec.Blocks = []byte(blocks)
	rec.UpdatedAt = fromNanos(updated)
	return rec, nil
}

func (s *Store) ListSchedules(ctx context.Context, userID, fromDate, toDate string) ([]game.ScheduleRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, blocks, updated_at
		FROM user_schedules
		WHERE user_id = ? AND date BETWEEN ? AND ?
		ORDER BY date
	`, userID, fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()
	var out []game.ScheduleRecord
	for rows.Next() {
		var (
			rec     game.ScheduleRecord
			blocks  string
			updated int64
		)
		if err := rows.Scan(&rec.Date, &blocks, &updated); err != nil {
			return nil, err
		}
		rec.Blocks = []byte(blocks)
		rec.UpdatedAt = fromNanos(updated)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) UpsertSchedule(ctx context.Context, userID, date string, blocks []byte, updatedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_schedules (user_id, date, blocks, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, date) DO UPDATE
		SET blocks = excluded.blocks, updated_at = excluded.updated_at
	`, userID, date, string(blocks), toNanos(updatedAt))
	if err != nil {
		return fmt.Errorf("upsert schedule: %w", err)
	}
	return nil
}

const shopItemColumns = `id, name, description, category, price, purchase_type, image_url, stats_effects, usable, limited_use`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanShopItem(row rowScanner) (game.ShopItem, error) {
	var (
		it           game.ShopItem
		category     string
		purchaseType string
		effects      string
		usable       int64
		limited      sql.NullInt64
	)
	if err := row.Scan(&it.ID, &it.Name, &it.Description, &category, &it.Price, &purchaseType, &it.ImageURL, &effects, &usable, &limited); err != nil {
		return game.ShopItem{}, err
	}
	it.Category = game.ItemCategory(category)
	it.PurchaseType = game.PurchaseType(purchaseType)
	it.Effects, _ = game.NormalizeEffects(game.ParseEffectsJSON([]byte(effects)))
	it.Usable = usable != 0
	it.LimitedUse = intPtr(limited)
	return it, nil
}

func (s *Store) ListShopItems(ctx context.Context, category game.ItemCategory) ([]game.ShopItem, error) {
	query := `SELECT ` + shopItemColumns + ` FROM shop_items`
	var args []any
	if category != "" {
		query += ` WHERE category = ?`
		args = append(args, string(category))
	}
	query += ` ORDER BY category, price, id`
	rows, err := s.db.QueryContext(ctx, query, args...)
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
	it, err := scanShopItem(s.db.QueryRowContext(ctx, `SELECT `+shopItemColumns+` FROM shop_items WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
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
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+shopItemColumns+` FROM shop_items WHERE id IN (`+placeholders(len(ids))+`)`, args...)
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

func (s *Store) SeedCatalog(ctx context.Context, activities []game.Activity, items []game.ShopItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	now := toNanos(time.Now())
	for _, a := range activities {
		effects, err := encodeEffects(a.Effects)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO activities (id, type, name, description, duration_hours, stats_effects, icon, color, user_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL, ?)
			ON CONFLICT (id) DO NOTHING
		`, a.ID, string(a.Type), a.Name, a.Description, a.DurationHours, effects, a.Icon, a.Color, now); err != nil {
			return fmt.Errorf("seed activity %s: %w", a.ID, err)
		}
	}
	for _, it := range items {
		effects, err := encodeEffects(it.Effects)
		if err != nil {
			return err
		}
		usable := 0
		if it.Usable {
			usable = 1
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO shop_items (`+shopItemColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO NOTHING
		`, it.ID, it.Name, it.Description, string(it.Category), it.Price, string(it.PurchaseType), it.ImageURL, effects, usable, nullInt(it.LimitedUse)); err != nil {
			return fmt.Errorf("seed shop item %s: %w", it.ID, err)
		}
	}
	return tx.Commit()
}
