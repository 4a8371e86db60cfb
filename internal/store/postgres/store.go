// Package postgres implements game.Store on PostgreSQL through pgx.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Zubariev/quarantine/internal/game"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *pgxpool.Pool
}

var _ game.Store = (*Store)(nil)

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply postgres schema: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *Store) Close() error {
	s.db.Close()
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func encodeEffects(e game.Effects) (string, error) {
	if e == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func nullableText(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func (s *Store) EnsureStats(ctx context.Context, userID string, defaults game.Stats) (game.Stats, error) {
	var st game.Stats
	_, err := s.db.Exec(ctx, `
		INSERT INTO quarantine.user_stats (user_id, hunger, stress, tone, health, money)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, defaults.Hunger, defaults.Stress, defaults.Tone, defaults.Health, defaults.Money)
	if err != nil {
		return st, fmt.Errorf("ensure stats: %w", err)
	}
	err = s.db.QueryRow(ctx, `
		SELECT hunger, stress, tone, health, money
		FROM quarantine.user_stats
		WHERE user_id = $1
	`, userID).Scan(&st.Hunger, &st.Stress, &st.Tone, &st.Health, &st.Money)
	if err != nil {
		return st, fmt.Errorf("read stats: %w", err)
	}
	return st, nil
}

func (s *Store) UpdateStats(ctx context.Context, userID string, values map[game.Stat]int64) error {
	if len(values) == 0 {
		return nil
	}
	sets := make([]string, 0, len(values))
	args := []any{userID}
	for _, stat := range game.AllStats {
		v, ok := values[stat]
		if !ok {
			continue
		}
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", stat, len(args)))
	}
	cmd, err := s.db.Exec(ctx, `
		UPDATE quarantine.user_stats
		SET `+strings.Join(sets, ", ")+`, updated_at = now()
		WHERE user_id = $1
	`, args...)
	if err != nil {
		return fmt.Errorf("update stats: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return game.ErrRecordNotFound
	}
	return nil
}

func (s *Store) InsertStatHistory(ctx context.Context, entries []game.StatHistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`
			INSERT INTO quarantine.stat_history (id, user_id, stat_type, previous_value, new_value, change, reason, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, e.ID, e.UserID, string(e.Stat), e.PreviousValue, e.NewValue, e.Delta, e.Reason, e.CreatedAt)
	}
	if err := s.db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert stat history: %w", err)
	}
	return nil
}

func (s *Store) ListStatHistory(ctx context.Context, userID string, stat game.Stat, limit int) ([]game.StatHistoryEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id::text, user_id, stat_type, previous_value, new_value, change, reason, created_at
		FROM quarantine.stat_history
		WHERE user_id = $1 AND ($2 = '' OR stat_type = $2)
		ORDER BY created_at DESC, seq DESC
		LIMIT $3
	`, userID, string(stat), limit)
	if err != nil {
		return nil, fmt.Errorf("list stat history: %w", err)
	}
	defer rows.Close()
	var out []game.StatHistoryEntry
	for rows.Next() {
		var (
			e        game.StatHistoryEntry
			statType string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &statType, &e.PreviousValue, &e.NewValue, &e.Delta, &e.Reason, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Stat = game.Stat(statType)
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) ListActivities(ctx context.Context, userID string) ([]game.ActivityRecord, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, type, name, description, duration_hours, stats_effects, icon, color, COALESCE(user_id, '')
		FROM quarantine.activities
		WHERE user_id IS NULL OR user_id = $1
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
			effects []byte
		)
		if err := rows.Scan(&rec.ID, &rec.Type, &rec.Name, &rec.Description, &rec.DurationHours, &effects, &rec.Icon, &rec.Color, &rec.OwnerID); err != nil {
			return nil, err
		}
		rec.Effects = game.ParseEffectsJSON(effects)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) ActivityExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM quarantine.activities WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check activity: %w", err)
	}
	return exists, nil
}

func (s *Store) FindVisibleActivityIDs(ctx context.Context, userID string, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, `
		SELECT id
		FROM quarantine.activities
		WHERE id = ANY($1) AND (user_id IS NULL OR user_id = $2)
	`, ids, userID)
	if err != nil {
		return nil, fmt.Errorf("find activities: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *Store) InsertActivity(ctx context.Context, a game.Activity) error {
	effects, err := encodeEffects(a.Effects)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO quarantine.activities (id, type, name, description, duration_hours, stats_effects, icon, color, user_id)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, $9)
	`, a.ID, string(a.Type), a.Name, a.Description, a.DurationHours, effects, a.Icon, a.Color, nullableText(a.OwnerID))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: activity %q", game.ErrDuplicateID, a.ID)
		}
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

func (s *Store) GetSchedule(ctx context.Context, userID, date string) (game.ScheduleRecord, error) {
	var rec game.ScheduleRecord
	err := s.db.QueryRow(ctx, `
		SELECT to_char(date, 'YYYY-MM-DD'), blocks, updated_at
		FROM quarantine.user_schedules
		WHERE user_id = $1 AND date = $2::date
	`, userID, date).Scan(&rec.Date, &rec.Blocks, &rec.UpdatedAt)
	if err == pgx.ErrNoRows {
		return game.ScheduleRecord{}, game.ErrRecordNotFound
	}
	if err != nil {
		return game.ScheduleRecord{}, fmt.Errorf("read schedule: %w", err)
	}
	return rec, nil
}

func (s *Store) ListSchedules(ctx context.Context, userID, fromDate, toDate string) ([]game.ScheduleRecord, error) {
	rows, err := s.db.Query(ctx, `
		SELECT to_char(date, 'YYYY-MM-DD'), blocks, updated_at
		FROM quarantine.user_schedules
		WHERE user_id = $1 AND date BETWEEN $2::date AND $3::date
		ORDER BY date
	`, userID, fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()
	var out []game.ScheduleRecord
	for rows.Next() {
		var rec game.ScheduleRecord
		if err := rows.Scan(&rec.Date, &rec.Blocks, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) UpsertSchedule(ctx context.Context, userID, date string, blocks []byte, updatedAt time.Time) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO quarantine.user_schedules (user_id, date, blocks, updated_at)
		VALUES ($1, $2::date, $3::jsonb, $4)
		ON CONFLICT (user_id, date) DO UPDATE
		SET blocks = EXCLUDED.blocks, updated_at = EXCLUDED.updated_at
	`, userID, date, string(blocks), updatedAt)
	if err != nil {
		return fmt.Errorf("upsert schedule: %w", err)
	}
	return nil
}
