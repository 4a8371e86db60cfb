// Package sqlite implements game.Store on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/Zubariev/quarantine/internal/game"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sql.DB
}

var _ game.Store = (*Store)(nil)

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(v int64) time.Time {
	return time.Unix(0, v).UTC()
}

// Open opens (creating if missing) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &Store{db: db}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply sqlite schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func intPtr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
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

func (s *Store) EnsureStats(ctx context.Context, userID string, defaults game.Stats) (game.Stats, error) {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO user_stats (user_id, hunger, stress, tone, health, money, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, defaults.Hunger, defaults.Stress, defaults.Tone, defaults.Health, defaults.Money, toNanos(time.Now())); err != nil {
		return game.Stats{}, fmt.Errorf("ensure stats: %w", err)
	}
	var st game.Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT hunger, stress, tone, health, money
		FROM user_stats
		WHERE user_id = ?
	`, userID).Scan(&st.Hunger, &st.Stress, &st.Tone, &st.Health, &st.Money)
	if err != nil {
		return game.Stats{}, fmt.Errorf("read stats: %w", err)
	}
	return st, nil
}

func (s *Store) UpdateStats(ctx context.Context, userID string, values map[game.Stat]int64) error {
	if len(values) == 0 {
		return nil
	}
	sets := make([]string, 0, len(values)+1)
	args := make([]any, 0, len(values)+2)
	for _, stat := range game.AllStats {
		v, ok := values[stat]
		if !ok {
			continue
		}
		sets = append(sets, string(stat)+" = ?")
		args = append(args, v)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, toNanos(time.Now()), userID)
	res, err := s.db.ExecContext(ctx, `UPDATE user_stats SET `+strings.Join(sets, ", ")+` WHERE user_id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update stats: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return game.ErrRecordNotFound
	}
	return nil
}

func (s *Store) InsertStatHistory(ctx context.Context, entries []game.StatHistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO stat_history (id, user_id, stat_type, previous_value, new_value, change, reason, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, e.ID, e.UserID, string(e.Stat), e.PreviousValue, e.NewValue, e.Delta, e.Reason, toNanos(e.CreatedAt)); err != nil {
			return fmt.Errorf("insert stat history: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) ListStatHistory(ctx context.Context, userID string, stat game.Stat, limit int) ([]game.StatHistoryEntry, error) {
	query := `
		SELECT id, user_id, stat_type, previous_value, new_value, change, reason, created_at
		FROM stat_history
		WHERE user_id = ?`
	args := []any{userID}
	if stat != "" {
		query += ` AND stat_type = ?`
		args = append(args, string(stat))
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list stat history: %w", err)
	}
	defer rows.Close()
	var out []game.StatHistoryEntry
	for rows.Next() {
		var (
			e        game.StatHistoryEntry
			statType string
			created  int64
		)
		if err := rows.Scan(&e.ID, &e.UserID, &statType, &e.PreviousValue, &e.NewValue, &e.Delta, &e.Reason, &created); err != nil {
			return nil, err
		}
		e.Stat = game.Stat(statType)
		e.CreatedAt = fromNanos(created)
		out = append(out, e)
	}
	return out, rows.Err()
}
