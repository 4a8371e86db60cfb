// Package store selects and opens the game.Store backend for a database URL.
package store

import (
	"context"

	"github.com/Zubariev/quarantine/internal/db"
	"github.com/Zubariev/quarantine/internal/game"
	"github.com/Zubariev/quarantine/internal/store/postgres"
	"github.com/Zubariev/quarantine/internal/store/sqlite"
)

type Backend interface {
	game.Store
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Open returns a SQLite store for sqlite/file URLs and a Postgres store
// otherwise. SQLite stores are migrated on open; opts only tune Postgres.
func Open(ctx context.Context, databaseURL string, opts db.PoolOptions) (Backend, string, error) {
	if path, ok := db.SQLitePath(databaseURL); ok {
		s, err := sqlite.Open(ctx, path)
		if err != nil {
			return nil, "", err
		}
		return s, "sqlite", nil
	}
	pool, err := db.Connect(ctx, databaseURL, opts)
	if err != nil {
		return nil, "", err
	}
	return postgres.New(pool), "postgres", nil
}
