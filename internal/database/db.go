package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is a generic not-found error. UserRepository and
// RoomRepository do not return it; their lookups report
// domain.ErrUserNotFound and domain.ErrRoomNotFound instead.
var ErrNotFound = errors.New("record not found")

// DB wraps the connection pool shared by every repository.
type DB struct {
	Pool *pgxpool.Pool
}

// New opens the broker's connection pool. Sized for a single broker
// process handling both the REST surface and the room/chat persistence
// queue, not for a fleet of short-lived workers.
func New(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the connection pool. Safe to call once during shutdown.
func (db *DB) Close() {
	db.Pool.Close()
}

// Health reports whether the database is reachable. The /health endpoint
// does not call it; it reports only the live room count.
func (db *DB) Health(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}
