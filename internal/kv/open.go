package kv

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

type Options struct {
	Driver        string
	RedisURL      string
	RedisPrefix   string
	DatabaseURL   string
	MigrationsDir string
}

// Open selects and connects the configured backend. Postgres migrations are
// applied before the store is returned.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", DriverMemory:
		logger.Info("kv: using in-memory store")
		return NewMemoryStore(), nil
	case DriverRedis:
		store, err := NewRedisStore(opts.RedisURL, opts.RedisPrefix)
		if err != nil {
			return nil, err
		}
		logger.Info("kv: using redis store", "prefix", opts.RedisPrefix)
		return store, nil
	case DriverPostgres:
		db, err := OpenDB(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, err
		}
		applied, err := ApplyMigrations(ctx, db, opts.MigrationsDir)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		logger.Info("kv: using postgres store", "migrations_applied", len(applied))
		return NewPostgresStore(db), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}
