package persistence

import (
	"context"
	"fmt"
)

// Options selects and configures a storage backend.
type Options struct {
	Driver string

	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDBName   string

	SQLitePath string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Open builds the Store named by opts.Driver: gorm, postgres, sqlite, redis or memory.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case "gorm":
		return NewGormPostgreSQL(opts.PostgresHost, opts.PostgresPort, opts.PostgresUser, opts.PostgresPassword, opts.PostgresDBName)
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			opts.PostgresHost, opts.PostgresPort, opts.PostgresUser, opts.PostgresPassword, opts.PostgresDBName)
		return NewSQL("postgres", dsn)
	case "sqlite":
		return NewSQL("sqlite3", opts.SQLitePath)
	case "redis":
		return NewRedis(ctx, opts.RedisAddr, opts.RedisPassword, opts.RedisDB)
	case "memory", "":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
}
