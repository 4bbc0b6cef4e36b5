package kv

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashavatar/hashavatar/internal/platform/cache"
	"github.com/hashavatar/hashavatar/internal/platform/db"
)

// Driver names accepted by Open.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMongo    = "mongo"
)

// Options selects and configures a driver.
type Options struct {
	Driver        string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	PGDSN         string
	PGMaxConns    int32
	SQLitePath    string
	MongoURI      string
	MongoDatabase string
}

// Open connects the configured driver.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case DriverMemory:
		return NewMemory(), nil
	case DriverRedis, "":
		client, err := cache.New(ctx, cache.Options{Addr: opts.RedisAddr, Password: opts.RedisPassword, DB: opts.RedisDB})
		if err != nil {
			return nil, err
		}
		return NewRedis(client), nil
	case DriverPostgres:
		pool, err := db.New(ctx, opts.PGDSN, opts.PGMaxConns)
		if err != nil {
			return nil, err
		}
		store, err := NewPostgres(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return store, nil
	case DriverSQLite:
		return OpenSQLite(opts.SQLitePath)
	case DriverMongo:
		return OpenMongo(ctx, opts.MongoURI, opts.MongoDatabase)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, opts.Driver)
	}
}
