// Package redis wraps go-redis for job event publishing and small shared caches.
package redis

import (
	"context"

	errors "github.com/Laisky/errors/v2"
	gredis "github.com/Laisky/go-redis/v2"
	"github.com/redis/go-redis/v9"
)

// DB is a wrapper for go-redis
type DB struct {
	client *redis.Client
	db     *gredis.Utils
}

// NewDB creates a new DB instance
func NewDB(opt *redis.Options) *DB {
	rdb := redis.NewClient(opt)
	return NewDBFromClient(rdb)
}

// NewDBFromClient wraps an existing client.
func NewDBFromClient(rdb *redis.Client) *DB {
	return &DB{
		client: rdb,
		db:     gredis.NewRedisUtils(rdb),
	}
}

// Ping checks connectivity.
func (db *DB) Ping(ctx context.Context) error {
	if db == nil || db.client == nil {
		return errors.New("redis client is required")
	}
	return errors.Wrap(db.client.Ping(ctx).Err(), "ping redis")
}

// Close releases the underlying client.
func (db *DB) Close() error {
	if db == nil || db.client == nil {
		return nil
	}
	return errors.WithStack(db.client.Close())
}
