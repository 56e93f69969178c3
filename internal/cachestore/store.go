// Package cachestore provides the key/value stores that hold entity snapshots.
package cachestore

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrCacheMiss reports a key that holds no value.
	ErrCacheMiss = errors.New("cachestore: miss")
	// ErrUnknownDriver reports an unsupported cache driver name.
	ErrUnknownDriver = errors.New("cachestore: unknown driver")
)

const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// Store holds opaque values by key.
type Store interface {
	Set(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Ping(ctx context.Context) error
	Close() error
}

// Config selects and configures a Store implementation.
type Config struct {
	Driver string
	Redis  RedisConfig
	Memory MemoryConfig
}

// Open builds the store named by cfg.Driver.
func Open(cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverMemory:
		memory := cfg.Memory
		if memory == (MemoryConfig{}) {
			memory = DefaultMemoryConfig()
		}
		return NewMemoryStore(memory)
	case DriverRedis:
		return NewRedisStore(cfg.Redis)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}
