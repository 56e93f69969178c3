package cachestore

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/viccon/sturdyc"
)

var errStoreClosed = errors.New("cachestore: store closed")

// MemoryConfig sizes the in-process store.
type MemoryConfig struct {
	Capacity           int
	NumShards          int
	TTL                time.Duration
	EvictionPercentage int
}

// DefaultMemoryConfig suits a single process holding a handful of snapshots.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		Capacity:           1024,
		NumShards:          16,
		TTL:                24 * time.Hour,
		EvictionPercentage: 10,
	}
}

// Validate checks sizing parameters before the client is built.
func (c MemoryConfig) Validate() error {
	if c.Capacity <= 0 {
		return &ConfigError{Field: "Capacity", Message: "must be greater than 0"}
	}
	if c.NumShards <= 0 {
		return &ConfigError{Field: "NumShards", Message: "must be greater than 0"}
	}
	if c.TTL <= 0 {
		return &ConfigError{Field: "TTL", Message: "must be greater than 0"}
	}
	if c.EvictionPercentage < 1 || c.EvictionPercentage > 100 {
		return &ConfigError{Field: "EvictionPercentage", Message: "must be between 1 and 100"}
	}
	return nil
}

// ConfigError reports an invalid store configuration field.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "cachestore config error in field " + e.Field + ": " + e.Message
}

// MemoryStore keeps snapshots in a sturdyc client inside the process.
type MemoryStore struct {
	client *sturdyc.Client[[]byte]
	closed atomic.Bool
}

func NewMemoryStore(cfg MemoryConfig) (*MemoryStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client := sturdyc.New[[]byte](cfg.Capacity, cfg.NumShards, cfg.TTL, cfg.EvictionPercentage)
	return &MemoryStore{client: client}, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	if s.closed.Load() {
		return errStoreClosed
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	s.client.Set(key, stored)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	if s.closed.Load() {
		return nil, errStoreClosed
	}
	value, ok := s.client.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	return value, nil
}

func (s *MemoryStore) Ping(context.Context) error {
	if s.closed.Load() {
		return errStoreClosed
	}
	return nil
}

func (s *MemoryStore) Close() error {
	s.closed.Store(true)
	return nil
}
