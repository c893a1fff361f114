package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Buckets used by the engine.
const (
	BucketStores   = "stores"
	BucketSchemas  = "schemas"
	BucketPrograms = "programs"
	BucketMana     = "mana"
)

// ErrClosed is returned by operations on a closed backend.
var ErrClosed = errors.New("storage backend closed")

// Backend defines the interface for ECL state persistence.
// Implementations must be thread-safe and support concurrent access.
type Backend interface {
	// Get returns the value stored under key, or nil if there is none.
	Get(ctx context.Context, bucket, key string) ([]byte, error)

	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, bucket, key string, value []byte) error

	// Delete removes key and reports whether it existed.
	Delete(ctx context.Context, bucket, key string) (bool, error)

	// List returns up to limit keys with the given prefix in lexical
	// order. A limit of zero or less means no limit.
	List(ctx context.Context, bucket, prefix string, limit int) ([]string, error)

	// Count returns the number of keys with the given prefix.
	Count(ctx context.Context, bucket, prefix string) (uint64, error)

	// Cleanup removes entries of bucket not written since olderThan and
	// returns how many were removed.
	Cleanup(ctx context.Context, bucket string, olderThan time.Time) (int, error)

	// Close releases any resources held by the backend.
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	// Type is "memory", "sqlite" or "bolt". Default: memory.
	Type string `yaml:"type" toml:"type"`

	// Path is the database file for sqlite and bolt.
	Path string `yaml:"path" toml:"path"`

	// Driver is the database/sql driver for sqlite: "sqlite" (modernc,
	// pure Go) or "sqlite3" (mattn, cgo). Default: sqlite.
	Driver string `yaml:"driver" toml:"driver"`

	// CheckpointInterval is how often the sqlite WAL is checkpointed.
	// Default: 5 minutes
	CheckpointInterval time.Duration `yaml:"checkpoint_interval" toml:"checkpoint_interval"`

	// BusyTimeout is how long to wait for locks. Default: 5 seconds
	BusyTimeout time.Duration `yaml:"busy_timeout" toml:"busy_timeout"`

	// MaxEntries bounds the memory backend. Default: 100,000
	MaxEntries int `yaml:"max_entries" toml:"max_entries"`
}

// Open creates the backend described by cfg.
func Open(cfg Config) (Backend, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryBackendWithConfig(MemoryBackendConfig{MaxEntries: cfg.MaxEntries}), nil
	case "sqlite":
		return NewSQLiteBackendWithConfig(SQLiteBackendConfig{
			DBPath:             cfg.Path,
			Driver:             cfg.Driver,
			CheckpointInterval: cfg.CheckpointInterval,
			BusyTimeout:        cfg.BusyTimeout,
		})
	case "bolt":
		return NewBoltBackend(BoltBackendConfig{Path: cfg.Path, Timeout: cfg.BusyTimeout})
	}
	return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
}

func validate(bucket, key string) error {
	if bucket == "" {
		return fmt.Errorf("bucket cannot be empty")
	}
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}
	return nil
}
