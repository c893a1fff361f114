package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// BoltBackend implements Backend on an embedded bbolt database. Each
// Backend bucket is a bolt bucket; values are stored behind an 8-byte
// big-endian write timestamp used by Cleanup.
type BoltBackend struct {
	db *bolt.DB
}

// BoltBackendConfig configures the bolt backend.
type BoltBackendConfig struct {
	// Path is the database file. Its directory is created if missing.
	Path string

	// Timeout is how long to wait for the file lock. Default: 5 seconds
	Timeout time.Duration

	// NoSync skips fsync after each commit.
	NoSync bool
}

const boltHeaderSize = 8

// NewBoltBackend opens or creates a bolt database.
func NewBoltBackend(cfg BoltBackendConfig) (*BoltBackend, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	db, err := bolt.Open(cfg.Path, 0600, &bolt.Options{Timeout: cfg.Timeout, NoSync: cfg.NoSync})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{BucketStores, BucketSchemas, BucketPrograms, BucketMana} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltBackend{db: db}, nil
}

// Get returns the value stored under key.
func (b *BoltBackend) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	if err := validate(bucket, key); err != nil {
		return nil, err
	}
	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		bk := tx.Bucket([]byte(bucket))
		if bk == nil {
			return nil
		}
		if v := bk.Get([]byte(key)); len(v) >= boltHeaderSize {
			out = append([]byte{}, v[boltHeaderSize:]...)
		}
		return nil
	})
	return out, err
}

// Put stores value under key.
func (b *BoltBackend) Put(ctx context.Context, bucket, key string, value []byte) error {
	if err := validate(bucket, key); err != nil {
		return err
	}
	record := make([]byte, boltHeaderSize+len(value))
	binary.BigEndian.PutUint64(record, uint64(time.Now().UnixNano()))
	copy(record[boltHeaderSize:], value)

	return b.db.Update(func(tx *bolt.Tx) error {
		bk, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return err
		}
		return bk.Put([]byte(key), record)
	})
}

// Delete removes key.
func (b *BoltBackend) Delete(ctx context.Context, bucket, key string) (bool, error) {
	if err := validate(bucket, key); err != nil {
		return false, err
	}
	var existed bool
	err := b.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket([]byte(bucket))
		if bk == nil || bk.Get([]byte(key)) == nil {
			return nil
		}
		existed = true
		return bk.Delete([]byte(key))
	})
	return existed, err
}

// List returns keys with prefix in lexical order.
func (b *BoltBackend) List(ctx context.Context, bucket, prefix string, limit int) ([]string, error) {
	var keys []string
	err := b.scan(bucket, prefix, func(k, _ []byte) bool {
		keys = append(keys, string(k))
		return limit <= 0 || len(keys) < limit
	})
	return keys, err
}

// Count returns the number of keys with prefix.
func (b *BoltBackend) Count(ctx context.Context, bucket, prefix string) (uint64, error) {
	var n uint64
	err := b.scan(bucket, prefix, func(_, _ []byte) bool {
		n++
		return true
	})
	return n, err
}

// scan visits keys with prefix in order until fn returns false.
func (b *BoltBackend) scan(bucket, prefix string, fn func(k, v []byte) bool) error {
	p := []byte(prefix)
	return b.db.View(func(tx *bolt.Tx) error {
		bk := tx.Bucket([]byte(bucket))
		if bk == nil {
			return nil
		}
		c := bk.Cursor()
		for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
			if !fn(k, v) {
				return nil
			}
		}
		return nil
	})
}

// Cleanup removes entries not written since olderThan.
func (b *BoltBackend) Cleanup(ctx context.Context, bucket string, olderThan time.Time) (int, error) {
	cutoff := uint64(olderThan.UnixNano())
	deleted := 0
	err := b.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket([]byte(bucket))
		if bk == nil {
			return nil
		}
		var stale [][]byte
		err := bk.ForEach(func(k, v []byte) error {
			if len(v) < boltHeaderSize || binary.BigEndian.Uint64(v) < cutoff {
				stale = append(stale, append([]byte{}, k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := bk.Delete(k); err != nil {
				return err
			}
		}
		deleted = len(stale)
		return nil
	})
	return deleted, err
}

// Close closes the database file.
func (b *BoltBackend) Close() error {
	return b.db.Close()
}
