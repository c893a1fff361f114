package storage

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func testBackends(t *testing.T) map[string]Backend {
	t.Helper()
	dir := t.TempDir()

	sqlite, err := NewSQLiteBackend(filepath.Join(dir, "ecl.db"))
	if err != nil {
		t.Fatalf("NewSQLiteBackend failed: %v", err)
	}
	bolt, err := NewBoltBackend(BoltBackendConfig{Path: filepath.Join(dir, "bolt", "ecl.bolt"), NoSync: true})
	if err != nil {
		t.Fatalf("NewBoltBackend failed: %v", err)
	}
	backends := map[string]Backend{
		"memory": NewMemoryBackend(),
		"sqlite": sqlite,
		"bolt":   bolt,
	}
	t.Cleanup(func() {
		for _, b := range backends {
			b.Close()
		}
	})
	return backends
}

// TestBackend_PutGetDelete tests basic operations on every backend.
func TestBackend_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	for name, b := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			if err := b.Put(ctx, BucketStores, "k1", []byte(`{"a":1}`)); err != nil {
				t.Fatalf("Put failed: %v", err)
			}
			got, err := b.Get(ctx, BucketStores, "k1")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if string(got) != `{"a":1}` {
				t.Errorf("Expected stored value, got %q", got)
			}

			if err := b.Put(ctx, BucketStores, "k1", []byte(`2`)); err != nil {
				t.Fatalf("Put failed: %v", err)
			}
			got, _ = b.Get(ctx, BucketStores, "k1")
			if string(got) != "2" {
				t.Errorf("Expected overwritten value, got %q", got)
			}

			missing, err := b.Get(ctx, BucketStores, "nope")
			if err != nil || missing != nil {
				t.Errorf("Expected nil for missing key, got %q (%v)", missing, err)
			}
			if got, _ := b.Get(ctx, BucketMana, "k1"); got != nil {
				t.Error("Buckets must be isolated")
			}

			existed, err := b.Delete(ctx, BucketStores, "k1")
			if err != nil || !existed {
				t.Errorf("Expected delete of existing key, got %v (%v)", existed, err)
			}
			existed, _ = b.Delete(ctx, BucketStores, "k1")
			if existed {
				t.Error("Expected second delete to report missing key")
			}
		})
	}
}

// TestBackend_ListAndCount tests prefix listing on every backend.
func TestBackend_ListAndCount(t *testing.T) {
	ctx := context.Background()
	for name, b := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			for _, k := range []string{"r/a/3", "r/a/1", "r/a/2", "r/b/1", "R/a/9"} {
				if err := b.Put(ctx, BucketStores, k, []byte("x")); err != nil {
					t.Fatalf("Put failed: %v", err)
				}
			}
			keys, err := b.List(ctx, BucketStores, "r/a/", 0)
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if strings.Join(keys, ",") != "r/a/1,r/a/2,r/a/3" {
				t.Errorf("Unexpected keys %v", keys)
			}
			keys, _ = b.List(ctx, BucketStores, "r/a/", 2)
			if len(keys) != 2 {
				t.Errorf("Expected limit 2, got %v", keys)
			}
			n, err := b.Count(ctx, BucketStores, "r/")
			if err != nil || n != 4 {
				t.Errorf("Expected 4 keys under r/, got %d (%v)", n, err)
			}
			n, _ = b.Count(ctx, BucketStores, "")
			if n != 5 {
				t.Errorf("Expected 5 keys, got %d", n)
			}
		})
	}
}

// TestBackend_Cleanup tests removal of stale entries.
func TestBackend_Cleanup(t *testing.T) {
	ctx := context.Background()
	for name, b := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			if err := b.Put(ctx, BucketMana, "old", []byte("1")); err != nil {
				t.Fatalf("Put failed: %v", err)
			}
			cutoff := time.Now().Add(time.Hour)
			deleted, err := b.Cleanup(ctx, BucketMana, cutoff)
			if err != nil {
				t.Fatalf("Cleanup failed: %v", err)
			}
			if deleted != 1 {
				t.Errorf("Expected 1 deleted, got %d", deleted)
			}
			deleted, _ = b.Cleanup(ctx, BucketMana, time.Now().Add(-time.Hour))
			if deleted != 0 {
				t.Errorf("Expected nothing to delete, got %d", deleted)
			}
		})
	}
}

// TestBackend_Concurrent tests concurrent writers.
func TestBackend_Concurrent(t *testing.T) {
	ctx := context.Background()
	for name, b := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					key := "c/" + string(rune('a'+i))
					if err := b.Put(ctx, BucketStores, key, []byte("v")); err != nil {
						t.Errorf("Put failed: %v", err)
					}
				}(i)
			}
			wg.Wait()
			n, _ := b.Count(ctx, BucketStores, "c/")
			if n != 20 {
				t.Errorf("Expected 20 keys, got %d", n)
			}
		})
	}
}

// TestMemoryBackend_Eviction tests the entry bound.
func TestMemoryBackend_Eviction(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackendWithConfig(MemoryBackendConfig{MaxEntries: 2})
	defer b.Close()
	b.Put(ctx, BucketStores, "a", []byte("1"))
	time.Sleep(time.Millisecond)
	b.Put(ctx, BucketStores, "b", []byte("2"))
	b.Put(ctx, BucketStores, "c", []byte("3"))
	if b.Size() != 2 {
		t.Errorf("Expected 2 entries, got %d", b.Size())
	}
	if v, _ := b.Get(ctx, BucketStores, "a"); v != nil {
		t.Error("Expected oldest entry to be evicted")
	}
}

// TestBackend_Validation tests rejected arguments.
func TestBackend_Validation(t *testing.T) {
	b := NewMemoryBackend()
	defer b.Close()
	if err := b.Put(context.Background(), "", "k", nil); err == nil {
		t.Error("Expected error for empty bucket")
	}
	if _, err := b.Get(context.Background(), BucketStores, ""); err == nil {
		t.Error("Expected error for empty key")
	}
}

// TestOpen tests backend selection.
func TestOpen(t *testing.T) {
	b, err := Open(Config{})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, ok := b.(*MemoryBackend); !ok {
		t.Errorf("Expected memory backend by default, got %T", b)
	}
	b.Close()

	if _, err := Open(Config{Type: "redis"}); err == nil {
		t.Error("Expected error for unknown type")
	}
	if _, err := Open(Config{Type: "sqlite"}); err == nil {
		t.Error("Expected error for sqlite without a path")
	}
}

// TestSQLiteDSN tests the per-driver connection strings.
func TestSQLiteDSN(t *testing.T) {
	dsn, err := sqliteDSN(SQLiteBackendConfig{DBPath: "x.db", Driver: "sqlite3", BusyTimeout: time.Second})
	if err != nil {
		t.Fatalf("sqliteDSN failed: %v", err)
	}
	if !strings.Contains(dsn, "_busy_timeout=1000") {
		t.Errorf("Unexpected mattn DSN %q", dsn)
	}
	dsn, _ = sqliteDSN(SQLiteBackendConfig{DBPath: "x.db", Driver: "sqlite", BusyTimeout: time.Second})
	if !strings.Contains(dsn, "_pragma=busy_timeout(1000)") {
		t.Errorf("Unexpected modernc DSN %q", dsn)
	}
	if _, err := sqliteDSN(SQLiteBackendConfig{Driver: "pg"}); err == nil {
		t.Error("Expected error for unknown driver")
	}
}

// TestPrefixEnd tests the exclusive upper bound of a prefix range.
func TestPrefixEnd(t *testing.T) {
	if end, ok := prefixEnd("r/a/"); !ok || end != "r/a0" {
		t.Errorf("Expected r/a0, got %q", end)
	}
	if _, ok := prefixEnd("\xff\xff"); ok {
		t.Error("Expected no bound for all-0xff prefix")
	}
}
