// Package storage provides persistence backends for ECL state.
//
// # Overview
//
// A Backend is a bucketed key-value store. The engine keeps several kinds
// of state in it, each in its own bucket:
//
//   - BucketStores: documents written by policies through the host store API
//   - BucketSchemas: store schema history
//   - BucketPrograms: compiled bytecode addressed by content ID
//   - BucketMana: mana account snapshots
//
// Three implementations are provided:
//
//   - Memory: in-memory storage (default, no persistence)
//   - SQLite: file-based persistence with WAL checkpoints, using either the
//     pure Go modernc driver or the cgo mattn driver
//   - Bolt: embedded bbolt database, one bolt bucket per Backend bucket
//
// # Usage
//
//	backend, err := storage.Open(storage.Config{Type: "sqlite", Path: "ecl.db"})
//	if err != nil {
//	    return err
//	}
//	defer backend.Close()
//
//	err = backend.Put(ctx, storage.BucketStores, "realm/shared/notes/k1", data)
//	data, err = backend.Get(ctx, storage.BucketStores, "realm/shared/notes/k1")
//
// # Thread Safety
//
// All backends are safe for concurrent use.
package storage
