// Package storage provides audit.Storage backends.
//
// MemoryStorage keeps the trail in process memory. SQLiteStorage persists it
// in a single SQLite file, using either the pure Go modernc driver
// ("sqlite", the default) or the cgo mattn driver ("sqlite3").
package storage
