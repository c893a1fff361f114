// Package audit keeps a tamper-evident trail of policy decisions.
//
// Every policy run and every realm crossing evaluated by the gateway can be
// turned into a Record. Records are numbered and chained: each record
// carries the BLAKE3 hash of its predecessor, so deleting or editing a
// record in the middle of the trail is detected by VerifyChain. Pruning
// from the head of the trail (retention) keeps the remaining chain valid.
//
// # Components
//
//   - recorder: a runner.Observer that seals records and writes them
//     asynchronously so decision latency does not depend on storage.
//   - storage: Storage implementations (in-memory and SQLite).
//   - retention: age and count based pruning on a cron schedule.
//   - export: JSON and CSV exporters for offline review.
//
// # Usage
//
//	store, _ := storage.NewSQLiteStorage(storage.SQLiteConfig{Path: "audit.db"})
//	rec, _ := recorder.New(ctx, store, recorder.DefaultConfig())
//	defer rec.Close()
//
//	r := runner.New(runner.WithObserver(rec))
//
// Records describe decisions only. They never contain policy source,
// store contents or host facts beyond the aggregated trust score of a
// crossing.
package audit
