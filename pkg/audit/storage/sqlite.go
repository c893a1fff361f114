package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // registered as "sqlite3"
	_ "modernc.org/sqlite"          // registered as "sqlite"

	"erynoa/eclvm/pkg/audit"
)

var errClosed = errors.New("storage closed")

// SQLiteConfig configures the SQLite audit store.
type SQLiteConfig struct {
	// Path is the database file.
	Path string

	// Driver is "sqlite" (modernc) or "sqlite3" (mattn). Default: sqlite
	Driver string

	// MaxOpenConns bounds the connection pool. Default: 4
	MaxOpenConns int

	// WALMode enables write-ahead logging. Default: true
	WALMode *bool

	// BusyTimeout is how long to wait on a locked database. Default: 5s
	BusyTimeout time.Duration
}

func (c *SQLiteConfig) applyDefaults() {
	if c.Driver == "" {
		c.Driver = "sqlite"
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 4
	}
	if c.WALMode == nil {
		wal := true
		c.WALMode = &wal
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = 5 * time.Second
	}
}

// SQLiteStorage implements audit.Storage on SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	config SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStorage opens (and if needed creates) the audit database.
func NewSQLiteStorage(cfg SQLiteConfig) (*SQLiteStorage, error) {
	if cfg.Path == "" {
		return nil, audit.NewStorageError("sqlite", "open", errors.New("path cannot be empty"))
	}
	cfg.applyDefaults()

	db, err := sql.Open(cfg.Driver, cfg.Path)
	if err != nil {
		return nil, audit.NewStorageError("sqlite", "open", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)

	s := &SQLiteStorage{
		db:     db,
		config: cfg,
		logger: slog.Default().With("component", "audit.storage.sqlite"),
	}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.Info("audit storage initialized",
		"path", cfg.Path,
		"driver", cfg.Driver,
		"wal_mode", *cfg.WALMode,
	)
	return s, nil
}

func (s *SQLiteStorage) initialize() error {
	if *s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return audit.NewStorageError("sqlite", "enable_wal", err)
		}
	}
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", s.config.BusyTimeout.Milliseconds())); err != nil {
		return audit.NewStorageError("sqlite", "set_busy_timeout", err)
	}
	if _, err := s.db.Exec(Schema); err != nil {
		return audit.NewStorageError("sqlite", "create_schema", err)
	}
	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return audit.NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version sql.NullInt64
	if err := s.db.QueryRow(GetSchemaVersion).Scan(&version); err != nil {
		return audit.NewStorageError("sqlite", "get_schema_version", err)
	}
	if version.Int64 != SchemaVersion {
		return audit.NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version.Int64))
	}
	return nil
}

// Store inserts a sealed record.
func (s *SQLiteStorage) Store(ctx context.Context, r *audit.Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, int64(r.Sequence), string(r.Kind), r.Time.UnixNano(),
		r.ExecutionID, r.PolicyID, r.PolicyType,
		r.RealmID, r.FromRealm, r.EntityID,
		r.Allowed, string(r.Outcome), r.Error,
		int64(r.GasUsed), int64(r.ManaUsed), int64(r.DurationMicros), r.TrustScore,
		r.PrevHash, r.Hash,
	)
	if err != nil {
		return audit.NewStorageError("sqlite", "store", err)
	}
	return nil
}

// Query returns the matching records ordered by sequence.
func (s *SQLiteStorage) Query(ctx context.Context, q *audit.Query) ([]*audit.Record, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	where, args := buildWhereClause(q)

	stmt := "SELECT " + recordColumns + " FROM audit_records" + where
	if q.Ascending() {
		stmt += " ORDER BY sequence ASC"
	} else {
		stmt += " ORDER BY sequence DESC"
	}
	limit := q.Limit
	if limit == 0 {
		limit = -1
	}
	stmt += fmt.Sprintf(" LIMIT %d", limit)
	if q.Offset > 0 {
		stmt += fmt.Sprintf(" OFFSET %d", q.Offset)
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, audit.NewStorageError("sqlite", "query", err)
	}
	defer rows.Close()

	records := []*audit.Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, audit.NewStorageError("sqlite", "scan", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, audit.NewStorageError("sqlite", "query", err)
	}
	return records, nil
}

// Count returns the number of matching records.
func (s *SQLiteStorage) Count(ctx context.Context, q *audit.Query) (int64, error) {
	where, args := buildWhereClause(q)
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_records"+where, args...).Scan(&n); err != nil {
		return 0, audit.NewStorageError("sqlite", "count", err)
	}
	return n, nil
}

// Delete removes the matching records.
func (s *SQLiteStorage) Delete(ctx context.Context, q *audit.Query) (int64, error) {
	where, args := buildWhereClause(q)
	res, err := s.db.ExecContext(ctx, "DELETE FROM audit_records"+where, args...)
	if err != nil {
		return 0, audit.NewStorageError("sqlite", "delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, audit.NewStorageError("sqlite", "delete", err)
	}
	return n, nil
}

// Last returns the record with the highest sequence, or nil.
func (s *SQLiteStorage) Last(ctx context.Context) (*audit.Record, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM audit_records ORDER BY sequence DESC LIMIT 1")
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, audit.NewStorageError("sqlite", "last", err)
	}
	return r, nil
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*audit.Record, error) {
	var (
		r                        audit.Record
		seq, gas, mana, duration int64
		timeNS                   int64
		kind, outcome            string
	)
	err := row.Scan(
		&r.ID, &seq, &kind, &timeNS,
		&r.ExecutionID, &r.PolicyID, &r.PolicyType,
		&r.RealmID, &r.FromRealm, &r.EntityID,
		&r.Allowed, &outcome, &r.Error,
		&gas, &mana, &duration, &r.TrustScore,
		&r.PrevHash, &r.Hash,
	)
	if err != nil {
		return nil, err
	}
	r.Sequence = uint64(seq)
	r.Kind = audit.Kind(kind)
	r.Time = time.Unix(0, timeNS).UTC()
	r.Outcome = audit.Outcome(outcome)
	r.GasUsed = uint64(gas)
	r.ManaUsed = uint64(mana)
	r.DurationMicros = uint64(duration)
	return &r, nil
}

func buildWhereClause(q *audit.Query) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		conds = append(conds, cond)
		args = append(args, arg)
	}
	if q.StartTime != nil {
		add("time_ns >= ?", q.StartTime.UnixNano())
	}
	if q.EndTime != nil {
		add("time_ns <= ?", q.EndTime.UnixNano())
	}
	if q.SequenceBelow > 0 {
		add("sequence < ?", int64(q.SequenceBelow))
	}
	if q.Kind != "" {
		add("kind = ?", string(q.Kind))
	}
	if q.PolicyID != "" {
		add("policy_id = ?", q.PolicyID)
	}
	if q.RealmID != "" {
		add("realm_id = ?", q.RealmID)
	}
	if q.EntityID != "" {
		add("entity_id = ?", q.EntityID)
	}
	if q.Outcome != "" {
		add("outcome = ?", string(q.Outcome))
	}
	if q.Allowed != nil {
		add("allowed = ?", *q.Allowed)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
