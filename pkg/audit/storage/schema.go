package storage

// SchemaVersion is the current version of the SQLite audit schema.
const SchemaVersion = 1

// Schema creates the audit tables. Times are stored as Unix nanoseconds so
// both SQLite drivers read them back identically.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_records (
	id TEXT PRIMARY KEY,
	sequence INTEGER NOT NULL UNIQUE,
	kind TEXT NOT NULL,
	time_ns INTEGER NOT NULL,
	execution_id TEXT NOT NULL DEFAULT '',
	policy_id TEXT NOT NULL DEFAULT '',
	policy_type TEXT NOT NULL DEFAULT '',
	realm_id TEXT NOT NULL DEFAULT '',
	from_realm TEXT NOT NULL DEFAULT '',
	entity_id TEXT NOT NULL DEFAULT '',
	allowed INTEGER NOT NULL,
	outcome TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	gas_used INTEGER NOT NULL DEFAULT 0,
	mana_used INTEGER NOT NULL DEFAULT 0,
	duration_us INTEGER NOT NULL DEFAULT 0,
	trust_score REAL NOT NULL DEFAULT 0,
	prev_hash TEXT NOT NULL DEFAULT '',
	hash TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_time ON audit_records(time_ns);
CREATE INDEX IF NOT EXISTS idx_audit_realm ON audit_records(realm_id);
CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_records(entity_id);
CREATE INDEX IF NOT EXISTS idx_audit_policy ON audit_records(policy_id);
CREATE INDEX IF NOT EXISTS idx_audit_outcome ON audit_records(outcome);

CREATE TABLE IF NOT EXISTS audit_schema_version (
	version INTEGER PRIMARY KEY
);
`

// InsertSchemaVersion records the schema version once.
const InsertSchemaVersion = `INSERT OR IGNORE INTO audit_schema_version (version) VALUES (?)`

// GetSchemaVersion reads the newest recorded schema version.
const GetSchemaVersion = `SELECT MAX(version) FROM audit_schema_version`

const recordColumns = `id, sequence, kind, time_ns, execution_id, policy_id, policy_type,
	realm_id, from_realm, entity_id, allowed, outcome, error,
	gas_used, mana_used, duration_us, trust_score, prev_hash, hash`
