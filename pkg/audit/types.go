package audit

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Kind distinguishes what a record describes.
type Kind string

const (
	// KindPolicy is a single policy run.
	KindPolicy Kind = "policy"

	// KindCrossing is a realm entry or crossing decision.
	KindCrossing Kind = "crossing"
)

// Outcome is the terminal state of a run as recorded in the trail.
type Outcome string

const (
	OutcomeAllowed       Outcome = "allowed"
	OutcomeDenied        Outcome = "denied"
	OutcomeRejected      Outcome = "rejected"
	OutcomeOutOfGas      Outcome = "out_of_gas"
	OutcomeOutOfMana     Outcome = "out_of_mana"
	OutcomeTimeout       Outcome = "timeout"
	OutcomeStackOverflow Outcome = "stack_overflow"
	OutcomeTypeError     Outcome = "type_error"
	OutcomeAborted       Outcome = "aborted"
	OutcomeHostError     Outcome = "host_error"
	OutcomeError         Outcome = "error"
)

// Record is one entry of the audit trail.
type Record struct {
	// ID is a UUID assigned by the recorder.
	ID string `json:"id"`

	// Sequence numbers records from 1 without gaps at write time.
	Sequence uint64 `json:"sequence"`

	Kind Kind      `json:"kind"`
	Time time.Time `json:"time"`

	ExecutionID string `json:"execution_id,omitempty"`
	PolicyID    string `json:"policy_id,omitempty"`
	PolicyType  string `json:"policy_type,omitempty"`

	// RealmID is the realm the policy ran in, or the target realm of a
	// crossing.
	RealmID string `json:"realm_id,omitempty"`

	// FromRealm is set for crossings only.
	FromRealm string `json:"from_realm,omitempty"`

	// EntityID is the caller DID, possibly redacted.
	EntityID string `json:"entity_id,omitempty"`

	Allowed bool    `json:"allowed"`
	Outcome Outcome `json:"outcome"`
	Error   string  `json:"error,omitempty"`

	GasUsed        uint64  `json:"gas_used"`
	ManaUsed       uint64  `json:"mana_used"`
	DurationMicros uint64  `json:"duration_us"`
	TrustScore     float64 `json:"trust_score,omitempty"`

	// PrevHash is the Hash of the record with Sequence-1.
	PrevHash string `json:"prev_hash,omitempty"`
	Hash     string `json:"hash"`
}

// Query filters records. Zero-valued fields do not filter.
type Query struct {
	// Time range, both bounds inclusive.
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	// SequenceBelow keeps records with a smaller sequence number.
	SequenceBelow uint64 `json:"sequence_below,omitempty"`

	Kind     Kind    `json:"kind,omitempty"`
	PolicyID string  `json:"policy_id,omitempty"`
	RealmID  string  `json:"realm_id,omitempty"`
	EntityID string  `json:"entity_id,omitempty"`
	Outcome  Outcome `json:"outcome,omitempty"`
	Allowed  *bool   `json:"allowed,omitempty"`

	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`

	// SortOrder orders by sequence, "asc" or "desc". Default: desc
	SortOrder string `json:"sort_order,omitempty"`
}

const (
	// DefaultLimit is used by Query and by callers that do not set one.
	DefaultLimit = 100

	// MaxLimit bounds a single query.
	MaxLimit = 10000
)

// Validate checks the query parameters.
func (q *Query) Validate() error {
	if q.Limit < 0 {
		return NewQueryError(q, fmt.Errorf("limit must be >= 0, got %d", q.Limit))
	}
	if q.Limit > MaxLimit {
		return NewQueryError(q, fmt.Errorf("limit must be <= %d, got %d", MaxLimit, q.Limit))
	}
	if q.Offset < 0 {
		return NewQueryError(q, fmt.Errorf("offset must be >= 0, got %d", q.Offset))
	}
	switch q.SortOrder {
	case "", "asc", "desc":
	default:
		return NewQueryError(q, fmt.Errorf("invalid sort order %q (must be asc or desc)", q.SortOrder))
	}
	switch q.Kind {
	case "", KindPolicy, KindCrossing:
	default:
		return NewQueryError(q, fmt.Errorf("invalid kind %q", q.Kind))
	}
	if q.StartTime != nil && q.EndTime != nil && q.StartTime.After(*q.EndTime) {
		return NewQueryError(q, fmt.Errorf("start_time must be before end_time"))
	}
	return nil
}

// Ascending reports whether results are ordered oldest first.
func (q *Query) Ascending() bool { return q.SortOrder == "asc" }

// Matches reports whether r passes every filter of q. Limit, Offset and
// SortOrder are ignored.
func (q *Query) Matches(r *Record) bool {
	if q.StartTime != nil && r.Time.Before(*q.StartTime) {
		return false
	}
	if q.EndTime != nil && r.Time.After(*q.EndTime) {
		return false
	}
	if q.SequenceBelow > 0 && r.Sequence >= q.SequenceBelow {
		return false
	}
	if q.Kind != "" && r.Kind != q.Kind {
		return false
	}
	if q.PolicyID != "" && r.PolicyID != q.PolicyID {
		return false
	}
	if q.RealmID != "" && r.RealmID != q.RealmID {
		return false
	}
	if q.EntityID != "" && r.EntityID != q.EntityID {
		return false
	}
	if q.Outcome != "" && r.Outcome != q.Outcome {
		return false
	}
	if q.Allowed != nil && r.Allowed != *q.Allowed {
		return false
	}
	return true
}

// Storage persists audit records. Implementations must be safe for
// concurrent use.
type Storage interface {
	// Store persists a sealed record.
	Store(ctx context.Context, record *Record) error

	// Query returns the records matching q, ordered by sequence.
	Query(ctx context.Context, q *Query) ([]*Record, error)

	// Count returns the number of records matching q.
	Count(ctx context.Context, q *Query) (int64, error)

	// Delete removes the records matching q and returns how many were
	// removed.
	Delete(ctx context.Context, q *Query) (int64, error)

	// Last returns the record with the highest sequence, or nil when the
	// trail is empty.
	Last(ctx context.Context) (*Record, error)

	Close() error
}

// Exporter writes records in an external format.
type Exporter interface {
	Export(ctx context.Context, records []*Record, w io.Writer) error
}
