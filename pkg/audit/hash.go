package audit

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/zeebo/blake3"
)

// fieldSep separates fields in the hashed encoding. It cannot appear in
// DIDs, realm names or policy ids accepted by the gateway.
const fieldSep = "\x1f"

// ComputeHash returns the hex BLAKE3 digest of every field of r except
// Hash itself. PrevHash is included, which links the chain.
func ComputeHash(r *Record) string {
	fields := []string{
		strconv.FormatUint(r.Sequence, 10),
		r.ID,
		string(r.Kind),
		strconv.FormatInt(r.Time.UnixNano(), 10),
		r.ExecutionID,
		r.PolicyID,
		r.PolicyType,
		r.RealmID,
		r.FromRealm,
		r.EntityID,
		strconv.FormatBool(r.Allowed),
		string(r.Outcome),
		r.Error,
		strconv.FormatUint(r.GasUsed, 10),
		strconv.FormatUint(r.ManaUsed, 10),
		strconv.FormatUint(r.DurationMicros, 10),
		strconv.FormatFloat(r.TrustScore, 'g', -1, 64),
		r.PrevHash,
	}
	sum := blake3.Sum256([]byte(strings.Join(fields, fieldSep)))
	return hex.EncodeToString(sum[:])
}

// Seal links r to prev and sets its sequence number and hash. A nil prev
// starts a new chain at sequence 1.
func Seal(r *Record, prev *Record) {
	if prev == nil {
		r.Sequence = 1
		r.PrevHash = ""
	} else {
		r.Sequence = prev.Sequence + 1
		r.PrevHash = prev.Hash
	}
	r.Hash = ComputeHash(r)
}

// VerifyChain checks records ordered by ascending sequence. The first
// record's PrevHash is not checked, so a trail pruned from the head still
// verifies.
func VerifyChain(records []*Record) error {
	for i, r := range records {
		if got := ComputeHash(r); got != r.Hash {
			return &ChainError{Sequence: r.Sequence, Reason: "record hash does not match its contents"}
		}
		if i == 0 {
			continue
		}
		prev := records[i-1]
		if r.Sequence != prev.Sequence+1 {
			return &ChainError{
				Sequence: r.Sequence,
				Reason:   "missing records after sequence " + strconv.FormatUint(prev.Sequence, 10),
			}
		}
		if r.PrevHash != prev.Hash {
			return &ChainError{Sequence: r.Sequence, Reason: "previous hash does not match"}
		}
	}
	return nil
}
