package export

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"erynoa/eclvm/pkg/audit"
)

// CSVExporter writes one row per record.
type CSVExporter struct {
	// IncludeHeader writes a header row first.
	IncludeHeader bool
}

// NewCSVExporter creates a CSV exporter.
func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{IncludeHeader: includeHeader}
}

var csvHeader = []string{
	"id", "sequence", "kind", "time",
	"execution_id", "policy_id", "policy_type",
	"realm_id", "from_realm", "entity_id",
	"allowed", "outcome", "error",
	"gas_used", "mana_used", "duration_us", "trust_score",
	"prev_hash", "hash",
}

// Export writes records to w.
func (e *CSVExporter) Export(ctx context.Context, records []*audit.Record, w io.Writer) error {
	writer := csv.NewWriter(w)

	if e.IncludeHeader {
		if err := writer.Write(csvHeader); err != nil {
			return audit.NewExportError("csv", len(records), err)
		}
	}
	for i, r := range records {
		// Large exports check for cancellation every 100 rows.
		if i%100 == 0 {
			if err := ctx.Err(); err != nil {
				return audit.NewExportError("csv", len(records), err)
			}
		}
		if err := writer.Write(recordToRow(r)); err != nil {
			return audit.NewExportError("csv", len(records), err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return audit.NewExportError("csv", len(records), err)
	}
	return nil
}

func recordToRow(r *audit.Record) []string {
	return []string{
		r.ID,
		strconv.FormatUint(r.Sequence, 10),
		string(r.Kind),
		r.Time.UTC().Format(time.RFC3339Nano),
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
		strconv.FormatFloat(r.TrustScore, 'f', -1, 64),
		r.PrevHash,
		r.Hash,
	}
}
