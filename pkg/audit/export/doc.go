// Package export writes audit records as JSON or CSV.
//
// Both exporters implement audit.Exporter:
//
//	exp, err := export.ForFormat("csv")
//	if err != nil {
//		return err
//	}
//	records, _ := store.Query(ctx, &audit.Query{SortOrder: "asc"})
//	return exp.Export(ctx, records, os.Stdout)
package export

import (
	"fmt"

	"erynoa/eclvm/pkg/audit"
)

// ForFormat returns the exporter for "json", "json-pretty" or "csv".
func ForFormat(format string) (audit.Exporter, error) {
	switch format {
	case "json":
		return NewJSONExporter(false), nil
	case "json-pretty":
		return NewJSONExporter(true), nil
	case "csv":
		return NewCSVExporter(true), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q (want json, json-pretty or csv)", format)
	}
}
