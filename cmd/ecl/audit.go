package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"erynoa/eclvm/pkg/audit"
	"erynoa/eclvm/pkg/audit/export"
	"erynoa/eclvm/pkg/audit/retention"
	"erynoa/eclvm/pkg/cli"
)

var auditFlags struct {
	timeRange  string
	kind       string
	policy     string
	realm      string
	entity     string
	outcome    string
	denied     bool
	limit      int
	offset     int
	format     string
	output     string
	maxAge     time.Duration
	maxRecords int64
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the decision audit trail",
	Long: `Query, export, verify and prune the hash-chained audit trail written by
"ecl serve" when audit.enabled is set. The trail is read from audit.path.

Examples:
  ecl audit query --realm realm:finance --denied
  ecl audit export --format csv -o audit.csv
  ecl audit verify
  ecl audit prune --max-age 720h`,
}

var auditQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "List audit records, newest first",
	Long: `List audit records matching the filters.

Time Range Format:
  RFC3339 interval format: "start/end", either side may be empty
  Example: "2026-01-01T00:00:00Z/2026-02-01T00:00:00Z"`,
	Args: cobra.NoArgs,
	RunE: auditQuery,
}

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export audit records as JSON or CSV, oldest first",
	Args:  cobra.NoArgs,
	RunE:  auditExport,
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the hash chain of the whole trail",
	Args:  cobra.NoArgs,
	RunE:  auditVerify,
}

var auditPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Apply the retention policy once",
	Args:  cobra.NoArgs,
	RunE:  auditPrune,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditQueryCmd, auditExportCmd, auditVerifyCmd, auditPruneCmd)

	for _, c := range []*cobra.Command{auditQueryCmd, auditExportCmd} {
		c.Flags().StringVar(&auditFlags.timeRange, "time-range", "", "time range (RFC3339 interval: start/end)")
		c.Flags().StringVar(&auditFlags.kind, "kind", "", "filter by kind: policy or crossing")
		c.Flags().StringVar(&auditFlags.policy, "policy", "", "filter by policy id")
		c.Flags().StringVar(&auditFlags.realm, "realm", "", "filter by target realm")
		c.Flags().StringVar(&auditFlags.entity, "entity", "", "filter by entity DID")
		c.Flags().StringVar(&auditFlags.outcome, "outcome", "", "filter by outcome, e.g. denied or out_of_gas")
		c.Flags().BoolVar(&auditFlags.denied, "denied", false, "only records that were not allowed")
		c.Flags().IntVar(&auditFlags.offset, "offset", 0, "pagination offset")
	}
	auditQueryCmd.Flags().IntVar(&auditFlags.limit, "limit", audit.DefaultLimit, "max results")
	auditQueryCmd.Flags().StringVar(&auditFlags.format, "format", "text", "output format: text or json")
	auditExportCmd.Flags().IntVar(&auditFlags.limit, "limit", 0, "max records (0 exports everything)")
	auditExportCmd.Flags().StringVar(&auditFlags.format, "format", "json", "export format: json, json-pretty or csv")
	auditExportCmd.Flags().StringVarP(&auditFlags.output, "output", "o", "", "output file (default: stdout)")
	auditPruneCmd.Flags().DurationVar(&auditFlags.maxAge, "max-age", 0, "override audit.retention.max_age")
	auditPruneCmd.Flags().Int64Var(&auditFlags.maxRecords, "max-records", 0, "override audit.retention.max_records")
}

// openAuditTrail opens the configured persistent trail. A memory trail
// only exists inside a running node, so it cannot be inspected here.
func openAuditTrail() (audit.Storage, error) {
	cfg := runtimeConfig().Audit
	if cfg.Path == "" {
		return nil, cli.NewConfigError("audit.path", "audit commands need a persistent trail; set audit.path")
	}
	store, err := openAuditStorage(cfg)
	if err != nil {
		return nil, cli.NewCommandError("audit", err)
	}
	return store, nil
}

func auditQueryFromFlags() (*audit.Query, error) {
	q := &audit.Query{
		Kind:     audit.Kind(auditFlags.kind),
		PolicyID: auditFlags.policy,
		RealmID:  auditFlags.realm,
		EntityID: auditFlags.entity,
		Outcome:  audit.Outcome(auditFlags.outcome),
		Limit:    auditFlags.limit,
		Offset:   auditFlags.offset,
	}
	if auditFlags.denied {
		no := false
		q.Allowed = &no
	}
	if err := parseTimeRange(auditFlags.timeRange, q); err != nil {
		return nil, err
	}
	return q, nil
}

// parseTimeRange parses "start/end" into q. Either side may be empty.
func parseTimeRange(s string, q *audit.Query) error {
	if s == "" {
		return nil
	}
	start, end, ok := strings.Cut(s, "/")
	if !ok {
		return fmt.Errorf("invalid time range %q (expected start/end)", s)
	}
	if start != "" {
		t, err := time.Parse(time.RFC3339, start)
		if err != nil {
			return fmt.Errorf("invalid start time: %w", err)
		}
		q.StartTime = &t
	}
	if end != "" {
		t, err := time.Parse(time.RFC3339, end)
		if err != nil {
			return fmt.Errorf("invalid end time: %w", err)
		}
		q.EndTime = &t
	}
	return nil
}

// auditQueryFromValues builds a query from URL parameters of GET /v1/audit.
func auditQueryFromValues(v url.Values) (*audit.Query, error) {
	q := &audit.Query{
		Kind:      audit.Kind(v.Get("kind")),
		PolicyID:  v.Get("policy"),
		RealmID:   v.Get("realm"),
		EntityID:  v.Get("entity"),
		Outcome:   audit.Outcome(v.Get("outcome")),
		SortOrder: v.Get("order"),
		Limit:     audit.DefaultLimit,
	}
	if err := parseTimeRange(v.Get("range"), q); err != nil {
		return nil, err
	}
	for name, dst := range map[string]*int{"limit": &q.Limit, "offset": &q.Offset} {
		if s := v.Get(name); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil {
				return nil, fmt.Errorf("invalid %s: %w", name, err)
			}
			*dst = n
		}
	}
	if s := v.Get("allowed"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("invalid allowed: %w", err)
		}
		q.Allowed = &b
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return q, nil
}

func auditQuery(cmd *cobra.Command, _ []string) error {
	format, err := cli.ParseOutputFormat(auditFlags.format)
	if err != nil {
		return err
	}
	q, err := auditQueryFromFlags()
	if err != nil {
		return err
	}
	store, err := openAuditTrail()
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.Query(commandContext(cmd), q)
	if err != nil {
		return err
	}
	if format == cli.FormatJSON {
		return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), records)
	}
	return printAuditTable(cmd.OutOrStdout(), records)
}

func printAuditTable(w io.Writer, records []*audit.Record) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tTIME\tKIND\tREALM\tPOLICY\tENTITY\tOUTCOME\tGAS")
	for _, r := range records {
		realm := r.RealmID
		if r.FromRealm != "" {
			realm = r.FromRealm + " -> " + r.RealmID
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			r.Sequence, r.Time.Format(time.RFC3339), r.Kind, realm,
			r.PolicyID, r.EntityID, r.Outcome, r.GasUsed)
	}
	return tw.Flush()
}

func auditExport(cmd *cobra.Command, _ []string) (err error) {
	exp, err := export.ForFormat(auditFlags.format)
	if err != nil {
		return cli.NewConfigError("format", err.Error())
	}
	q, err := auditQueryFromFlags()
	if err != nil {
		return err
	}
	q.SortOrder = "asc"

	store, err := openAuditTrail()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := commandContext(cmd)
	records, err := store.Query(ctx, q)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if auditFlags.output != "" {
		f, err := os.Create(auditFlags.output)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", auditFlags.output, err)
		}
		defer func() {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}()
		w = f
	}
	if err := exp.Export(ctx, records, w); err != nil {
		return err
	}
	if auditFlags.output != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "exported %d records to %s\n", len(records), auditFlags.output)
	}
	return nil
}

func auditVerify(cmd *cobra.Command, _ []string) error {
	store, err := openAuditTrail()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := commandContext(cmd)
	total, err := store.Count(ctx, &audit.Query{})
	if err != nil {
		return err
	}
	progress := cli.NewProgressReporter(cmd.ErrOrStderr(), "records")
	progress.Start(total)

	checked, err := verifyTrail(ctx, store, progress.Update)
	if err != nil {
		progress.Error(err)
		var chainErr *audit.ChainError
		if errors.As(err, &chainErr) {
			return cli.NewCommandError("audit verify", err)
		}
		return err
	}
	progress.Finish()
	fmt.Fprintf(cmd.OutOrStdout(), "audit chain intact: %d records verified\n", checked)
	return nil
}

// verifyTrail walks the trail in pages, carrying the last record of each
// page into the next so links across page boundaries are checked.
func verifyTrail(ctx context.Context, store audit.Storage, onProgress func(int64)) (int64, error) {
	var (
		checked int64
		prev    *audit.Record
	)
	for offset := 0; ; offset += audit.MaxLimit {
		page, err := store.Query(ctx, &audit.Query{SortOrder: "asc", Limit: audit.MaxLimit, Offset: offset})
		if err != nil {
			return checked, err
		}
		if len(page) == 0 {
			return checked, nil
		}
		window := page
		if prev != nil {
			window = append([]*audit.Record{prev}, page...)
		}
		if err := audit.VerifyChain(window); err != nil {
			return checked, err
		}
		checked += int64(len(page))
		onProgress(checked)
		prev = page[len(page)-1]
		if len(page) < audit.MaxLimit {
			return checked, nil
		}
	}
}

func auditPrune(cmd *cobra.Command, _ []string) error {
	rc := runtimeConfig().Audit.Retention.Pruner()
	if auditFlags.maxAge > 0 {
		rc.MaxAge = auditFlags.maxAge
	}
	if auditFlags.maxRecords > 0 {
		rc.MaxRecords = auditFlags.maxRecords
	}

	store, err := openAuditTrail()
	if err != nil {
		return err
	}
	defer store.Close()

	deleted, err := retention.NewPruner(store, rc, retention.WithLogger(runtimeLogger())).Prune(commandContext(cmd))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "pruned %d audit records\n", deleted)
	return nil
}
