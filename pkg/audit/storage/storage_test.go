package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"erynoa/eclvm/pkg/audit"
)

var base = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func backends(t *testing.T) map[string]audit.Storage {
	t.Helper()
	sq, err := NewSQLiteStorage(SQLiteConfig{Path: filepath.Join(t.TempDir(), "audit.db")})
	if err != nil {
		t.Fatalf("NewSQLiteStorage() error = %v", err)
	}
	t.Cleanup(func() { sq.Close() })
	return map[string]audit.Storage{
		"memory": NewMemoryStorage(),
		"sqlite": sq,
	}
}

// fill stores n chained records, alternating realms and outcomes.
func fill(t *testing.T, s audit.Storage, n int) []*audit.Record {
	t.Helper()
	var prev *audit.Record
	var out []*audit.Record
	for i := 0; i < n; i++ {
		r := &audit.Record{
			ID:       "rec-" + string(rune('a'+i)),
			Kind:     audit.KindPolicy,
			Time:     base.Add(time.Duration(i) * time.Minute),
			PolicyID: "entry",
			RealmID:  []string{"finance", "public"}[i%2],
			EntityID: "did:erynoa:alice",
			Allowed:  i%2 == 0,
			Outcome:  []audit.Outcome{audit.OutcomeAllowed, audit.OutcomeRejected}[i%2],
			GasUsed:  uint64(100 + i),
		}
		audit.Seal(r, prev)
		if err := s.Store(context.Background(), r); err != nil {
			t.Fatalf("Store() error = %v", err)
		}
		prev = r
		out = append(out, r)
	}
	return out
}

func TestStorage_QueryFilters(t *testing.T) {
	yes := true
	end := base.Add(2 * time.Minute)

	tests := []struct {
		name  string
		query audit.Query
		want  []uint64
	}{
		{"all newest first", audit.Query{}, []uint64{6, 5, 4, 3, 2, 1}},
		{"ascending", audit.Query{SortOrder: "asc"}, []uint64{1, 2, 3, 4, 5, 6}},
		{"realm", audit.Query{RealmID: "public", SortOrder: "asc"}, []uint64{2, 4, 6}},
		{"allowed", audit.Query{Allowed: &yes}, []uint64{5, 3, 1}},
		{"outcome", audit.Query{Outcome: audit.OutcomeRejected, Limit: 2}, []uint64{6, 4}},
		{"end time", audit.Query{EndTime: &end, SortOrder: "asc"}, []uint64{1, 2, 3}},
		{"sequence below", audit.Query{SequenceBelow: 3}, []uint64{2, 1}},
		{"offset", audit.Query{Offset: 4}, []uint64{2, 1}},
		{"offset past end", audit.Query{Offset: 10}, nil},
	}

	for name, s := range backends(t) {
		fill(t, s, 6)
		for _, tt := range tests {
			t.Run(name+"/"+tt.name, func(t *testing.T) {
				got, err := s.Query(context.Background(), &tt.query)
				if err != nil {
					t.Fatalf("Query() error = %v", err)
				}
				if len(got) != len(tt.want) {
					t.Fatalf("Query() returned %d records, want %d", len(got), len(tt.want))
				}
				for i, r := range got {
					if r.Sequence != tt.want[i] {
						t.Errorf("record %d sequence = %d, want %d", i, r.Sequence, tt.want[i])
					}
				}
			})
		}
	}
}

func TestStorage_RoundTripKeepsChain(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			stored := fill(t, s, 4)
			got, err := s.Query(context.Background(), &audit.Query{SortOrder: "asc"})
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}
			if err := audit.VerifyChain(got); err != nil {
				t.Fatalf("VerifyChain() error = %v", err)
			}
			if !got[2].Time.Equal(stored[2].Time) {
				t.Errorf("Time = %v, want %v", got[2].Time, stored[2].Time)
			}
			if got[2].GasUsed != stored[2].GasUsed {
				t.Errorf("GasUsed = %d, want %d", got[2].GasUsed, stored[2].GasUsed)
			}
		})
	}
}

func TestStorage_CountDeleteLast(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			last, err := s.Last(ctx)
			if err != nil || last != nil {
				t.Fatalf("Last() on empty store = %v, %v; want nil, nil", last, err)
			}
			fill(t, s, 5)

			n, err := s.Count(ctx, &audit.Query{RealmID: "finance"})
			if err != nil || n != 3 {
				t.Fatalf("Count(finance) = %d, %v; want 3", n, err)
			}

			deleted, err := s.Delete(ctx, &audit.Query{SequenceBelow: 3})
			if err != nil || deleted != 2 {
				t.Fatalf("Delete() = %d, %v; want 2", deleted, err)
			}
			n, _ = s.Count(ctx, &audit.Query{})
			if n != 3 {
				t.Errorf("Count() after delete = %d, want 3", n)
			}

			last, err = s.Last(ctx)
			if err != nil || last == nil || last.Sequence != 5 {
				t.Fatalf("Last() = %+v, %v; want sequence 5", last, err)
			}

			rest, _ := s.Query(ctx, &audit.Query{SortOrder: "asc"})
			if err := audit.VerifyChain(rest); err != nil {
				t.Errorf("VerifyChain() after head prune = %v", err)
			}
		})
	}
}

func TestStorage_InvalidQuery(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Query(context.Background(), &audit.Query{SortOrder: "sideways"})
			if err == nil {
				t.Fatal("Query() with bad sort order succeeded")
			}
		})
	}
}
