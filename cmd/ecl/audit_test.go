package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"erynoa/eclvm/pkg/audit"
	"erynoa/eclvm/pkg/audit/storage"
)

func seedAudit(t *testing.T, n int) *storage.MemoryStorage {
	t.Helper()
	s := storage.NewMemoryStorage()
	t0 := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	var prev *audit.Record
	for i := 0; i < n; i++ {
		r := &audit.Record{
			ID:      fmt.Sprintf("rec-%d", i),
			Kind:    audit.KindCrossing,
			Time:    t0.Add(time.Duration(i) * time.Minute),
			RealmID: "realm:b",
			Allowed: i%2 == 0,
			Outcome: audit.OutcomeAllowed,
		}
		if !r.Allowed {
			r.Outcome = audit.OutcomeDenied
		}
		audit.Seal(r, prev)
		if err := s.Store(context.Background(), r); err != nil {
			t.Fatalf("Store() error = %v", err)
		}
		prev = r
	}
	return s
}

func TestParseTimeRange(t *testing.T) {
	tests := []struct {
		in                 string
		wantStart, wantEnd bool
		wantErr            bool
	}{
		{"", false, false, false},
		{"2026-01-01T00:00:00Z/2026-02-01T00:00:00Z", true, true, false},
		{"2026-01-01T00:00:00Z/", true, false, false},
		{"/2026-02-01T00:00:00Z", false, true, false},
		{"2026-01-01", false, false, true},
		{"yesterday/today", false, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var q audit.Query
			err := parseTimeRange(tt.in, &q)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseTimeRange() error = %v, wantErr %v", err, tt.wantErr)
			}
			if (q.StartTime != nil) != tt.wantStart || (q.EndTime != nil) != tt.wantEnd {
				t.Errorf("start=%v end=%v", q.StartTime, q.EndTime)
			}
		})
	}
}

func TestAuditQueryFromValues(t *testing.T) {
	q, err := auditQueryFromValues(url.Values{
		"kind": {"crossing"}, "realm": {"realm:b"}, "allowed": {"false"},
		"limit": {"5"}, "offset": {"2"}, "order": {"asc"},
	})
	if err != nil {
		t.Fatalf("auditQueryFromValues() error = %v", err)
	}
	if q.Kind != audit.KindCrossing || q.RealmID != "realm:b" || q.Allowed == nil || *q.Allowed {
		t.Errorf("unexpected filters %+v", q)
	}
	if q.Limit != 5 || q.Offset != 2 || !q.Ascending() {
		t.Errorf("unexpected paging %+v", q)
	}

	if q, _ := auditQueryFromValues(url.Values{}); q.Limit != audit.DefaultLimit {
		t.Errorf("default limit = %d, want %d", q.Limit, audit.DefaultLimit)
	}

	for _, bad := range []url.Values{
		{"limit": {"many"}},
		{"allowed": {"maybe"}},
		{"kind": {"transfer"}},
		{"order": {"random"}},
		{"limit": {"100000"}},
	} {
		if _, err := auditQueryFromValues(bad); err == nil {
			t.Errorf("auditQueryFromValues(%v) succeeded", bad)
		}
	}
}

func TestVerifyTrail(t *testing.T) {
	store := seedAudit(t, 25)

	var last int64
	n, err := verifyTrail(context.Background(), store, func(c int64) { last = c })
	if err != nil {
		t.Fatalf("verifyTrail() error = %v", err)
	}
	if n != 25 || last != 25 {
		t.Errorf("verified %d (progress %d), want 25", n, last)
	}

	// Drop sequence 11 from the middle of the chain.
	gap := &audit.Query{
		SequenceBelow: 12,
		StartTime:     timePtr(time.Date(2026, 5, 1, 0, 10, 0, 0, time.UTC)),
	}
	if _, err := store.Delete(context.Background(), gap); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	_, err = verifyTrail(context.Background(), store, func(int64) {})
	var chainErr *audit.ChainError
	if !errors.As(err, &chainErr) || chainErr.Sequence != 12 {
		t.Errorf("verifyTrail() error = %v, want chain break at 12", err)
	}
}

func timePtr(t time.Time) *time.Time { return &t }

func TestHandleAudit(t *testing.T) {
	tests := []struct {
		name      string
		store     audit.Storage
		query     string
		wantCode  int
		wantTotal int64
		wantLen   int
	}{
		{"disabled", nil, "", http.StatusNotFound, 0, 0},
		{"all", seedAudit(t, 6), "", http.StatusOK, 6, 6},
		{"denied page", seedAudit(t, 6), "?allowed=false&limit=2", http.StatusOK, 3, 2},
		{"bad query", seedAudit(t, 1), "?limit=x", http.StatusBadRequest, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			(&gatewayAPI{audit: tt.store}).Mount(mux)

			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/audit"+tt.query, nil))
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			var body struct {
				Total   int64           `json:"total"`
				Records []*audit.Record `json:"records"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid body: %v", err)
			}
			if body.Total != tt.wantTotal || len(body.Records) != tt.wantLen {
				t.Errorf("total=%d len=%d, want %d/%d", body.Total, len(body.Records), tt.wantTotal, tt.wantLen)
			}
		})
	}
}
