package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"erynoa/eclvm/pkg/audit"
	"erynoa/eclvm/pkg/audit/recorder"
	"erynoa/eclvm/pkg/audit/storage"
	"erynoa/eclvm/pkg/ecl/bytecode"
	"erynoa/eclvm/pkg/ecl/entrypoints"
	"erynoa/eclvm/pkg/ecl/host"
	"erynoa/eclvm/pkg/ecl/runner"
	"erynoa/eclvm/pkg/telemetry/logging"
)

func trustGate(threshold float64) bytecode.Program {
	return bytecode.Program{
		bytecode.Simple(bytecode.OpLoadTrust),
		bytecode.TrustDim(bytecode.DimR),
		bytecode.Push(bytecode.Number(threshold)),
		bytecode.Simple(bytecode.OpGte),
		bytecode.Simple(bytecode.OpReturn),
	}
}

func TestHandleRunEntrypoint(t *testing.T) {
	store := storage.NewMemoryStorage()
	rec, err := recorder.New(context.Background(), store, recorder.DefaultConfig(), recorder.WithLogger(logging.Discard()))
	if err != nil {
		t.Fatalf("recorder.New() error = %v", err)
	}

	h := host.NewStubHost().WithTrust("did:alice", bytecode.TrustVector{0.9, 0.9, 0.9, 0.9, 0.9, 0.9})
	ep := entrypoints.New(h,
		entrypoints.WithRunner(runner.New(runner.WithObserver(rec))),
		entrypoints.WithLogger(logging.Discard()),
	)
	if err := ep.Register(entrypoints.API, "payments", trustGate(0.5)); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	mux := http.NewServeMux()
	(&gatewayAPI{entry: func() *entrypoints.Entrypoints { return ep }}).Mount(mux)

	tests := []struct {
		name      string
		path      string
		body      string
		wantCode  int
		wantValue any
	}{
		{"allowed", "/v1/entrypoints/api/payments", `{"caller":"did:alice","realm":"realm:main"}`, http.StatusOK, true},
		{"denied", "/v1/entrypoints/api/payments", `{"caller":"did:bob","realm":"realm:main"}`, http.StatusOK, false},
		{"unknown key", "/v1/entrypoints/api/refunds", `{"caller":"did:alice"}`, http.StatusNotFound, nil},
		{"unknown kind", "/v1/entrypoints/cron/payments", `{"caller":"did:alice"}`, http.StatusNotFound, nil},
		{"missing caller", "/v1/entrypoints/api/payments", `{}`, http.StatusBadRequest, nil},
		{"unknown field", "/v1/entrypoints/api/payments", `{"caller":"did:alice","extra":1}`, http.StatusBadRequest, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body)))
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantCode, w.Body.String())
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			var body map[string]any
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid body: %v", err)
			}
			if body["ok"] != true || body["value"] != tt.wantValue {
				t.Errorf("body = %v, want value %v", body, tt.wantValue)
			}
		})
	}

	if err := rec.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	records, _ := store.Query(context.Background(), &audit.Query{SortOrder: "asc"})
	if len(records) != 2 {
		t.Fatalf("audit trail has %d records, want 2", len(records))
	}
	if records[0].PolicyID != "payments" || records[0].Outcome != audit.OutcomeAllowed || records[0].EntityID != "did:alice" {
		t.Errorf("first record = %+v", records[0])
	}
	if records[1].Outcome != audit.OutcomeDenied {
		t.Errorf("second record outcome = %s, want denied", records[1].Outcome)
	}
	if err := audit.VerifyChain(records); err != nil {
		t.Errorf("VerifyChain() error = %v", err)
	}
}

func TestHandleEntrypoints(t *testing.T) {
	mux := http.NewServeMux()
	(&gatewayAPI{}).Mount(mux)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/entrypoints", nil))
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "{}" {
		t.Errorf("without registries: %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/entrypoints/api/x", strings.NewReader(`{"caller":"did:a"}`)))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("run without registries: status %d", w.Code)
	}
}

func TestValueJSON(t *testing.T) {
	tests := []struct {
		in   bytecode.Value
		want any
	}{
		{bytecode.Null(), nil},
		{bytecode.Bool(true), true},
		{bytecode.Number(2.5), 2.5},
		{bytecode.String("ok"), "ok"},
		{bytecode.DID("did:erynoa:self:x"), "did:erynoa:self:x"},
		{bytecode.Trust(bytecode.TrustVector{1, 0, 0, 0, 0, 0.5}), []float64{1, 0, 0, 0, 0, 0.5}},
		{bytecode.Array(bytecode.Number(1), bytecode.Bool(false)), []any{1.0, false}},
	}
	for _, tt := range tests {
		t.Run(tt.in.TypeName(), func(t *testing.T) {
			if got := valueJSON(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("valueJSON(%v) = %#v, want %#v", tt.in, got, tt.want)
			}
		})
	}
}
