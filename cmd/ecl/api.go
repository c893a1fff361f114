package main

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"sort"
	"strconv"

	"erynoa/eclvm/pkg/audit"
	"erynoa/eclvm/pkg/ecl/budget"
	"erynoa/eclvm/pkg/ecl/bytecode"
	"erynoa/eclvm/pkg/ecl/entrypoints"
	"erynoa/eclvm/pkg/ecl/gateway"
	"erynoa/eclvm/pkg/ecl/host"
	"erynoa/eclvm/pkg/ecl/host/storehost"
	"erynoa/eclvm/pkg/ecl/mana"
	"erynoa/eclvm/pkg/ecl/runner"
)

const maxRequestBytes = 64 << 10

// admissionRequest is the body of POST /v1/entry and POST /v1/crossing.
// Trust defaults to the facts known for the DID.
type admissionRequest struct {
	DID   string    `json:"did"`
	Trust []float64 `json:"trust,omitempty"`
	Realm string    `json:"realm,omitempty"`
	From  string    `json:"from,omitempty"`
	To    string    `json:"to,omitempty"`
}

// decisionResponse is the JSON form of gateway.Decision.
type decisionResponse struct {
	Allowed        bool      `json:"allowed"`
	Sender         string    `json:"sender"`
	TargetRealm    string    `json:"target_realm"`
	Policy         string    `json:"policy"`
	Message        string    `json:"message,omitempty"`
	GasUsed        uint64    `json:"gas_used"`
	ManaUsed       uint64    `json:"mana_used"`
	DurationMicros uint64    `json:"duration_us"`
	ExecutionID    string    `json:"execution_id,omitempty"`
	EffectiveTrust []float64 `json:"effective_trust"`
}

func newDecisionResponse(d *gateway.Decision) decisionResponse {
	return decisionResponse{
		Allowed:        d.Allowed,
		Sender:         d.Sender,
		TargetRealm:    d.TargetRealm,
		Policy:         d.PolicyName,
		Message:        d.Message,
		GasUsed:        d.GasUsed,
		ManaUsed:       d.ManaUsed,
		DurationMicros: d.DurationMicros,
		ExecutionID:    d.ExecutionID,
		EffectiveTrust: d.EffectiveTrust[:],
	}
}

// gatewayAPI serves admission decisions over HTTP.
type gatewayAPI struct {
	gateway *gateway.Gateway
	facts   host.Facts
	// audit is nil when the audit trail is disabled.
	audit audit.Storage
	// entry returns the current entry point registries, or nil.
	entry func() *entrypoints.Entrypoints
	// hosts opens a storage-backed host for one caller in one realm,
	// charging b. Nil disables the store and schema routes, and entry
	// points then run against their registered host.
	hosts func(caller, realm string, b *budget.Budget) (*storehost.Host, error)
	// limits bound every request budget. Zero means budget.DefaultLimits().
	limits budget.Limits
}

func (a *gatewayAPI) newBudget() *budget.Budget {
	if a.limits == (budget.Limits{}) {
		return budget.New(budget.DefaultLimits())
	}
	return budget.New(a.limits)
}

// entrypointRequest is the body of POST /v1/entrypoints/{kind}/{key}.
type entrypointRequest struct {
	Caller string `json:"caller"`
	Realm  string `json:"realm"`
}

// Mount registers the API routes on mux.
func (a *gatewayAPI) Mount(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/entry", a.handleEntry)
	mux.HandleFunc("POST /v1/crossing", a.handleCrossing)
	mux.HandleFunc("GET /v1/realms", a.handleRealms)
	mux.HandleFunc("GET /v1/realms/{realm}/policies", a.handlePolicies)
	mux.HandleFunc("GET /v1/mana/{did}", a.handleMana)
	mux.HandleFunc("GET /v1/audit", a.handleAudit)
	mux.HandleFunc("GET /v1/entrypoints", a.handleEntrypoints)
	mux.HandleFunc("POST /v1/entrypoints/{kind}/{key}", a.handleRunEntrypoint)
	mux.HandleFunc("POST /v1/whatif/{kind}/{key}", a.handleWhatIf)
	a.mountStores(mux)
}

func (a *gatewayAPI) handleEntry(w http.ResponseWriter, r *http.Request) {
	req, trust, ok := a.decode(w, r)
	if !ok {
		return
	}
	if req.Realm == "" {
		writeError(w, http.StatusBadRequest, errors.New("realm is required"))
		return
	}
	d, err := a.gateway.ValidateEntry(r.Context(), req.DID, trust, req.Realm)
	a.respond(w, d, err)
}

func (a *gatewayAPI) handleCrossing(w http.ResponseWriter, r *http.Request) {
	req, trust, ok := a.decode(w, r)
	if !ok {
		return
	}
	if req.From == "" || req.To == "" {
		writeError(w, http.StatusBadRequest, errors.New("from and to are required"))
		return
	}
	d, err := a.gateway.ValidateCrossing(r.Context(), req.DID, trust, req.From, req.To)
	a.respond(w, d, err)
}

func (a *gatewayAPI) handleRealms(w http.ResponseWriter, _ *http.Request) {
	realms := a.gateway.Realms()
	sort.Strings(realms)
	writeJSON(w, http.StatusOK, map[string][]string{"realms": realms})
}

func (a *gatewayAPI) handlePolicies(w http.ResponseWriter, r *http.Request) {
	type policyInfo struct {
		Name         string `json:"name"`
		Description  string `json:"description,omitempty"`
		EstimatedGas uint64 `json:"estimated_gas"`
	}
	out := make(map[string][]policyInfo)
	for kind, policies := range a.gateway.Policies(r.PathValue("realm")) {
		for _, p := range policies {
			out[kind] = append(out[kind], policyInfo{Name: p.Name, Description: p.Description, EstimatedGas: p.EstimatedGas})
		}
		sort.Slice(out[kind], func(i, j int) bool { return out[kind][i].Name < out[kind][j].Name })
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *gatewayAPI) handleMana(w http.ResponseWriter, r *http.Request) {
	did := r.PathValue("did")
	trust, err := a.facts.GetTrustVector(r.Context(), did)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	status, ok := a.gateway.ManaStatus(did, trust)
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("mana accounting is not enabled"))
		return
	}
	writeJSON(w, http.StatusOK, struct {
		DID string `json:"did"`
		mana.Status
	}{did, status})
}

func (a *gatewayAPI) handleAudit(w http.ResponseWriter, r *http.Request) {
	if a.audit == nil {
		writeError(w, http.StatusNotFound, errors.New("audit trail is not enabled"))
		return
	}
	q, err := auditQueryFromValues(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	records, err := a.audit.Query(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	total, err := a.audit.Count(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Total   int64           `json:"total"`
		Records []*audit.Record `json:"records"`
	}{total, records})
}

func (a *gatewayAPI) registries() *entrypoints.Entrypoints {
	if a.entry == nil {
		return nil
	}
	return a.entry()
}

func (a *gatewayAPI) handleEntrypoints(w http.ResponseWriter, _ *http.Request) {
	out := make(map[string][]string, len(entrypoints.Kinds))
	if ep := a.registries(); ep != nil {
		for _, k := range entrypoints.Kinds {
			out[string(k)] = ep.Keys(k)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *gatewayAPI) handleRunEntrypoint(w http.ResponseWriter, r *http.Request) {
	ep := a.registries()
	if ep == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("no policy set loaded"))
		return
	}
	kind := entrypoints.Kind(r.PathValue("kind"))
	if !kind.Valid() {
		writeError(w, http.StatusNotFound, errors.New("unknown entry point kind "+string(kind)))
		return
	}
	var req entrypointRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Caller == "" {
		writeError(w, http.StatusBadRequest, errors.New("caller is required"))
		return
	}

	key := r.PathValue("key")
	var v bytecode.Value
	var err error
	if a.hosts == nil {
		v, err = ep.Run(r.Context(), kind, key, req.Caller, req.Realm)
	} else {
		// Store writes made by the handler are charged to the run budget
		// and land in the caller's personal stores.
		b := budget.New(ep.Limits())
		var h *storehost.Host
		if h, err = a.hosts(req.Caller, req.Realm, b); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		v, err = ep.RunWithHost(r.Context(), h, kind, key, runner.NewContext(req.Caller, req.Realm, b))
	}
	writeRunResult(w, kind, key, v, err)
}

func writeRunResult(w http.ResponseWriter, kind entrypoints.Kind, key string, v bytecode.Value, err error) {
	switch {
	case errors.Is(err, entrypoints.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, err)
	case err != nil:
		// A failed run is a decision, not a server fault.
		writeJSON(w, http.StatusOK, map[string]any{"kind": kind, "key": key, "ok": false, "error": err.Error()})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"kind": kind, "key": key, "ok": true, "value": valueJSON(v)})
	}
}

// valueJSON maps a VM value onto JSON types.
func valueJSON(v bytecode.Value) any {
	switch v.Kind() {
	case bytecode.KindBool:
		b, _ := v.AsBool()
		return b
	case bytecode.KindNumber:
		n, _ := v.AsNumber()
		return n
	case bytecode.KindString, bytecode.KindDID:
		s, _ := v.AsString()
		return s
	case bytecode.KindTrustVector:
		tv, _ := v.AsTrustVector()
		return tv[:]
	case bytecode.KindArray:
		items, _ := v.AsArray()
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = valueJSON(item)
		}
		return out
	default:
		return nil
	}
}

func (a *gatewayAPI) decode(w http.ResponseWriter, r *http.Request) (admissionRequest, bytecode.TrustVector, bool) {
	var req admissionRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return req, bytecode.TrustVector{}, false
	}
	if req.DID == "" {
		writeError(w, http.StatusBadRequest, errors.New("did is required"))
		return req, bytecode.TrustVector{}, false
	}
	var trust bytecode.TrustVector
	var err error
	if len(req.Trust) > 0 {
		trust, err = parseTrust(req.Trust)
	} else {
		trust, err = a.facts.GetTrustVector(r.Context(), req.DID)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return req, bytecode.TrustVector{}, false
	}
	return req, trust, true
}

func (a *gatewayAPI) respond(w http.ResponseWriter, d *gateway.Decision, err error) {
	var limited *mana.RateLimitedError
	switch {
	case errors.As(err, &limited):
		w.Header().Set("Retry-After", retryAfterSeconds(limited))
		writeError(w, http.StatusTooManyRequests, err)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, newDecisionResponse(d))
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func retryAfterSeconds(e *mana.RateLimitedError) string {
	secs := int(math.Ceil(e.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
