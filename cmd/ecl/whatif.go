package main

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"erynoa/eclvm/pkg/ecl/entrypoints"
	"erynoa/eclvm/pkg/ecl/host/statehost"
	"erynoa/eclvm/pkg/ecl/runner"
)

// whatIfRequest is the body of POST /v1/whatif/{kind}/{key}. The state
// replaces the node's facts for this one run; nothing is persisted.
type whatIfRequest struct {
	Caller      string              `json:"caller"`
	Realm       string              `json:"realm,omitempty"`
	Trust       map[string]float64  `json:"trust,omitempty"`
	Identities  []string            `json:"identities,omitempty"`
	Credentials map[string][]string `json:"credentials,omitempty"`
}

func (r whatIfRequest) view() statehost.MapView {
	ids := make(map[string]bool, len(r.Identities))
	for _, id := range r.Identities {
		ids[id] = true
	}
	return statehost.MapView{TrustByDID: r.Trust, Identities: ids, Credentials: r.Credentials}
}

// handleWhatIf runs an entry point against a hypothetical state snapshot
// and reports the writes and logs it would have produced.
func (a *gatewayAPI) handleWhatIf(w http.ResponseWriter, r *http.Request) {
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
	var req whatIfRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Caller == "" {
		writeError(w, http.StatusBadRequest, errors.New("caller is required"))
		return
	}

	rc := runner.WithLimits(req.Caller, req.Realm, ep.Limits())
	rc.ExecutionID = uuid.NewString()
	h := statehost.New(statehost.Context{
		ExecutionID: rc.ExecutionID,
		Realm:       req.Realm,
		Budget:      rc.Budget,
		View:        req.view(),
	})

	key := r.PathValue("key")
	v, err := ep.RunWithHost(r.Context(), h, kind, key, rc)
	if errors.Is(err, entrypoints.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	manaRemaining, _ := h.GetMetric("budget.mana_remaining")
	resp := map[string]any{
		"kind":           kind,
		"key":            key,
		"execution_id":   rc.ExecutionID,
		"ok":             err == nil,
		"writes":         h.DirtyKeys(),
		"logs":           h.Logs(),
		"gas_used":       rc.Budget.GasUsed(),
		"mana_used":      rc.Budget.ManaUsed(),
		"mana_remaining": manaRemaining,
	}
	if err != nil {
		resp["error"] = err.Error()
	} else {
		resp["value"] = valueJSON(v)
	}
	writeJSON(w, http.StatusOK, resp)
}
