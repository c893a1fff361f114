package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"erynoa/eclvm/pkg/ecl/host"
	"erynoa/eclvm/pkg/ecl/host/storehost"
)

// storeWriteRequest is the body of PUT /v1/stores/{realm}/{store}/{key}.
type storeWriteRequest struct {
	Caller   string          `json:"caller"`
	Personal bool            `json:"personal,omitempty"`
	Value    host.StoreValue `json:"value"`
}

// schemaEvolveRequest is the body of POST /v1/schemas/{realm}/{store}.
type schemaEvolveRequest struct {
	Caller      string              `json:"caller"`
	Changes     []host.SchemaChange `json:"changes"`
	Description string              `json:"description,omitempty"`
	// DryRun only reports the mana cost.
	DryRun bool `json:"dry_run,omitempty"`
}

// schemaRejectRequest is the body of POST .../{version}/reject.
type schemaRejectRequest struct {
	Reason string `json:"reason"`
}

func (a *gatewayAPI) mountStores(mux *http.ServeMux) {
	if a.hosts == nil {
		return
	}
	mux.HandleFunc("GET /v1/stores/{realm}/{store}", a.handleStoreList)
	mux.HandleFunc("GET /v1/stores/{realm}/{store}/{key}", a.handleStoreGet)
	mux.HandleFunc("PUT /v1/stores/{realm}/{store}/{key}", a.handleStorePut)
	mux.HandleFunc("DELETE /v1/stores/{realm}/{store}/{key}", a.handleStoreDelete)
	mux.HandleFunc("GET /v1/schemas/{realm}/{store}", a.handleSchemaHistory)
	mux.HandleFunc("POST /v1/schemas/{realm}/{store}", a.handleSchemaEvolve)
	mux.HandleFunc("POST /v1/schemas/{realm}/{store}/{version}/activate", a.handleSchemaActivate)
	mux.HandleFunc("POST /v1/schemas/{realm}/{store}/{version}/reject", a.handleSchemaReject)
}

// storeRef reads the store name from the path and scope from ?personal=.
func storeRef(r *http.Request) (host.StoreRef, error) {
	ref := host.StoreRef{Name: r.PathValue("store")}
	if p := r.URL.Query().Get("personal"); p != "" {
		personal, err := strconv.ParseBool(p)
		if err != nil {
			return ref, fmt.Errorf("invalid personal flag %q", p)
		}
		ref.Personal = personal
	}
	return ref, nil
}

// readHost opens an unbudgeted host for the caller named in ?caller=.
// Personal stores need a caller.
func (a *gatewayAPI) readHost(w http.ResponseWriter, r *http.Request) (*storehost.Host, host.StoreRef, bool) {
	ref, err := storeRef(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return nil, ref, false
	}
	caller := r.URL.Query().Get("caller")
	if ref.Personal && caller == "" {
		writeError(w, http.StatusBadRequest, errors.New("caller is required for personal stores"))
		return nil, ref, false
	}
	h, err := a.hosts(caller, r.PathValue("realm"), nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return nil, ref, false
	}
	return h, ref, true
}

func (a *gatewayAPI) handleStoreList(w http.ResponseWriter, r *http.Request) {
	h, ref, ok := a.readHost(w, r)
	if !ok {
		return
	}
	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", l))
			return
		}
		limit = n
	}
	keys, err := h.StoreListKeys(r.Context(), ref, r.URL.Query().Get("prefix"), limit)
	if err != nil {
		writeHostError(w, err)
		return
	}
	count, err := h.StoreCount(r.Context(), ref)
	if err != nil {
		writeHostError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"store": ref.String(), "count": count, "keys": keys})
}

func (a *gatewayAPI) handleStoreGet(w http.ResponseWriter, r *http.Request) {
	h, ref, ok := a.readHost(w, r)
	if !ok {
		return
	}
	key := r.PathValue("key")
	v, err := h.StoreGet(r.Context(), ref, key)
	if err != nil {
		writeHostError(w, err)
		return
	}
	if v == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("key %q not found in %s", key, ref))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"store": ref.String(), "key": key, "value": v})
}

func (a *gatewayAPI) handleStorePut(w http.ResponseWriter, r *http.Request) {
	var req storeWriteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Caller == "" {
		writeError(w, http.StatusBadRequest, errors.New("caller is required"))
		return
	}
	ref := host.StoreRef{Name: r.PathValue("store"), Personal: req.Personal}
	b := a.newBudget()
	h, err := a.hosts(req.Caller, r.PathValue("realm"), b)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	key := r.PathValue("key")
	if err := h.StorePut(r.Context(), ref, key, req.Value); err != nil {
		writeHostError(w, err)
		return
	}
	remaining, _ := h.GetMetric("budget.mana_remaining")
	writeJSON(w, http.StatusOK, map[string]any{
		"store":          ref.String(),
		"key":            key,
		"mana_used":      b.ManaUsed(),
		"mana_remaining": remaining,
	})
}

func (a *gatewayAPI) handleStoreDelete(w http.ResponseWriter, r *http.Request) {
	h, ref, ok := a.readHost(w, r)
	if !ok {
		return
	}
	existed, err := h.StoreDelete(r.Context(), ref, r.PathValue("key"))
	if err != nil {
		writeHostError(w, err)
		return
	}
	if !existed {
		writeError(w, http.StatusNotFound, fmt.Errorf("key %q not found in %s", r.PathValue("key"), ref))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *gatewayAPI) handleSchemaHistory(w http.ResponseWriter, r *http.Request) {
	h, err := a.hosts("", r.PathValue("realm"), nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	hist, err := h.SchemaHistory(r.Context(), r.PathValue("store"))
	if err != nil {
		writeHostError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hist)
}

func (a *gatewayAPI) handleSchemaEvolve(w http.ResponseWriter, r *http.Request) {
	var req schemaEvolveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Caller == "" {
		writeError(w, http.StatusBadRequest, errors.New("caller is required"))
		return
	}
	b := a.newBudget()
	h, err := a.hosts(req.Caller, r.PathValue("realm"), b)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if req.DryRun {
		writeJSON(w, http.StatusOK, map[string]any{"mana_cost": h.EvolutionCost(req.Changes)})
		return
	}
	res, err := h.EvolveSchema(r.Context(), r.PathValue("store"), req.Changes, req.Description)
	if err != nil {
		writeHostError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *gatewayAPI) handleSchemaActivate(w http.ResponseWriter, r *http.Request) {
	a.schemaTransition(w, r, func(h *storehost.Host, store string, version uint32) error {
		return h.ActivateSchema(r.Context(), store, version)
	})
}

func (a *gatewayAPI) handleSchemaReject(w http.ResponseWriter, r *http.Request) {
	var req schemaRejectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	a.schemaTransition(w, r, func(h *storehost.Host, store string, version uint32) error {
		return h.RejectSchema(r.Context(), store, version, req.Reason)
	})
}

// schemaTransition parses the version, applies fn and reports the new
// active version.
func (a *gatewayAPI) schemaTransition(w http.ResponseWriter, r *http.Request, fn func(*storehost.Host, string, uint32) error) {
	version, err := strconv.ParseUint(r.PathValue("version"), 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid version %q", r.PathValue("version")))
		return
	}
	h, err := a.hosts("", r.PathValue("realm"), nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	store := r.PathValue("store")
	if err := fn(h, store, uint32(version)); err != nil {
		writeHostError(w, err)
		return
	}
	current, err := h.SchemaVersion(r.Context(), store)
	if err != nil {
		writeHostError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"store": store, "current_version": current})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

// writeHostError maps host capability errors onto status codes.
func writeHostError(w http.ResponseWriter, err error) {
	var challenge *host.ChallengeActiveError
	switch {
	case errors.Is(err, host.ErrInsufficientMana):
		writeError(w, http.StatusTooManyRequests, err)
	case errors.Is(err, host.ErrSchemaNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, host.ErrInvalidSchemaChange):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, host.ErrNotPending), errors.As(err, &challenge):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, host.ErrNotSupported):
		writeError(w, http.StatusNotImplemented, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}
