package storehost

import (
	"context"
	"encoding/json"
	"fmt"

	"erynoa/eclvm/pkg/ecl/host"
	"erynoa/eclvm/pkg/ecl/storage"
)

// schemaKey names a store schema in the registry and the schemas bucket.
func (h *Host) schemaKey(store string) string {
	return h.cfg.Realm + "/" + store
}

// loadSchema restores persisted schema state into the registry on first use.
func (h *Host) loadSchema(ctx context.Context, store string) error {
	key := h.schemaKey(store)
	if h.cfg.Schemas.Has(key) {
		return nil
	}
	data, err := h.cfg.Backend.Get(ctx, storage.BucketSchemas, key)
	if err != nil || data == nil {
		return err
	}
	var rec host.SchemaRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("decode schema %s: %w", key, err)
	}
	h.cfg.Schemas.Restore(key, rec)
	return nil
}

func (h *Host) saveSchema(ctx context.Context, store string) error {
	key := h.schemaKey(store)
	rec, ok := h.cfg.Schemas.Record(key)
	if !ok {
		return nil
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return h.cfg.Backend.Put(ctx, storage.BucketSchemas, key, data)
}

// DefineSchema creates version 1 of a store schema.
func (h *Host) DefineSchema(ctx context.Context, store string, fields map[string]host.FieldType) error {
	if err := h.loadSchema(ctx, store); err != nil {
		return &host.OpError{Op: "schema_define", Err: err}
	}
	if err := h.cfg.Schemas.Define(h.schemaKey(store), h.cfg.Caller, fields); err != nil {
		return &host.OpError{Op: "schema_define", Err: err}
	}
	if err := h.saveSchema(ctx, store); err != nil {
		return &host.OpError{Op: "schema_define", Err: err}
	}
	return nil
}

// EvolveSchema charges the evolution cost and records the new version.
func (h *Host) EvolveSchema(ctx context.Context, store string, changes []host.SchemaChange, description string) (*host.EvolutionResult, error) {
	if err := h.loadSchema(ctx, store); err != nil {
		return nil, &host.OpError{Op: "schema_evolve", Err: err}
	}
	cur, _ := h.cfg.Schemas.Current(h.schemaKey(store))
	if _, err := cur.Apply(changes); err != nil {
		return nil, &host.OpError{Op: "schema_evolve", Err: err}
	}
	if err := h.charge("schema_evolve", h.cfg.Schemas.Cost(changes)); err != nil {
		return nil, err
	}
	res, err := h.cfg.Schemas.Evolve(h.schemaKey(store), h.cfg.Caller, changes, description)
	if err != nil {
		return nil, &host.OpError{Op: "schema_evolve", Err: err}
	}
	if err := h.saveSchema(ctx, store); err != nil {
		return nil, &host.OpError{Op: "schema_evolve", Err: err}
	}
	h.cfg.Logger.Info("schema evolved",
		"store", store,
		"version", res.NewVersion,
		"breaking", res.IsBreaking,
		"mana_cost", res.ManaCost,
	)
	return res, nil
}

func (h *Host) SchemaVersion(ctx context.Context, store string) (uint32, error) {
	if err := h.loadSchema(ctx, store); err != nil {
		return 0, &host.OpError{Op: "schema_version", Err: err}
	}
	return h.cfg.Schemas.Version(h.schemaKey(store)), nil
}

func (h *Host) SchemaHistory(ctx context.Context, store string) (*host.SchemaHistory, error) {
	if err := h.loadSchema(ctx, store); err != nil {
		return nil, &host.OpError{Op: "schema_history", Err: err}
	}
	hist, err := h.cfg.Schemas.History(h.schemaKey(store))
	if err != nil {
		return nil, &host.OpError{Op: "schema_history", Err: err}
	}
	hist.StoreName = store
	return hist, nil
}

func (h *Host) ActivateSchema(ctx context.Context, store string, version uint32) error {
	if err := h.loadSchema(ctx, store); err != nil {
		return &host.OpError{Op: "schema_activate", Err: err}
	}
	if err := h.cfg.Schemas.Activate(h.schemaKey(store), version); err != nil {
		return &host.OpError{Op: "schema_activate", Err: err}
	}
	if err := h.saveSchema(ctx, store); err != nil {
		return &host.OpError{Op: "schema_activate", Err: err}
	}
	return nil
}

func (h *Host) RejectSchema(ctx context.Context, store string, version uint32, reason string) error {
	if err := h.loadSchema(ctx, store); err != nil {
		return &host.OpError{Op: "schema_reject", Err: err}
	}
	if err := h.cfg.Schemas.Reject(h.schemaKey(store), version, reason); err != nil {
		return &host.OpError{Op: "schema_reject", Err: err}
	}
	if err := h.saveSchema(ctx, store); err != nil {
		return &host.OpError{Op: "schema_reject", Err: err}
	}
	return nil
}

func (h *Host) EvolutionCost(changes []host.SchemaChange) uint64 {
	return h.cfg.Schemas.Cost(changes)
}
