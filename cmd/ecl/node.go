package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"erynoa/eclvm/pkg/audit"
	"erynoa/eclvm/pkg/audit/recorder"
	"erynoa/eclvm/pkg/audit/retention"
	auditstorage "erynoa/eclvm/pkg/audit/storage"
	"erynoa/eclvm/pkg/config"
	"erynoa/eclvm/pkg/ecl/budget"
	"erynoa/eclvm/pkg/ecl/entrypoints"
	"erynoa/eclvm/pkg/ecl/gateway"
	"erynoa/eclvm/pkg/ecl/host"
	"erynoa/eclvm/pkg/ecl/host/storehost"
	"erynoa/eclvm/pkg/ecl/mana"
	"erynoa/eclvm/pkg/ecl/policyset"
	"erynoa/eclvm/pkg/ecl/runner"
	"erynoa/eclvm/pkg/ecl/storage"
	"erynoa/eclvm/pkg/telemetry/metrics"
	"erynoa/eclvm/pkg/telemetry/tracing"
)

// node wires the engine components described by a configuration.
type node struct {
	cfg    *config.Config
	logger *slog.Logger

	facts     host.Facts
	backend   storage.Backend
	archive   *policyset.Archive
	collector *metrics.Collector
	tracer    *tracing.Tracer
	mana      *mana.Manager
	sweeper   *mana.Sweeper
	schemas   *host.SchemaRegistry
	host      host.Host
	runner    *runner.Runner
	gateway   *gateway.Gateway
	watcher   *policyset.Watcher

	// entry holds the entry point registries of the current policy set.
	entry atomic.Pointer[entrypoints.Entrypoints]

	auditStore audit.Storage
	recorder   *recorder.Recorder
	pruner     *retention.Scheduler

	mu sync.Mutex
	// lastReload holds the error of the most recent policy set load.
	lastReload error
	reloaded   chan struct{}
}

// newNode opens storage, telemetry and the gateway for the policy set in
// dir. Close releases everything newNode acquired.
func newNode(ctx context.Context, cfg *config.Config, dir string, facts host.Facts, logger *slog.Logger) (n *node, err error) {
	n = &node{cfg: cfg, logger: logger, facts: facts, reloaded: make(chan struct{}, 1)}
	defer func() {
		if err != nil {
			n.Close(context.Background())
		}
	}()

	if n.backend, err = storage.Open(cfg.Storage); err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	n.archive = policyset.NewArchive(n.backend, true)
	if n.tracer, err = tracing.New(cfg.Telemetry.Tracing.Tracer()); err != nil {
		return nil, fmt.Errorf("failed to create tracer: %w", err)
	}
	n.collector = metrics.NewCollector(cfg.Telemetry.Metrics.Collector(), nil)

	n.schemas = host.NewSchemaRegistry(cfg.Schema.Registry())
	h, err := n.requestHost("", "gateway", nil)
	if err != nil {
		return nil, err
	}

	observer := runner.Observers{n.collector}
	if cfg.Audit.Enabled {
		if err := n.openAudit(ctx); err != nil {
			return nil, err
		}
		observer = append(observer, n.recorder)
	}

	r := runner.New(
		runner.WithLogger(logger),
		runner.WithObserver(observer),
		runner.WithTracer(n.tracer.Tracer()),
	)
	n.host, n.runner = h, r
	n.entry.Store(n.newEntrypoints())
	opts := []gateway.Option{
		gateway.WithLimits(cfg.Engine.Limits()),
		gateway.WithRunner(r),
		gateway.WithObserver(observer),
		gateway.WithLogger(logger),
	}
	if d := cfg.Gateway.DampingFactors(); d != nil {
		opts = append(opts, gateway.WithDamping(*d))
	}
	if cfg.Gateway.Mode == config.GatewayModeManaged {
		n.mana = mana.NewManager(cfg.Mana.Config,
			mana.WithBackend(n.backend),
			mana.WithLogger(logger),
			mana.WithMetrics(mana.NewMetrics(n.collector.Registry())),
		)
		if loaded, err := n.mana.Load(ctx); err != nil {
			logger.Warn("failed to restore mana accounts", "error", err)
		} else {
			logger.Info("mana accounts restored", "count", loaded)
		}
		n.sweeper = mana.NewSweeper(n.mana, cfg.Mana.SweepSchedule, cfg.Mana.MaxIdle)
		if err := n.sweeper.Start(ctx); err != nil {
			return nil, err
		}
		opts = append(opts, gateway.WithManaManager(n.mana))
	}
	n.gateway = gateway.New(h, opts...)

	loader := policyset.NewLoader(cfg.Loader(), logger)
	if n.watcher, err = policyset.NewWatcher(dir, loader, n.gateway, cfg.Policies.Debounce, logger); err != nil {
		return nil, err
	}
	n.watcher.OnReload = n.onReload
	return n, nil
}

// requestHost returns a storage-backed host scoped to realm whose personal
// stores belong to caller. Store writes and schema changes are charged to
// b when it is non-nil. All hosts share the node's schema registry.
func (n *node) requestHost(caller, realm string, b *budget.Budget) (*storehost.Host, error) {
	return storehost.New(storehost.Config{
		Backend: n.backend,
		Facts:   n.facts,
		Realm:   realm,
		Caller:  caller,
		Schemas: n.schemas,
		Budget:  b,
		Logger:  n.logger,
	})
}

// openAudit opens the audit store, the recorder and its retention
// scheduler.
func (n *node) openAudit(ctx context.Context) error {
	store, err := openAuditStorage(n.cfg.Audit)
	if err != nil {
		return err
	}
	n.auditStore = store
	if n.recorder, err = recorder.New(ctx, store, n.cfg.Audit.Recorder(), recorder.WithLogger(n.logger)); err != nil {
		return fmt.Errorf("failed to start audit recorder: %w", err)
	}
	pruner := retention.NewPruner(store, n.cfg.Audit.Retention.Pruner(), retention.WithLogger(n.logger))
	n.pruner = retention.NewScheduler(pruner)
	return n.pruner.Start(ctx)
}

// openAuditStorage opens the SQLite trail, or a memory one when no path is
// configured.
func openAuditStorage(cfg config.AuditConfig) (audit.Storage, error) {
	if cfg.Path == "" {
		return auditstorage.NewMemoryStorage(), nil
	}
	store, err := auditstorage.NewSQLiteStorage(cfg.SQLite())
	if err != nil {
		return nil, fmt.Errorf("failed to open audit storage: %w", err)
	}
	return store, nil
}

func (n *node) newEntrypoints() *entrypoints.Entrypoints {
	return entrypoints.New(n.host,
		entrypoints.WithRunner(n.runner),
		entrypoints.WithLimits(n.cfg.Engine.Limits()),
		entrypoints.WithLogger(n.logger),
	)
}

// registerEntrypoints rebuilds the entry point registries from the realm
// bindings of set and swaps them in. A policy bound under the same kind in
// several realms is registered once.
func (n *node) registerEntrypoints(set *policyset.Set) {
	ep := n.newEntrypoints()
	var count int
	for realmName, realm := range set.Realms {
		for kind, policies := range realm.Policies {
			k := entrypoints.Kind(kind)
			if !k.Valid() {
				continue
			}
			for name, p := range policies {
				if ep.Has(k, name) {
					continue
				}
				if err := ep.Register(k, name, p.Program); err != nil {
					n.logger.Warn("failed to register entry point",
						"realm", realmName, "kind", kind, "policy", name, "error", err)
					continue
				}
				count++
			}
		}
	}
	n.entry.Store(ep)
	n.logger.Debug("entry points registered", "count", count)
}

// auditCheck fails once the recorder has lost records.
func (n *node) auditCheck(context.Context) error {
	if dropped := n.recorder.Dropped(); dropped > 0 {
		return fmt.Errorf("audit recorder dropped %d records", dropped)
	}
	return nil
}

func (n *node) onReload(set *policyset.Set, err error) {
	n.mu.Lock()
	n.lastReload = err
	n.mu.Unlock()
	if err == nil {
		n.registerEntrypoints(set)
		count, aerr := n.archive.SaveSet(context.Background(), set)
		if aerr != nil {
			n.logger.Warn("failed to archive policies", "error", aerr)
		}
		n.logger.Info("policy set loaded",
			"policies", len(set.Policies), "realms", len(set.Realms), "archived", count)
	}
	select {
	case n.reloaded <- struct{}{}:
	default:
	}
}

// policySetCheck fails while the last policy set load failed.
func (n *node) policySetCheck(context.Context) error {
	if err := n.reloadErr(); err != nil {
		return fmt.Errorf("last policy set load failed: %w", err)
	}
	return nil
}

func (n *node) reloadErr() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.lastReload
}

// Start loads the policy set once, then keeps watching it when watch is
// set. It returns after the initial load.
func (n *node) Start(ctx context.Context, watch bool) error {
	if !watch {
		_, err := n.watcher.Reload()
		return err
	}
	errCh := make(chan error, 1)
	go func() { errCh <- n.watcher.Watch(ctx) }()
	select {
	case <-n.reloaded:
		return n.reloadErr()
	case err := <-errCh:
		return err
	}
}

// Close persists mana accounts and releases resources.
func (n *node) Close(ctx context.Context) error {
	var errs []error
	if n.watcher != nil {
		errs = append(errs, n.watcher.Stop())
	}
	if n.sweeper != nil {
		n.sweeper.Stop()
	}
	if n.mana != nil && n.backend != nil {
		if saved, err := n.mana.Save(ctx); err != nil {
			errs = append(errs, err)
		} else {
			n.logger.Info("mana accounts saved", "count", saved)
		}
	}
	if n.pruner != nil {
		n.pruner.Stop()
	}
	if n.recorder != nil {
		errs = append(errs, n.recorder.Close())
	}
	if n.auditStore != nil {
		errs = append(errs, n.auditStore.Close())
	}
	if n.tracer != nil {
		errs = append(errs, n.tracer.Shutdown(ctx))
	}
	if n.backend != nil {
		errs = append(errs, n.backend.Close())
	}
	return errors.Join(errs...)
}
