// Package gateway decides realm entry and crossing requests by running the
// target realm's entry policy.
//
// A request is admitted in three steps: mana admission, VM execution
// through the runner, and interpretation of the final value. The policy
// must end with a boolean; any other value is a ConfigurationError rather
// than a silent deny.
//
// Two admission modes exist. In unified mode (the default) the budget is
// scaled by the caller's reliability and an up-front mana charge of a tenth
// of the estimated gas is taken from it. In manager mode, enabled with
// WithManaManager, a mana.Manager performs a pre-flight check on the
// estimated gas and deducts the gas actually used after the run.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"erynoa/eclvm/pkg/ecl/budget"
	"erynoa/eclvm/pkg/ecl/bytecode"
	"erynoa/eclvm/pkg/ecl/host"
	"erynoa/eclvm/pkg/ecl/mana"
	"erynoa/eclvm/pkg/ecl/runner"
	"erynoa/eclvm/pkg/ecl/vm"
)

// UnifiedRetryAfter is reported when the up-front mana charge fails in
// unified mode.
const UnifiedRetryAfter = 10 * time.Second

// ConfigurationError reports a policy whose final value is not a boolean.
type ConfigurationError struct {
	Policy string
	Value  bytecode.Value
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("policy %q returned non-boolean value %s (%s)", e.Policy, e.Value, e.Value.TypeName())
}

// Decision is the outcome of an entry or crossing check.
type Decision struct {
	Allowed        bool
	Sender         string
	TargetRealm    string
	PolicyName     string
	Message        string
	GasUsed        uint64
	ManaUsed       uint64
	DurationMicros uint64
	ExecutionID    string
	// EffectiveTrust is the sender's trust after the target realm's damping.
	EffectiveTrust bytecode.TrustVector
}

// Execution is the raw outcome of ExecutePolicy.
type Execution struct {
	Allowed        bool
	Message        string
	GasUsed        uint64
	ManaUsed       uint64
	DurationMicros uint64
	ExecutionID    string
}

// RealmConfig configures one realm.
type RealmConfig struct {
	// EntryPolicy names the policy of kind entry used by ValidateEntry.
	// Default: "entry".
	EntryPolicy string
	// Damping overrides the gateway damping for this realm.
	Damping *Damping
}

// Realm is a realm's configuration and its policies by kind, then name.
type Realm struct {
	Config   RealmConfig
	Policies map[string]map[string]CompiledPolicy
}

func newRealm() *Realm {
	return &Realm{Policies: make(map[string]map[string]CompiledPolicy)}
}

// Gateway evaluates realm policies.
type Gateway struct {
	host     host.Host
	runner   *runner.Runner
	observer runner.Observer
	limits   budget.Limits
	mana     *mana.Manager
	damping  Damping
	logger   *slog.Logger

	defaultEntry CompiledPolicy

	mu     sync.RWMutex
	realms map[string]*Realm
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLimits sets the base budget limits.
func WithLimits(l budget.Limits) Option {
	return func(g *Gateway) { g.limits = l }
}

// WithMaxGas sets only the base gas limit.
func WithMaxGas(gas uint64) Option {
	return func(g *Gateway) { g.limits.GasLimit = gas }
}

// WithManaManager switches admission to manager mode.
func WithManaManager(m *mana.Manager) Option {
	return func(g *Gateway) { g.mana = m }
}

// WithObserver receives crossing events, and execution events when the
// gateway builds its own runner.
func WithObserver(o runner.Observer) Option {
	return func(g *Gateway) { g.observer = o }
}

// WithRunner replaces the runner.
func WithRunner(r *runner.Runner) Option {
	return func(g *Gateway) { g.runner = r }
}

// WithDamping sets the default damping.
func WithDamping(d Damping) Option {
	return func(g *Gateway) { g.damping = d }
}

// WithDefaultEntryPolicy replaces the policy used for realms without one.
func WithDefaultEntryPolicy(p CompiledPolicy) Option {
	return func(g *Gateway) { g.defaultEntry = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// New creates a Gateway over h.
func New(h host.Host, opts ...Option) *Gateway {
	g := &Gateway{
		host:         h,
		limits:       budget.DefaultLimits(),
		damping:      DefaultDamping(),
		logger:       slog.Default(),
		defaultEntry: DefaultEntryPolicy(),
		realms:       make(map[string]*Realm),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.runner == nil {
		ropts := []runner.Option{runner.WithLogger(g.logger)}
		if g.observer != nil {
			ropts = append(ropts, runner.WithObserver(g.observer))
		}
		g.runner = runner.New(ropts...)
	}
	if g.observer == nil {
		g.observer = g.runner.Observer()
	}
	g.logger = g.logger.With("component", "ecl.gateway")
	return g
}

// Mode returns "manager" or "unified".
func (g *Gateway) Mode() string {
	if g.mana != nil {
		return "manager"
	}
	return "unified"
}

// RegisterRealm sets the configuration of realm.
func (g *Gateway) RegisterRealm(realm string, cfg RealmConfig) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.realms[realm]
	if !ok {
		r = newRealm()
		g.realms[realm] = r
	}
	r.Config = cfg
}

// RegisterPolicy adds p to realm under kind, keyed by p.Name.
func (g *Gateway) RegisterPolicy(realm, kind string, p CompiledPolicy) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.realms[realm]
	if !ok {
		r = newRealm()
		g.realms[realm] = r
	}
	if r.Policies[kind] == nil {
		r.Policies[kind] = make(map[string]CompiledPolicy)
	}
	r.Policies[kind][p.Name] = p
}

// RegisterEntryPolicy registers p as the entry policy of realm.
func (g *Gateway) RegisterEntryPolicy(realm string, p CompiledPolicy) {
	g.RegisterPolicy(realm, KindEntry, p)
	g.mu.Lock()
	g.realms[realm].Config.EntryPolicy = p.Name
	g.mu.Unlock()
}

// Policy looks up a policy by realm, kind and name.
func (g *Gateway) Policy(realm, kind, name string) (CompiledPolicy, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.realms[realm]
	if !ok {
		return CompiledPolicy{}, false
	}
	p, ok := r.Policies[kind][name]
	return p, ok
}

// Policies returns a copy of the policies of realm by kind.
func (g *Gateway) Policies(realm string) map[string][]CompiledPolicy {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string][]CompiledPolicy)
	r, ok := g.realms[realm]
	if !ok {
		return out
	}
	for kind, byName := range r.Policies {
		for _, p := range byName {
			out[kind] = append(out[kind], p)
		}
	}
	return out
}

// Realms returns the registered realm names.
func (g *Gateway) Realms() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.realms))
	for name := range g.realms {
		out = append(out, name)
	}
	return out
}

// Swap atomically replaces every realm. Used by policy set reloads.
func (g *Gateway) Swap(realms map[string]*Realm) {
	next := make(map[string]*Realm, len(realms))
	for name, r := range realms {
		if r.Policies == nil {
			r.Policies = make(map[string]map[string]CompiledPolicy)
		}
		next[name] = r
	}
	g.mu.Lock()
	g.realms = next
	g.mu.Unlock()
}

// entryPolicy returns the entry policy and damping for realm.
func (g *Gateway) entryPolicy(realm string) (CompiledPolicy, Damping) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.realms[realm]
	if !ok {
		return g.defaultEntry, g.damping
	}
	damping := g.damping
	if r.Config.Damping != nil {
		damping = *r.Config.Damping
	}
	name := r.Config.EntryPolicy
	if name == "" {
		name = KindEntry
	}
	if p, ok := r.Policies[KindEntry][name]; ok {
		return p, damping
	}
	return g.defaultEntry, damping
}

// ExecutePolicy admits sender, runs p and interprets the verdict.
//
// A require or assert failing inside the policy is a deny, not an error.
// Budget exhaustion, host failures and non-boolean verdicts are errors.
func (g *Gateway) ExecutePolicy(ctx context.Context, p CompiledPolicy, sender string, trust bytecode.TrustVector, realm string) (*Execution, error) {
	if g.mana != nil {
		return g.executeManaged(ctx, p, sender, trust, realm)
	}
	return g.executeUnified(ctx, p, sender, trust, realm)
}

func (g *Gateway) executeUnified(ctx context.Context, p CompiledPolicy, sender string, trust bytecode.TrustVector, realm string) (*Execution, error) {
	b := budget.New(g.limits.ScaledByTrust(trust[bytecode.DimR]))

	cost := max(p.EstimatedGas/10, 10)
	if !b.ConsumeMana(cost) {
		return nil, &mana.RateLimitedError{
			DID:        sender,
			Needed:     cost,
			Available:  b.ManaRemaining(),
			RetryAfter: UnifiedRetryAfter,
		}
	}

	rc := runner.NewContext(sender, realm, b).WithPolicy(p.Name, KindEntry)
	return g.run(ctx, p, rc)
}

func (g *Gateway) executeManaged(ctx context.Context, p CompiledPolicy, sender string, trust bytecode.TrustVector, realm string) (*Execution, error) {
	if err := g.mana.Preflight(sender, trust, p.EstimatedGas); err != nil {
		return nil, err
	}

	rc := runner.WithLimits(sender, realm, g.limits).WithPolicy(p.Name, KindEntry)
	exec, err := g.run(ctx, p, rc)
	gasUsed := rc.Budget.GasUsed()
	if derr := g.mana.Deduct(sender, trust, gasUsed); derr != nil {
		if err != nil {
			return nil, err
		}
		return nil, derr
	}
	if err != nil {
		return nil, err
	}
	exec.ManaUsed = gasUsed
	return exec, nil
}

func (g *Gateway) run(ctx context.Context, p CompiledPolicy, rc runner.PolicyRunContext) (*Execution, error) {
	res, err := g.runner.Run(ctx, p.Program, g.host, rc)
	if err != nil {
		var rejected *vm.PolicyRejectedError
		if errors.As(err, &rejected) {
			return &Execution{
				Allowed:  false,
				Message:  rejected.Message,
				GasUsed:  rc.Budget.GasUsed(),
				ManaUsed: rc.Budget.ManaUsed(),
			}, nil
		}
		return nil, fmt.Errorf("policy %q: %w", p.Name, err)
	}

	if res.Value.Kind() != bytecode.KindBool {
		return nil, &ConfigurationError{Policy: p.Name, Value: res.Value}
	}
	allowed, _ := res.Value.AsBool()
	return &Execution{
		Allowed:        allowed,
		GasUsed:        res.GasUsed,
		ManaUsed:       res.ManaUsed,
		DurationMicros: res.DurationMicros,
		ExecutionID:    res.ExecutionID,
	}, nil
}

// ValidateEntry runs the entry policy of targetRealm for sender, falling
// back to the default entry policy.
func (g *Gateway) ValidateEntry(ctx context.Context, sender string, trust bytecode.TrustVector, targetRealm string) (*Decision, error) {
	p, damping := g.entryPolicy(targetRealm)

	exec, err := g.ExecutePolicy(ctx, p, sender, trust, targetRealm)
	if err != nil {
		g.logger.Warn("entry evaluation failed",
			"realm", targetRealm,
			"sender", sender,
			"policy", p.Name,
			"error", err,
		)
		return nil, err
	}

	d := &Decision{
		Allowed:        exec.Allowed,
		Sender:         sender,
		TargetRealm:    targetRealm,
		PolicyName:     p.Name,
		GasUsed:        exec.GasUsed,
		ManaUsed:       exec.ManaUsed,
		DurationMicros: exec.DurationMicros,
		ExecutionID:    exec.ExecutionID,
		EffectiveTrust: damping.Apply(trust),
	}
	switch {
	case exec.Allowed:
		d.Message = "Entry allowed"
	case exec.Message != "":
		d.Message = fmt.Sprintf("Entry denied by policy '%s': %s", p.Name, exec.Message)
	default:
		d.Message = fmt.Sprintf("Entry denied by policy '%s'", p.Name)
	}

	g.logger.Debug("entry evaluated",
		"realm", targetRealm,
		"sender", sender,
		"policy", p.Name,
		"allowed", d.Allowed,
		"gas_used", d.GasUsed,
	)
	return d, nil
}

// ValidateCrossing checks a move from fromRealm to toRealm against the
// entry policy of toRealm and notifies the observer, failed evaluations
// included.
func (g *Gateway) ValidateCrossing(ctx context.Context, sender string, trust bytecode.TrustVector, fromRealm, toRealm string) (*Decision, error) {
	d, err := g.ValidateEntry(ctx, sender, trust, toRealm)
	if g.observer != nil {
		e := runner.CrossingEvaluation{
			FromRealm:  fromRealm,
			ToRealm:    toRealm,
			EntityID:   sender,
			TrustScore: trustScore(trust),
			Err:        err,
		}
		if d != nil {
			e.Allowed, e.PolicyID = d.Allowed, d.PolicyName
		} else {
			p, _ := g.entryPolicy(toRealm)
			e.PolicyID = p.Name
		}
		g.observer.OnCrossingEvaluated(e)
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

// ManaStatus returns the sender's account status in manager mode.
func (g *Gateway) ManaStatus(sender string, trust bytecode.TrustVector) (mana.Status, bool) {
	if g.mana == nil {
		return mana.Status{}, false
	}
	return g.mana.Status(sender, trust), true
}
