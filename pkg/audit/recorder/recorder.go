// Package recorder turns runner observer events into sealed audit records
// and writes them to an audit.Storage in the background.
package recorder

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"erynoa/eclvm/pkg/audit"
	"erynoa/eclvm/pkg/ecl/runner"
	"erynoa/eclvm/pkg/telemetry/logging"
)

// ErrClosed is returned when recording after Close.
var ErrClosed = errors.New("recorder closed")

// Config configures a Recorder.
type Config struct {
	// Enabled turns recording on. A disabled recorder accepts and drops
	// every event.
	Enabled bool

	// AsyncBuffer is the size of the write queue. Default: 1000
	AsyncBuffer int

	// WriteTimeout bounds each storage write and how long an event may
	// wait for room in a full queue. Default: 5s
	WriteTimeout time.Duration

	// RedactDIDs shortens entity DIDs before they are recorded.
	RedactDIDs bool

	// RecordPolicies records every policy run, not only crossings.
	// Default: true
	RecordPolicies *bool
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() Config {
	cfg := Config{Enabled: true}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.AsyncBuffer <= 0 {
		c.AsyncBuffer = 1000
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.RecordPolicies == nil {
		yes := true
		c.RecordPolicies = &yes
	}
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) { r.logger = l }
}

// Recorder implements runner.Observer. Records are queued in the order
// they are observed and sealed by a single worker goroutine just before
// they are written, so the chain in storage only links persisted records.
type Recorder struct {
	storage audit.Storage
	config  Config
	now     func() time.Time
	logger  *slog.Logger

	// mu guards closed. Senders hold it shared while they wait for queue
	// room, so Close cannot stop the worker under a pending send.
	mu     sync.RWMutex
	closed bool

	// last is the most recently persisted record. Only the worker uses it.
	last *audit.Record

	queue   chan *audit.Record
	done    chan struct{}
	wg      sync.WaitGroup
	written atomic.Uint64
	dropped atomic.Uint64
}

var _ runner.Observer = (*Recorder)(nil)

// New creates a recorder that continues the chain already in storage.
func New(ctx context.Context, storage audit.Storage, cfg Config, opts ...Option) (*Recorder, error) {
	cfg.applyDefaults()
	r := &Recorder{
		storage: storage,
		config:  cfg,
		now:     time.Now,
		logger:  slog.Default(),
		queue:   make(chan *audit.Record, cfg.AsyncBuffer),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "audit.recorder")

	last, err := storage.Last(ctx)
	if err != nil {
		return nil, audit.NewRecorderError("", err)
	}
	r.last = last

	r.wg.Add(1)
	go r.worker()

	var seq uint64
	if last != nil {
		seq = last.Sequence
	}
	r.logger.Info("audit recorder initialized",
		"enabled", cfg.Enabled,
		"async_buffer", cfg.AsyncBuffer,
		"last_sequence", seq,
	)
	return r, nil
}

// OnPolicyExecuted records a policy run.
func (r *Recorder) OnPolicyExecuted(e runner.PolicyExecution) {
	if !*r.config.RecordPolicies {
		return
	}
	rec := &audit.Record{
		Kind:           audit.KindPolicy,
		ExecutionID:    e.ExecutionID,
		PolicyID:       e.PolicyID,
		PolicyType:     e.PolicyType,
		RealmID:        e.RealmID,
		EntityID:       e.CallerDID,
		Allowed:        e.Err == nil && e.Passed,
		Outcome:        audit.ClassifyOutcome(e.Passed, e.Err),
		GasUsed:        e.GasUsed,
		ManaUsed:       e.ManaUsed,
		DurationMicros: e.DurationMicros,
	}
	if e.Err != nil {
		rec.Error = e.Err.Error()
	}
	if err := r.Record(rec); err != nil {
		r.logger.Warn("failed to record policy execution", "execution_id", e.ExecutionID, "error", err)
	}
}

// OnCrossingEvaluated records a crossing decision.
func (r *Recorder) OnCrossingEvaluated(e runner.CrossingEvaluation) {
	rec := &audit.Record{
		Kind:       audit.KindCrossing,
		PolicyID:   e.PolicyID,
		PolicyType: "crossing",
		RealmID:    e.ToRealm,
		FromRealm:  e.FromRealm,
		EntityID:   e.EntityID,
		Allowed:    e.Err == nil && e.Allowed,
		Outcome:    audit.ClassifyOutcome(e.Allowed, e.Err),
		TrustScore: e.TrustScore,
	}
	if e.Err != nil {
		rec.Error = e.Err.Error()
	}
	if err := r.Record(rec); err != nil {
		r.logger.Warn("failed to record crossing", "from", e.FromRealm, "to", e.ToRealm, "error", err)
	}
}

// Record queues rec for sealing and writing. ID and Time are filled in
// when empty. Sequence, PrevHash and Hash are set by the worker; rec must
// not be modified after Record returns.
func (r *Recorder) Record(rec *audit.Record) error {
	if !r.config.Enabled {
		return nil
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Time.IsZero() {
		rec.Time = r.now().UTC()
	}
	if r.config.RedactDIDs && rec.EntityID != "" {
		rec.EntityID = logging.RedactDID(rec.EntityID)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return audit.NewRecorderError(rec.ID, ErrClosed)
	}

	select {
	case r.queue <- rec:
		return nil
	default:
	}
	timer := time.NewTimer(r.config.WriteTimeout)
	defer timer.Stop()
	select {
	case r.queue <- rec:
		return nil
	case <-timer.C:
		r.dropped.Add(1)
		r.logger.Error("audit queue full, dropping record",
			"record_id", rec.ID,
			"queue_capacity", r.config.AsyncBuffer,
		)
		return audit.NewRecorderError(rec.ID, context.DeadlineExceeded)
	}
}

// Written returns the number of records persisted so far.
func (r *Recorder) Written() uint64 { return r.written.Load() }

// Dropped returns the number of records lost to a full queue or failed
// writes.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// Close stops accepting records, drains the queue and waits for the
// worker. The storage is not closed.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	close(r.done)
	r.wg.Wait()
	r.logger.Info("audit recorder stopped",
		"written", r.written.Load(),
		"dropped", r.dropped.Load(),
	)
	return nil
}

func (r *Recorder) worker() {
	defer r.wg.Done()
	for {
		select {
		case rec := <-r.queue:
			r.write(rec)
		case <-r.done:
			for {
				select {
				case rec := <-r.queue:
					r.write(rec)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(rec *audit.Record) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	audit.Seal(rec, r.last)
	start := time.Now()
	if err := r.storage.Store(ctx, rec); err != nil {
		// last stays put, so the next record reuses this sequence number
		// and links to the last persisted record.
		r.dropped.Add(1)
		r.logger.Error("failed to store audit record",
			"record_id", rec.ID,
			"sequence", rec.Sequence,
			"error", err,
		)
		return
	}
	r.last = rec
	r.written.Add(1)

	if d := time.Since(start); d > r.config.WriteTimeout/2 {
		r.logger.Warn("slow audit write",
			"record_id", rec.ID,
			"duration_ms", d.Milliseconds(),
		)
	}
}
