package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"erynoa/eclvm/pkg/audit"
)

// Config configures retention.
type Config struct {
	// MaxAge is how long records are kept. Zero keeps them forever.
	MaxAge time.Duration

	// MaxRecords bounds the trail. Zero means unlimited.
	MaxRecords int64

	// Schedule is a five-field cron expression. Empty disables scheduled
	// pruning.
	Schedule string
}

// DefaultConfig keeps 90 days of records and prunes daily at 03:00.
func DefaultConfig() Config {
	return Config{
		MaxAge:   90 * 24 * time.Hour,
		Schedule: "0 3 * * *",
	}
}

// Pruner enforces a retention Config on a store.
type Pruner struct {
	storage audit.Storage
	config  Config
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Pruner.
type Option func(*Pruner)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pruner) { p.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pruner) { p.logger = l }
}

// NewPruner creates a Pruner.
func NewPruner(storage audit.Storage, cfg Config, opts ...Option) *Pruner {
	p := &Pruner{
		storage: storage,
		config:  cfg,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "audit.retention")
	return p
}

// Config returns the retention configuration.
func (p *Pruner) Config() Config { return p.config }

// Prune deletes records older than MaxAge, then the oldest records beyond
// MaxRecords. It returns the total number deleted.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	var total int64

	if p.config.MaxAge > 0 {
		cutoff := p.now().Add(-p.config.MaxAge)
		deleted, err := p.storage.Delete(ctx, &audit.Query{EndTime: &cutoff})
		if err != nil {
			return total, fmt.Errorf("prune by age failed: %w", err)
		}
		total += deleted
		p.logger.Debug("pruned records by age", "deleted_count", deleted, "cutoff", cutoff)
	}

	if p.config.MaxRecords > 0 {
		deleted, err := p.pruneByCount(ctx)
		if err != nil {
			return total, fmt.Errorf("prune by count failed: %w", err)
		}
		total += deleted
	}

	if total > 0 {
		p.logger.Info("audit pruning completed",
			"total_deleted", total,
			"max_age", p.config.MaxAge,
			"max_records", p.config.MaxRecords,
		)
	}
	return total, nil
}

func (p *Pruner) pruneByCount(ctx context.Context) (int64, error) {
	count, err := p.storage.Count(ctx, &audit.Query{})
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	excess := count - p.config.MaxRecords
	if excess <= 0 {
		return 0, nil
	}

	// Find the sequence of the newest record to drop, then delete
	// everything up to it in one statement.
	boundary, err := p.storage.Query(ctx, &audit.Query{
		SortOrder: "asc",
		Offset:    int(excess - 1),
		Limit:     1,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to find prune boundary: %w", err)
	}
	if len(boundary) == 0 {
		return 0, nil
	}
	return p.storage.Delete(ctx, &audit.Query{SequenceBelow: boundary[0].Sequence + 1})
}
