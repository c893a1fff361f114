package storage

import (
	"context"
	"sort"
	"sync"

	"erynoa/eclvm/pkg/audit"
)

// MemoryStorage keeps records in a slice ordered by sequence. It is meant
// for tests and for nodes that do not need the trail to survive restarts.
type MemoryStorage struct {
	mu      sync.RWMutex
	records []*audit.Record
	closed  bool
}

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// Store appends a copy of record.
func (s *MemoryStorage) Store(_ context.Context, record *audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return audit.NewStorageError("memory", "store", errClosed)
	}

	cp := *record
	// Records normally arrive in order; keep the slice sorted otherwise.
	i := sort.Search(len(s.records), func(i int) bool { return s.records[i].Sequence > cp.Sequence })
	s.records = append(s.records, nil)
	copy(s.records[i+1:], s.records[i:])
	s.records[i] = &cp
	return nil
}

// Query returns copies of the matching records.
func (s *MemoryStorage) Query(_ context.Context, q *audit.Query) ([]*audit.Record, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*audit.Record
	for _, r := range s.records {
		if q.Matches(r) {
			cp := *r
			matched = append(matched, &cp)
		}
	}
	if !q.Ascending() {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}

	if q.Offset >= len(matched) {
		return []*audit.Record{}, nil
	}
	matched = matched[q.Offset:]
	if q.Limit > 0 && q.Limit < len(matched) {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

// Count returns the number of matching records.
func (s *MemoryStorage) Count(_ context.Context, q *audit.Query) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, r := range s.records {
		if q.Matches(r) {
			n++
		}
	}
	return n, nil
}

// Delete removes the matching records.
func (s *MemoryStorage) Delete(_ context.Context, q *audit.Query) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	var deleted int64
	for _, r := range s.records {
		if q.Matches(r) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	for i := len(kept); i < len(s.records); i++ {
		s.records[i] = nil
	}
	s.records = kept
	return deleted, nil
}

// Last returns the newest record, or nil.
func (s *MemoryStorage) Last(context.Context) (*audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.records) == 0 {
		return nil, nil
	}
	cp := *s.records[len(s.records)-1]
	return &cp, nil
}

// Close marks the store closed. Later writes fail.
func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
