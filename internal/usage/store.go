package usage

import (
	"context"
	"sync"

	"github.com/davidbz/tonepipe/internal/domain"
)

// Record is the cumulative usage of one user within one calendar month.
// Counts are monotonically non-decreasing within a month and never
// negative. A new month starts from a fresh zeroed record; prior totals
// are never inherited.
type Record struct {
	UserID       string  `db:"user_id"`
	Period       string  `db:"period"` // YYYY-MM
	RewriteCount int     `db:"rewrite_count"`
	TokenCount   int64   `db:"token_count"`
	CostUSD      float64 `db:"cost_usd"`
}

// Delta is one usage increment.
type Delta struct {
	Rewrites int
	Tokens   int64
	CostUSD  float64
}

// Store is the abstract persistence behind the meter. Implementations
// must apply Add atomically per (user, period) key: lost updates cause
// quota bypass, which is a correctness violation.
type Store interface {
	// Get returns the record for a (user, period), or
	// domain.ErrUsageNotFound when none exists yet.
	Get(ctx context.Context, userID, period string) (*Record, error)

	// Add increments the record for a (user, period), creating it when
	// absent.
	Add(ctx context.Context, userID, period string, delta Delta) error
}

// MemoryStore is the in-process store used by default and in tests.
// Safe for concurrent use; increments are serialized per map.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
}

// NewMemoryStore creates an empty in-memory usage store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		mu:      sync.Mutex{},
		records: make(map[string]*Record),
	}
}

// Get returns a copy of the record for a (user, period).
func (s *MemoryStore) Get(_ context.Context, userID, period string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, exists := s.records[storeKey(userID, period)]
	if !exists {
		return nil, domain.ErrUsageNotFound
	}

	copied := *record
	return &copied, nil
}

// Add increments the record for a (user, period) under the store lock.
func (s *MemoryStore) Add(_ context.Context, userID, period string, delta Delta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := storeKey(userID, period)
	record, exists := s.records[key]
	if !exists {
		record = &Record{
			UserID:       userID,
			Period:       period,
			RewriteCount: 0,
			TokenCount:   0,
			CostUSD:      0,
		}
		s.records[key] = record
	}

	record.RewriteCount += delta.Rewrites
	record.TokenCount += delta.Tokens
	record.CostUSD += delta.CostUSD

	return nil
}

func storeKey(userID, period string) string {
	return userID + "|" + period
}
