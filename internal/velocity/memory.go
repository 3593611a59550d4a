package velocity

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// MemStore is an in-process Store. Counters are lock-free; past hours are
// never reclaimed, so it suits tests and single-node setups.
type MemStore struct {
	counts *xsync.MapOf[string, *xsync.Counter]
	now    func() time.Time
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		counts: xsync.NewMapOf[string, *xsync.Counter](),
		now:    time.Now,
	}
}

// SetClock replaces the time source; used by tests to cross bucket boundaries.
func (s *MemStore) SetClock(now func() time.Time) {
	s.now = now
}

// GetCount implements Store.
func (s *MemStore) GetCount(_ context.Context, activity string, userID int64) (int, error) {
	c, ok := s.counts.Load(hourBucket(activity, userID, s.now()))
	if !ok {
		return 0, nil
	}
	return int(c.Value()), nil
}

// Increment implements Store.
func (s *MemStore) Increment(_ context.Context, activity string, userID int64) error {
	c, _ := s.counts.LoadOrCompute(hourBucket(activity, userID, s.now()), xsync.NewCounter)
	c.Inc()
	return nil
}
