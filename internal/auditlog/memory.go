package auditlog

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MemoryLog keeps the chain in process memory. It backs tests and deployments
// that run without Postgres.
type MemoryLog struct {
	mu      sync.RWMutex
	records []*Record
}

// NewMemoryLog creates a MemoryLog holding only the genesis record.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{records: []*Record{{
		Index:     0,
		Timestamp: time.Now().UTC(),
		Action:    ActionGenesis,
		Actor:     SystemActor,
		DataHash:  GenesisHash,
		PrevHash:  GenesisHash,
		Hash:      GenesisHash,
	}}}
}

// Append implements Log.
func (l *MemoryLog) Append(_ context.Context, subject, action, actor string, payload any) (*Record, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	prev := l.records[len(l.records)-1]
	r := &Record{
		Index:     len(l.records),
		Timestamp: time.Now().UTC(),
		Subject:   subject,
		Action:    action,
		Actor:     actor,
		DataHash:  sha256Sum(body),
		PrevHash:  prev.Hash,
	}
	r.Hash = hashRecord(r)
	l.records = append(l.records, r)
	return r, nil
}

// Get implements Log.
func (l *MemoryLog) Get(_ context.Context, index int) (*Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if index < 0 || index >= len(l.records) {
		return nil, fmt.Errorf("index %d out of range", index)
	}
	return l.records[index], nil
}

// List implements Log.
func (l *MemoryLog) List(_ context.Context, offset, limit int) ([]*Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := []*Record{}
	for i := len(l.records) - 1 - offset; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, l.records[i])
	}
	return out, nil
}

// History implements Log.
func (l *MemoryLog) History(_ context.Context, subject string) ([]*Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := []*Record{}
	for _, r := range l.records[1:] {
		if r.Subject == subject {
			out = append(out, r)
		}
	}
	return out, nil
}

// Len implements Log.
func (l *MemoryLog) Len(_ context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records), nil
}

// Verify implements Log.
func (l *MemoryLog) Verify(_ context.Context) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i, curr := range l.records {
		if i == 0 {
			if curr.Hash != GenesisHash {
				return fmt.Errorf("genesis record has wrong hash: got %q", curr.Hash)
			}
			continue
		}
		if err := checkLink(l.records[i-1], curr); err != nil {
			return err
		}
	}
	return nil
}

// Root implements Log.
func (l *MemoryLog) Root(_ context.Context) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.records[len(l.records)-1].Hash, nil
}
