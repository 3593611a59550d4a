package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jmerrifield20/contentrisk/internal/moderation/model"
)

// MemoryReportRepository is an in-process report store.
type MemoryReportRepository struct {
	mu      sync.RWMutex
	seq     int64
	reports map[int64]*model.Report
}

// NewMemoryReportRepository creates an empty MemoryReportRepository.
func NewMemoryReportRepository() *MemoryReportRepository {
	return &MemoryReportRepository{reports: make(map[int64]*model.Report)}
}

// Create stores a new pending report.
func (r *MemoryReportRepository) Create(_ context.Context, report *model.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	report.ID = r.seq
	report.Status = model.ReportStatusPending
	report.CreatedAt = time.Now().UTC()
	cp := *report
	r.reports[cp.ID] = &cp
	return nil
}

// GetByID retrieves a report by ID.
func (r *MemoryReportRepository) GetByID(_ context.Context, id int64) (*model.Report, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rpt, ok := r.reports[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rpt
	return &cp, nil
}

// List returns paginated reports, newest first, optionally filtered by status.
func (r *MemoryReportRepository) List(_ context.Context, status model.ReportStatus, offset, limit int) ([]*model.Report, int, error) {
	if limit <= 0 {
		limit = 50
	}
	r.mu.RLock()
	var matched []*model.Report
	for _, rpt := range r.reports {
		if status == "" || rpt.Status == status {
			cp := *rpt
			matched = append(matched, &cp)
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})
	total := len(matched)
	if offset > total {
		offset = total
	}
	end := min(offset+limit, total)
	return matched[offset:end], total, nil
}

// UpdateStatus moves a report to next when the transition is allowed.
func (r *MemoryReportRepository) UpdateStatus(_ context.Context, id int64, next model.ReportStatus, decision string, adminID int64, at time.Time) (*model.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rpt, ok := r.reports[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !rpt.Status.CanTransition(next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, rpt.Status, next)
	}
	rpt.Status = next
	rpt.ModerationDecision = decision
	if next.IsTerminal() {
		ts := at.UTC()
		admin := adminID
		rpt.ResolvedAt = &ts
		rpt.ResolvedByAdminID = &admin
	}
	cp := *rpt
	return &cp, nil
}
