package repository

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jmerrifield20/contentrisk/internal/moderation/model"
	"github.com/puzpuzpuz/xsync/v3"
)

type contentKey struct {
	ct model.ContentType
	id int64
}

// MemoryFlagRepository is an in-process flag store. Each content key is
// mutated under its own map bucket lock, so upserts and reviews of unrelated
// content never contend. Stored flags are replaced, never mutated in place.
type MemoryFlagRepository struct {
	seq   atomic.Int64
	open  *xsync.MapOf[contentKey, int64]
	flags *xsync.MapOf[int64, *model.Flag]
	now   func() time.Time
}

// NewMemoryFlagRepository creates an empty MemoryFlagRepository.
func NewMemoryFlagRepository() *MemoryFlagRepository {
	return &MemoryFlagRepository{
		open:  xsync.NewMapOf[contentKey, int64](),
		flags: xsync.NewMapOf[int64, *model.Flag](),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source used for flagged_at.
func (r *MemoryFlagRepository) SetClock(now func() time.Time) {
	r.now = now
}

// Upsert creates a pending flag for the content or merges reasons into the
// existing pending one.
func (r *MemoryFlagRepository) Upsert(_ context.Context, ct model.ContentType, contentID int64, reasons []string, score float64, level model.RiskLevel) (*model.Flag, bool, error) {
	var (
		result  *model.Flag
		created bool
	)
	r.open.Compute(contentKey{ct, contentID}, func(openID int64, loaded bool) (int64, bool) {
		if loaded {
			if cur, ok := r.flags.Load(openID); ok && cur.IsOpen() {
				merged := cloneFlag(cur)
				merged.Reasons = normalizeReasons(append(merged.Reasons, reasons...))
				if score > merged.RiskScore {
					merged.RiskScore = score
					merged.RiskLevel = level
				}
				r.flags.Store(openID, merged)
				result = merged
				return openID, false
			}
		}
		f := &model.Flag{
			ID:          r.seq.Add(1),
			ContentType: ct,
			ContentID:   contentID,
			Reasons:     normalizeReasons(reasons),
			Status:      model.FlagStatusPending,
			RiskScore:   score,
			RiskLevel:   level,
			FlaggedAt:   r.now(),
		}
		r.flags.Store(f.ID, f)
		result, created = f, true
		return f.ID, false
	})
	return cloneFlag(result), created, nil
}

// GetByID retrieves a flag by ID.
func (r *MemoryFlagRepository) GetByID(_ context.Context, id int64) (*model.Flag, error) {
	f, ok := r.flags.Load(id)
	if !ok {
		return nil, ErrNotFound
	}
	return cloneFlag(f), nil
}

// List returns a page of flags matching filter, newest flagged first.
func (r *MemoryFlagRepository) List(_ context.Context, filter model.StatusFilter, offset, limit int) ([]*model.Flag, int, error) {
	if limit <= 0 {
		limit = 50
	}
	var matched []*model.Flag
	r.flags.Range(func(_ int64, f *model.Flag) bool {
		if filter.Matches(f.Status) {
			matched = append(matched, f)
		}
		return true
	})
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].FlaggedAt.Equal(matched[j].FlaggedAt) {
			return matched[i].FlaggedAt.After(matched[j].FlaggedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	page := []*model.Flag{}
	for i := offset; i < total && len(page) < limit; i++ {
		page = append(page, cloneFlag(matched[i]))
	}
	return page, total, nil
}

// Review records a disposition on a pending flag.
func (r *MemoryFlagRepository) Review(_ context.Context, id int64, d model.Disposition, reviewerID int64, at time.Time) (*model.Flag, error) {
	f, ok := r.flags.Load(id)
	if !ok {
		return nil, ErrNotFound
	}

	var (
		result *model.Flag
		err    error
	)
	r.open.Compute(contentKey{f.ContentType, f.ContentID}, func(openID int64, loaded bool) (int64, bool) {
		cur, _ := r.flags.Load(id)
		if !cur.IsOpen() {
			err = ErrAlreadyReviewed
			return openID, !loaded
		}
		reviewed := cloneFlag(cur)
		reviewedAt := at.UTC()
		reviewer := reviewerID
		disposition := d
		reviewed.Status = model.FlagStatusReviewed
		reviewed.ReviewedAt = &reviewedAt
		reviewed.ReviewerID = &reviewer
		reviewed.Disposition = &disposition
		r.flags.Store(id, reviewed)
		result = reviewed
		return 0, true
	})
	if err != nil {
		return nil, err
	}
	return cloneFlag(result), nil
}

// Summary aggregates all flags.
func (r *MemoryFlagRepository) Summary(_ context.Context) (*model.RiskSummary, error) {
	s := model.NewRiskSummary()
	r.flags.Range(func(_ int64, f *model.Flag) bool {
		s.Add(f)
		return true
	})
	return s, nil
}

func cloneFlag(f *model.Flag) *model.Flag {
	c := *f
	c.Reasons = slices.Clone(f.Reasons)
	return &c
}

// normalizeReasons returns the sorted set of non-empty reasons.
func normalizeReasons(reasons []string) []string {
	out := make([]string, 0, len(reasons))
	for _, r := range reasons {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
