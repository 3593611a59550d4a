package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/contentrisk/internal/moderation/model"
)

const flagColumns = `id, content_type, content_id, reasons, status, risk_score, risk_level,
	flagged_at, reviewed_at, reviewer_id, disposition`

// FlagRepository persists moderation flags in PostgreSQL.
//
// The partial unique index moderation_flags_one_pending guarantees at most one
// pending flag per (content_type, content_id); Upsert relies on it for an
// atomic insert-or-merge.
type FlagRepository struct {
	db *pgxpool.Pool
}

// NewFlagRepository creates a new FlagRepository.
func NewFlagRepository(db *pgxpool.Pool) *FlagRepository {
	return &FlagRepository{db: db}
}

// Upsert creates a pending flag for the content or merges reasons into the
// existing pending one. The merged flag keeps the highest score seen.
func (r *FlagRepository) Upsert(ctx context.Context, ct model.ContentType, contentID int64, reasons []string, score float64, level model.RiskLevel) (*model.Flag, bool, error) {
	query := `
		INSERT INTO moderation_flags (content_type, content_id, reasons, status, risk_score, risk_level, flagged_at)
		VALUES ($1, $2, $3, 'pending', $4, $5, $6)
		ON CONFLICT (content_type, content_id) WHERE status = 'pending'
		DO UPDATE SET
			reasons = ARRAY(
				SELECT DISTINCT unnest(moderation_flags.reasons || EXCLUDED.reasons) ORDER BY 1
			),
			risk_level = CASE WHEN EXCLUDED.risk_score > moderation_flags.risk_score
				THEN EXCLUDED.risk_level ELSE moderation_flags.risk_level END,
			risk_score = GREATEST(moderation_flags.risk_score, EXCLUDED.risk_score)
		RETURNING ` + flagColumns + `, (xmax = 0) AS inserted`

	row := r.db.QueryRow(ctx, query, ct, contentID, normalizeReasons(reasons), score, level, time.Now().UTC())

	var f model.Flag
	var inserted bool
	if err := row.Scan(
		&f.ID, &f.ContentType, &f.ContentID, &f.Reasons, &f.Status, &f.RiskScore, &f.RiskLevel,
		&f.FlaggedAt, &f.ReviewedAt, &f.ReviewerID, &f.Disposition, &inserted,
	); err != nil {
		return nil, false, fmt.Errorf("upsert flag: %w", err)
	}
	return &f, inserted, nil
}

// GetByID retrieves a flag by ID.
func (r *FlagRepository) GetByID(ctx context.Context, id int64) (*model.Flag, error) {
	row := r.db.QueryRow(ctx, `SELECT `+flagColumns+` FROM moderation_flags WHERE id = $1`, id)
	f, err := scanFlag(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return f, err
}

// List returns a page of flags matching filter, newest flagged first, and the
// total number of matching flags.
func (r *FlagRepository) List(ctx context.Context, filter model.StatusFilter, offset, limit int) ([]*model.Flag, int, error) {
	if limit <= 0 {
		limit = 50
	}
	where := `WHERE ($1 = 'all'
		OR ($1 = 'pending' AND status = 'pending')
		OR ($1 = 'reviewed' AND status <> 'pending'))`

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM moderation_flags `+where, filter).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count flags: %w", err)
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+flagColumns+` FROM moderation_flags `+where+`
		 ORDER BY flagged_at DESC, id DESC
		 OFFSET $2 LIMIT $3`,
		filter, offset, limit,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list flags: %w", err)
	}
	defer rows.Close()

	flags := []*model.Flag{}
	for rows.Next() {
		f, err := scanFlag(rows)
		if err != nil {
			return nil, 0, err
		}
		flags = append(flags, f)
	}
	return flags, total, rows.Err()
}

// Review records a disposition on a pending flag. It returns ErrNotFound when
// the flag does not exist and ErrAlreadyReviewed when it is no longer pending.
func (r *FlagRepository) Review(ctx context.Context, id int64, d model.Disposition, reviewerID int64, at time.Time) (*model.Flag, error) {
	row := r.db.QueryRow(ctx,
		`UPDATE moderation_flags
		 SET status = 'reviewed', disposition = $2, reviewer_id = $3, reviewed_at = $4
		 WHERE id = $1 AND status = 'pending'
		 RETURNING `+flagColumns,
		id, d, reviewerID, at.UTC(),
	)
	f, err := scanFlag(row)
	if err == nil {
		return f, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("review flag %d: %w", id, err)
	}

	var status model.FlagStatus
	err = r.db.QueryRow(ctx, `SELECT status FROM moderation_flags WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("review flag %d: %w", id, err)
	}
	return nil, ErrAlreadyReviewed
}

// Summary aggregates all flags by status, level, content type and disposition.
func (r *FlagRepository) Summary(ctx context.Context) (*model.RiskSummary, error) {
	rows, err := r.db.Query(ctx,
		`SELECT status, risk_level, content_type, disposition, COUNT(*)
		 FROM moderation_flags
		 GROUP BY status, risk_level, content_type, disposition`,
	)
	if err != nil {
		return nil, fmt.Errorf("summarize flags: %w", err)
	}
	defer rows.Close()

	s := model.NewRiskSummary()
	for rows.Next() {
		var (
			status model.FlagStatus
			level  model.RiskLevel
			ct     model.ContentType
			d      *model.Disposition
			n      int
		)
		if err := rows.Scan(&status, &level, &ct, &d, &n); err != nil {
			return nil, err
		}
		s.Total += n
		s.ByStatus[status] += n
		s.ByLevel[level] += n
		s.ByContentType[ct] += n
		if d != nil {
			s.ByDisposition[*d] += n
		}
	}
	return s, rows.Err()
}

func scanFlag(row pgx.Row) (*model.Flag, error) {
	var f model.Flag
	err := row.Scan(
		&f.ID, &f.ContentType, &f.ContentID, &f.Reasons, &f.Status, &f.RiskScore, &f.RiskLevel,
		&f.FlaggedAt, &f.ReviewedAt, &f.ReviewerID, &f.Disposition,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}
