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

const reportColumns = `id, reporter_user_id, content_type, content_id, reason, description, status,
	moderation_decision, created_at, resolved_by_admin_id, resolved_at`

// ReportRepository provides CRUD operations for user reports.
type ReportRepository struct {
	db *pgxpool.Pool
}

// NewReportRepository creates a new ReportRepository.
func NewReportRepository(db *pgxpool.Pool) *ReportRepository {
	return &ReportRepository{db: db}
}

// Create inserts a new pending report and fills in its ID and timestamps.
func (r *ReportRepository) Create(ctx context.Context, report *model.Report) error {
	report.Status = model.ReportStatusPending
	report.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO reports (reporter_user_id, content_type, content_id, reason, description, status, moderation_decision, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, '', $7)
		RETURNING id`
	return r.db.QueryRow(ctx, query,
		report.ReporterUserID, report.ContentType, report.ContentID,
		report.Reason, report.Description, report.Status, report.CreatedAt,
	).Scan(&report.ID)
}

// GetByID retrieves a report by ID.
func (r *ReportRepository) GetByID(ctx context.Context, id int64) (*model.Report, error) {
	row := r.db.QueryRow(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = $1`, id)
	rpt, err := scanReport(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rpt, err
}

// List returns paginated reports, newest first, optionally filtered by status.
func (r *ReportRepository) List(ctx context.Context, status model.ReportStatus, offset, limit int) ([]*model.Report, int, error) {
	if limit <= 0 {
		limit = 50
	}
	var total int
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM reports WHERE ($1 = '' OR status = $1)`, status,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count reports: %w", err)
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+reportColumns+` FROM reports
		 WHERE ($1 = '' OR status = $1)
		 ORDER BY created_at DESC, id DESC
		 OFFSET $2 LIMIT $3`,
		status, offset, limit,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	reports := []*model.Report{}
	for rows.Next() {
		rpt, err := scanReport(rows)
		if err != nil {
			return nil, 0, err
		}
		reports = append(reports, rpt)
	}
	return reports, total, rows.Err()
}

// UpdateStatus moves a report to next. The current status is locked and
// checked in the same transaction; a disallowed move returns
// ErrInvalidTransition.
func (r *ReportRepository) UpdateStatus(ctx context.Context, id int64, next model.ReportStatus, decision string, adminID int64, at time.Time) (*model.Report, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var cur model.ReportStatus
	err = tx.QueryRow(ctx, `SELECT status FROM reports WHERE id = $1 FOR UPDATE`, id).Scan(&cur)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock report %d: %w", id, err)
	}
	if !cur.CanTransition(next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur, next)
	}

	var resolvedBy *int64
	var resolvedAt *time.Time
	if next.IsTerminal() {
		ts := at.UTC()
		resolvedBy, resolvedAt = &adminID, &ts
	}
	row := tx.QueryRow(ctx,
		`UPDATE reports
		 SET status = $2, moderation_decision = $3, resolved_by_admin_id = $4, resolved_at = $5
		 WHERE id = $1
		 RETURNING `+reportColumns,
		id, next, decision, resolvedBy, resolvedAt,
	)
	rpt, err := scanReport(row)
	if err != nil {
		return nil, fmt.Errorf("update report %d: %w", id, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit report %d: %w", id, err)
	}
	return rpt, nil
}

func scanReport(row pgx.Row) (*model.Report, error) {
	var rpt model.Report
	err := row.Scan(
		&rpt.ID, &rpt.ReporterUserID, &rpt.ContentType, &rpt.ContentID,
		&rpt.Reason, &rpt.Description, &rpt.Status,
		&rpt.ModerationDecision, &rpt.CreatedAt,
		&rpt.ResolvedByAdminID, &rpt.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rpt, nil
}
