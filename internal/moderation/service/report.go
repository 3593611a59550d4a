package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmerrifield20/contentrisk/internal/auditlog"
	"github.com/jmerrifield20/contentrisk/internal/moderation/model"
	"github.com/jmerrifield20/contentrisk/internal/moderation/repository"
	"github.com/jmerrifield20/contentrisk/internal/notify"
	"go.uber.org/zap"
)

// ReportStore is the persistence interface for user reports.
// *repository.ReportRepository and *repository.MemoryReportRepository satisfy it.
type ReportStore interface {
	Create(ctx context.Context, report *model.Report) error
	GetByID(ctx context.Context, id int64) (*model.Report, error)
	List(ctx context.Context, status model.ReportStatus, offset, limit int) ([]*model.Report, int, error)
	UpdateStatus(ctx context.Context, id int64, next model.ReportStatus, decision string, adminID int64, at time.Time) (*model.Report, error)
}

// ReportService handles user reports about content. Filing a report triggers
// a fresh analysis of the reported content.
type ReportService struct {
	repo   ReportStore
	engine *Engine
	logger *zap.Logger
}

// NewReportService creates a new ReportService.
func NewReportService(repo ReportStore, engine *Engine, logger *zap.Logger) *ReportService {
	return &ReportService{repo: repo, engine: engine, logger: logger}
}

// File validates and stores a report, then re-analyses the reported content.
// Analysis failures are logged and do not fail the report.
func (s *ReportService) File(ctx context.Context, req *model.CreateReportRequest) (*model.Report, error) {
	ct, err := model.ParseContentType(req.ContentType)
	if err != nil {
		return nil, err
	}
	if req.ContentID <= 0 {
		return nil, &model.ErrValidation{Msg: "content_id must be positive"}
	}
	if req.ReporterUserID <= 0 {
		return nil, &model.ErrValidation{Msg: "reporter_user_id must be positive"}
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, &model.ErrValidation{Msg: "reason is required"}
	}
	if len(req.Description) > model.MaxReportDescriptionLength {
		return nil, &model.ErrValidation{Msg: fmt.Sprintf("description exceeds %d characters", model.MaxReportDescriptionLength)}
	}

	rpt := &model.Report{
		ReporterUserID: req.ReporterUserID,
		ContentType:    ct,
		ContentID:      req.ContentID,
		Reason:         reason,
		Description:    req.Description,
	}
	if err := s.repo.Create(ctx, rpt); err != nil {
		return nil, fmt.Errorf("create report: %w", err)
	}

	s.logger.Info("report filed",
		zap.Int64("report_id", rpt.ID),
		zap.String("content_type", string(ct)),
		zap.Int64("content_id", rpt.ContentID),
	)
	s.engine.appendAudit(ctx, auditlog.Subject("report", rpt.ID), auditlog.ActionReportFiled,
		strconv.FormatInt(rpt.ReporterUserID, 10), rpt)
	s.engine.dispatch(ctx, notify.EventReportFiled, rpt)

	if _, err := s.engine.Analyze(ctx, ct, rpt.ContentID); err != nil {
		level := zap.WarnLevel
		if errors.Is(err, repository.ErrNotFound) {
			level = zap.DebugLevel
		}
		s.logger.Log(level, "report: analysis of reported content failed",
			zap.Int64("report_id", rpt.ID), zap.Error(err))
	}
	return rpt, nil
}

// Get returns a report by ID.
func (s *ReportService) Get(ctx context.Context, id int64) (*model.Report, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns a page of reports, newest first. An empty status lists all.
func (s *ReportService) List(ctx context.Context, status string, offset, limit int) ([]*model.Report, int, error) {
	st := model.ReportStatus(strings.TrimSpace(status))
	switch st {
	case "", model.ReportStatusPending, model.ReportStatusUnderReview,
		model.ReportStatusResolved, model.ReportStatusDismissed, model.ReportStatusEscalated:
	default:
		return nil, 0, &model.ErrValidation{Msg: fmt.Sprintf("unknown report status %q", status)}
	}
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.List(ctx, st, offset, limit)
}

// Update moves a report through its lifecycle on behalf of an admin.
func (s *ReportService) Update(ctx context.Context, id int64, req *model.UpdateReportRequest, adminID int64) (*model.Report, error) {
	switch req.Status {
	case model.ReportStatusUnderReview, model.ReportStatusResolved,
		model.ReportStatusDismissed, model.ReportStatusEscalated:
	default:
		return nil, &model.ErrValidation{Msg: "status must be one of 'under_review', 'resolved', 'dismissed', 'escalated'"}
	}

	rpt, err := s.repo.UpdateStatus(ctx, id, req.Status, req.ModerationDecision, adminID, s.engine.now())
	if err != nil {
		return nil, err
	}
	s.engine.appendAudit(ctx, auditlog.Subject("report", rpt.ID), auditlog.ActionReportUpdated,
		strconv.FormatInt(adminID, 10), rpt)
	s.engine.dispatch(ctx, notify.EventReportUpdated, rpt)
	return rpt, nil
}
