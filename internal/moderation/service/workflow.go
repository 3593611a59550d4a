package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jmerrifield20/contentrisk/internal/auditlog"
	"github.com/jmerrifield20/contentrisk/internal/moderation/model"
	"github.com/jmerrifield20/contentrisk/internal/moderation/repository"
	"github.com/jmerrifield20/contentrisk/internal/notify"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MaxBulkReview bounds the number of flag ids accepted by one bulk review.
const MaxBulkReview = 500

// FlagContent manually flags a piece of content. Reasons are merged into the
// pending flag if one exists.
func (e *Engine) FlagContent(ctx context.Context, req *model.FlagRequest) (*model.Flag, error) {
	ct, err := model.ParseContentType(req.ContentType)
	if err != nil {
		return nil, err
	}
	if req.ContentID <= 0 {
		return nil, &model.ErrValidation{Msg: "content_id must be positive"}
	}
	reasons := make([]string, 0, len(req.Reasons))
	for _, r := range req.Reasons {
		if r != "" {
			reasons = append(reasons, r)
		}
	}
	if len(reasons) == 0 {
		return nil, &model.ErrValidation{Msg: "at least one reason is required"}
	}

	f, created, err := e.flags.Upsert(ctx, ct, req.ContentID, reasons, 0, model.RiskLow)
	if err != nil {
		return nil, fmt.Errorf("flag content: %w", err)
	}
	e.metrics.ObserveFlagUpsert(ct, created)

	action, event := auditlog.ActionFlagMerged, notify.EventFlagMerged
	if created {
		action, event = auditlog.ActionFlagCreated, notify.EventFlagCreated
	}
	e.appendAudit(ctx, auditlog.Subject(string(ct), req.ContentID), action, auditlog.SystemActor, f)
	e.dispatch(ctx, event, f)
	return f, nil
}

// GetFlag returns a flag by ID.
func (e *Engine) GetFlag(ctx context.Context, id int64) (*model.Flag, error) {
	return e.flags.GetByID(ctx, id)
}

// ListFlags returns a page of flags, newest flagged first, and the total
// number of flags matching status.
func (e *Engine) ListFlags(ctx context.Context, status string, offset, limit int) ([]*model.Flag, int, error) {
	filter, err := model.ParseStatusFilter(status)
	if err != nil {
		return nil, 0, err
	}
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return e.flags.List(ctx, filter, offset, limit)
}

// ReviewFlag records a reviewer's decision on a pending flag. The action is
// validated before anything is read or written.
func (e *Engine) ReviewFlag(ctx context.Context, flagID int64, action string, reviewerID int64) (*model.Flag, error) {
	d, err := model.ParseAction(action)
	if err != nil {
		return nil, err
	}
	return e.review(ctx, flagID, d, reviewerID)
}

func (e *Engine) review(ctx context.Context, flagID int64, d model.Disposition, reviewerID int64) (*model.Flag, error) {
	f, err := e.flags.Review(ctx, flagID, d, reviewerID, e.now())
	if err != nil {
		return nil, err
	}
	e.metrics.ObserveReview(d)
	e.logger.Info("flag reviewed",
		zap.Int64("flag_id", f.ID),
		zap.String("disposition", string(d)),
		zap.Int64("reviewer_id", reviewerID),
	)
	e.appendAudit(ctx, auditlog.Subject(string(f.ContentType), f.ContentID),
		auditlog.ActionFlagReviewed, strconv.FormatInt(reviewerID, 10), f)
	e.dispatch(ctx, notify.EventFlagReviewed, f)
	return f, nil
}

// BulkReview applies one action to many flags. Each id is reviewed
// independently with bounded concurrency; failures are reported per id and
// never stop the batch. An invalid action rejects the whole request before
// any flag is touched.
func (e *Engine) BulkReview(ctx context.Context, req *model.BulkReviewRequest, reviewerID int64) (*model.BulkResult, error) {
	d, err := model.ParseAction(req.Action)
	if err != nil {
		return nil, err
	}
	if len(req.FlagIDs) == 0 {
		return nil, &model.ErrValidation{Msg: "flag_ids must not be empty"}
	}
	if len(req.FlagIDs) > MaxBulkReview {
		return nil, &model.ErrValidation{Msg: fmt.Sprintf("at most %d flag_ids per request", MaxBulkReview)}
	}

	failures := make([]*model.BulkFailure, len(req.FlagIDs))
	var g errgroup.Group
	g.SetLimit(e.bulkLimit)
	for i, id := range req.FlagIDs {
		g.Go(func() error {
			if _, err := e.review(ctx, id, d, reviewerID); err != nil {
				failures[i] = &model.BulkFailure{FlagID: id, Reason: failureReason(err)}
				if !isClientFailure(err) {
					e.logger.Warn("bulk review: flag failed", zap.Int64("flag_id", id), zap.Error(err))
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	res := &model.BulkResult{TotalRequested: len(req.FlagIDs)}
	for _, f := range failures {
		if f != nil {
			res.Failures = append(res.Failures, *f)
		}
	}
	res.Processed = res.TotalRequested - len(res.Failures)
	return res, nil
}

// RiskSummary aggregates all flags for dashboards.
func (e *Engine) RiskSummary(ctx context.Context) (*model.RiskSummary, error) {
	return e.flags.Summary(ctx)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return "flag not found"
	case errors.Is(err, repository.ErrAlreadyReviewed):
		return "flag already reviewed"
	}
	return "internal error"
}

func isClientFailure(err error) bool {
	return errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrAlreadyReviewed)
}
