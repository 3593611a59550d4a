package service

import (
	"context"

	"github.com/jmerrifield20/contentrisk/internal/moderation/model"
	"github.com/jmerrifield20/contentrisk/internal/notify"
	"github.com/jmerrifield20/contentrisk/internal/risk"
	"github.com/jmerrifield20/contentrisk/internal/velocity"
	"go.uber.org/zap"
)

// AutoModAd decides whether a candidate ad may be published. Only a high
// risk level blocks. The gate never persists a flag; internal failures fail
// open with Degraded set.
func (e *Engine) AutoModAd(ctx context.Context, ad *model.Ad) (*model.Verdict, error) {
	if ad == nil {
		return nil, &model.ErrValidation{Msg: "ad is required"}
	}
	h, degraded := e.history(ctx, ad.UserID, nil, nil)
	a, err := e.analyze(risk.AdSubject{Ad: *ad, History: h})
	if err != nil {
		return e.failOpen(model.StageContent, "ad", err), nil
	}
	e.tick(ctx, velocity.ActivityListing, ad.UserID)
	return e.verdict(ctx, model.StageContent, a, degraded), nil
}

// AutoModMessage decides whether a candidate message may be sent. The sender
// is checked first and a high-risk sender is blocked without scoring the
// body. Otherwise the body is scored with the sender's analysis feeding
// sender_risk.
func (e *Engine) AutoModMessage(ctx context.Context, m *model.Message) (*model.Verdict, error) {
	if m == nil {
		return nil, &model.ErrValidation{Msg: "message is required"}
	}
	defer e.tick(ctx, velocity.ActivityMessage, m.SenderID)

	sender, err := e.senderAnalysis(ctx, m.SenderID, true)
	degraded := false
	if err != nil {
		e.logger.Warn("automod: sender stage unavailable",
			zap.Int64("sender_id", m.SenderID), zap.Error(err))
		degraded = true
	} else if sender.RiskLevel == model.RiskHigh {
		return e.verdict(ctx, model.StageSender, sender, false), nil
	}

	a, err := e.analyze(risk.MessageSubject{Message: *m, Sender: sender})
	if err != nil {
		return e.failOpen(model.StageContent, "message", err), nil
	}
	return e.verdict(ctx, model.StageContent, a, degraded), nil
}

func (e *Engine) verdict(ctx context.Context, stage string, a *model.Analysis, degraded bool) *model.Verdict {
	v := &model.Verdict{
		Allowed:  a.RiskLevel != model.RiskHigh,
		Stage:    stage,
		Degraded: degraded,
		Analysis: a,
	}
	if !v.Allowed {
		v.Reasons = a.TriggeredNames()
		e.logger.Info("automod blocked",
			zap.String("stage", stage),
			zap.String("subject_type", string(a.SubjectType)),
			zap.Int64("subject_id", a.SubjectID),
			zap.Float64("risk_score", a.RiskScore),
			zap.Strings("reasons", v.Reasons),
		)
		e.dispatch(ctx, notify.EventAutoModBlocked, v)
	}
	e.metrics.ObserveVerdict(stage, v.Allowed, v.Degraded)
	return v
}

func (e *Engine) failOpen(stage, what string, err error) *model.Verdict {
	e.logger.Warn("automod failing open", zap.String("candidate", what), zap.Error(err))
	e.metrics.ObserveVerdict(stage, true, true)
	return &model.Verdict{Allowed: true, Stage: stage, Degraded: true}
}

// tick records one unit of activity for velocity tracking.
func (e *Engine) tick(ctx context.Context, activity string, userID int64) {
	if e.counts == nil || userID <= 0 {
		return
	}
	if err := e.counts.Increment(ctx, activity, userID); err != nil {
		e.logger.Warn("velocity increment failed",
			zap.String("activity", activity), zap.Int64("user_id", userID), zap.Error(err))
	}
}
