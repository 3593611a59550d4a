package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/jmerrifield20/contentrisk/internal/auditlog"
	"github.com/jmerrifield20/contentrisk/internal/moderation/model"
	"github.com/jmerrifield20/contentrisk/internal/moderation/repository"
	"github.com/jmerrifield20/contentrisk/internal/notify"
	"github.com/jmerrifield20/contentrisk/internal/risk"
	"github.com/jmerrifield20/contentrisk/internal/velocity"
	"go.uber.org/zap"
)

// FlagStore is the persistence interface for flags.
// *repository.FlagRepository and *repository.MemoryFlagRepository satisfy it.
type FlagStore interface {
	Upsert(ctx context.Context, ct model.ContentType, contentID int64, reasons []string, score float64, level model.RiskLevel) (*model.Flag, bool, error)
	GetByID(ctx context.Context, id int64) (*model.Flag, error)
	List(ctx context.Context, filter model.StatusFilter, offset, limit int) ([]*model.Flag, int, error)
	Review(ctx context.Context, id int64, d model.Disposition, reviewerID int64, at time.Time) (*model.Flag, error)
	Summary(ctx context.Context) (*model.RiskSummary, error)
}

// ContentSource reads marketplace records and moderation history. The engine
// never writes through it.
type ContentSource interface {
	GetAd(ctx context.Context, id int64) (*model.Ad, error)
	GetUser(ctx context.Context, id int64) (*model.User, error)
	GetMessage(ctx context.Context, id int64) (*model.Message, error)
	PriorFlagCount(ctx context.Context, userID int64) (int, error)
}

// EventDispatcher publishes moderation events. *notify.Notifier satisfies it.
type EventDispatcher interface {
	Dispatch(ctx context.Context, eventType string, payload any)
}

// Metrics receives engine outcomes. The handler package provides the
// Prometheus implementation.
type Metrics interface {
	ObserveAnalysis(ct model.ContentType, level model.RiskLevel)
	ObserveVerdict(stage string, allowed, degraded bool)
	ObserveFlagUpsert(ct model.ContentType, created bool)
	ObserveReview(d model.Disposition)
	ObserveAuditAppend()
}

type nopMetrics struct{}

func (nopMetrics) ObserveAnalysis(model.ContentType, model.RiskLevel) {}
func (nopMetrics) ObserveVerdict(string, bool, bool)                  {}
func (nopMetrics) ObserveFlagUpsert(model.ContentType, bool)          {}
func (nopMetrics) ObserveReview(model.Disposition)                    {}
func (nopMetrics) ObserveAuditAppend()                                {}

// Engine analyses content, persists suspicious results as flags and runs the
// review workflow and the pre-publish gate on top of them.
type Engine struct {
	analyzer    *risk.Analyzer
	flags       FlagStore
	content     ContentSource
	counts      velocity.Store                       // nil = velocity signals unknown
	audit       auditlog.Log                         // nil = no audit records
	events      EventDispatcher                      // nil = no webhook events
	senderCache *expirable.LRU[int64, senderProfile] // nil = sender loaded on every message
	metrics     Metrics
	bulkLimit   int
	now         func() time.Time
	logger      *zap.Logger
}

// NewEngine creates an Engine. counts may be nil to leave velocity signals
// unknown.
func NewEngine(analyzer *risk.Analyzer, flags FlagStore, content ContentSource, counts velocity.Store, logger *zap.Logger) *Engine {
	return &Engine{
		analyzer:  analyzer,
		flags:     flags,
		content:   content,
		counts:    counts,
		metrics:   nopMetrics{},
		bulkLimit: 8,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger,
	}
}

// SetAuditLog configures the audit chain that records flag transitions.
func (e *Engine) SetAuditLog(l auditlog.Log) {
	e.audit = l
}

// SetEventDispatcher configures webhook event delivery.
func (e *Engine) SetEventDispatcher(d EventDispatcher) {
	e.events = d
}

// SetMetrics configures the metrics sink.
func (e *Engine) SetMetrics(m Metrics) {
	if m == nil {
		m = nopMetrics{}
	}
	e.metrics = m
}

// senderProfile is the slow-changing part of a sender's history. Velocity
// counters are read on every message and never cached.
type senderProfile struct {
	user       *model.User
	priorFlags *int
}

// SetSenderCache enables caching of sender records and prior flag counts used
// by the message gate. A size of zero or less disables the cache.
func (e *Engine) SetSenderCache(size int, ttl time.Duration) {
	if size <= 0 {
		e.senderCache = nil
		return
	}
	e.senderCache = expirable.NewLRU[int64, senderProfile](size, nil, ttl)
}

// SetBulkConcurrency bounds the number of flags reviewed in parallel by
// BulkReview.
func (e *Engine) SetBulkConcurrency(n int) {
	if n > 0 {
		e.bulkLimit = n
	}
}

// SetClock replaces the time source.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Policy returns the active risk policy.
func (e *Engine) Policy() risk.Policy {
	return e.analyzer.Policy()
}

// AnalyzeAd scores an ad snapshot. A suspicious ad with a non-zero ID is
// flagged.
func (e *Engine) AnalyzeAd(ctx context.Context, ad *model.Ad) (*model.AnalysisResult, error) {
	if ad == nil {
		return nil, &model.ErrValidation{Msg: "ad is required"}
	}
	h, _ := e.history(ctx, ad.UserID, nil, nil)
	a, err := e.analyze(risk.AdSubject{Ad: *ad, History: h})
	if err != nil {
		return nil, err
	}
	return e.persist(ctx, a)
}

// AnalyzeUser scores a user snapshot. A suspicious user with a non-zero ID is
// flagged.
func (e *Engine) AnalyzeUser(ctx context.Context, u *model.User) (*model.AnalysisResult, error) {
	if u == nil {
		return nil, &model.ErrValidation{Msg: "user is required"}
	}
	a, err := e.analyzeUser(ctx, u)
	if err != nil {
		return nil, err
	}
	return e.persist(ctx, a)
}

// AnalyzeMessage scores a message snapshot, analysing its sender first so
// that sender_risk can contribute. A suspicious message with a non-zero ID is
// flagged.
func (e *Engine) AnalyzeMessage(ctx context.Context, m *model.Message) (*model.AnalysisResult, error) {
	if m == nil {
		return nil, &model.ErrValidation{Msg: "message is required"}
	}
	sender, err := e.senderAnalysis(ctx, m.SenderID, false)
	if err != nil {
		e.logger.Warn("sender analysis unavailable",
			zap.Int64("sender_id", m.SenderID), zap.Error(err))
	}
	a, err := e.analyze(risk.MessageSubject{Message: *m, Sender: sender})
	if err != nil {
		return nil, err
	}
	return e.persist(ctx, a)
}

// Analyze loads the content identified by (ct, id) from the content source
// and analyses it.
func (e *Engine) Analyze(ctx context.Context, ct model.ContentType, id int64) (*model.AnalysisResult, error) {
	if id <= 0 {
		return nil, &model.ErrValidation{Msg: "content id must be positive"}
	}
	switch ct {
	case model.ContentAd:
		ad, err := e.content.GetAd(ctx, id)
		if err != nil {
			return nil, err
		}
		return e.AnalyzeAd(ctx, ad)
	case model.ContentUser:
		u, err := e.content.GetUser(ctx, id)
		if err != nil {
			return nil, err
		}
		return e.AnalyzeUser(ctx, u)
	case model.ContentMessage:
		m, err := e.content.GetMessage(ctx, id)
		if err != nil {
			return nil, err
		}
		return e.AnalyzeMessage(ctx, m)
	}
	return nil, &model.ErrValidation{Msg: fmt.Sprintf("unsupported content type %q", ct)}
}

func (e *Engine) analyze(s risk.Subject) (*model.Analysis, error) {
	a, err := e.analyzer.Analyze(s, e.now())
	if err != nil {
		return nil, err
	}
	e.metrics.ObserveAnalysis(a.SubjectType, a.RiskLevel)
	return a, nil
}

func (e *Engine) analyzeUser(ctx context.Context, u *model.User) (*model.Analysis, error) {
	h, _ := e.history(ctx, u.ID, u, nil)
	return e.analyze(risk.UserSubject{User: *u, History: h})
}

// senderAnalysis analyses the sender of a message. When cached is true the
// user record and prior flag count come from the sender cache; velocity is
// always read fresh so a burst of messages is seen as it happens.
func (e *Engine) senderAnalysis(ctx context.Context, senderID int64, cached bool) (*model.Analysis, error) {
	useCache := cached && e.senderCache != nil
	var (
		p   senderProfile
		hit bool
	)
	if useCache {
		p, hit = e.senderCache.Get(senderID)
	}
	if !hit {
		u, err := e.content.GetUser(ctx, senderID)
		if err != nil {
			return nil, fmt.Errorf("load sender %d: %w", senderID, err)
		}
		p.user = u
	}

	h, _ := e.history(ctx, senderID, p.user, p.priorFlags)
	if useCache && !hit && h.PriorFlags != nil {
		p.priorFlags = h.PriorFlags
		e.senderCache.Add(senderID, p)
	}
	return e.analyze(risk.UserSubject{User: *p.user, History: h})
}

// history assembles the behavioural context of userID. Every read that fails
// leaves its field nil, which the extractors report as unknown, and sets
// degraded. u and priorFlags may be passed when they are already at hand.
func (e *Engine) history(ctx context.Context, userID int64, u *model.User, priorFlags *int) (h model.History, degraded bool) {
	if userID <= 0 {
		return h, false
	}

	if u == nil {
		loaded, err := e.content.GetUser(ctx, userID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			e.logger.Warn("history: load user", zap.Int64("user_id", userID), zap.Error(err))
			degraded = true
		}
		u = loaded
	}
	if u != nil {
		h.AccountAgeDays = model.AccountAge(u.CreatedAt, e.now())
	}

	if e.counts != nil {
		if n, err := e.counts.GetCount(ctx, velocity.ActivityListing, userID); err == nil {
			h.ListingsLastHour = &n
		} else {
			e.logger.Warn("history: listing velocity", zap.Int64("user_id", userID), zap.Error(err))
			degraded = true
		}
		if n, err := e.counts.GetCount(ctx, velocity.ActivityMessage, userID); err == nil {
			h.MessagesLastHour = &n
		} else {
			e.logger.Warn("history: message velocity", zap.Int64("user_id", userID), zap.Error(err))
			degraded = true
		}
	}

	if priorFlags != nil {
		h.PriorFlags = priorFlags
	} else if n, err := e.content.PriorFlagCount(ctx, userID); err == nil {
		h.PriorFlags = &n
	} else {
		e.logger.Warn("history: prior flags", zap.Int64("user_id", userID), zap.Error(err))
		degraded = true
	}
	return h, degraded
}

// persist flags a suspicious analysis of stored content.
func (e *Engine) persist(ctx context.Context, a *model.Analysis) (*model.AnalysisResult, error) {
	res := &model.AnalysisResult{Analysis: a}
	if !a.IsSuspicious || a.SubjectID == 0 {
		return res, nil
	}

	f, created, err := e.flags.Upsert(ctx, a.SubjectType, a.SubjectID, a.TriggeredNames(), a.RiskScore, a.RiskLevel)
	if err != nil {
		return nil, fmt.Errorf("persist flag: %w", err)
	}
	e.metrics.ObserveFlagUpsert(f.ContentType, created)
	res.Flag, res.FlagCreated = f, created

	action, event := auditlog.ActionFlagMerged, notify.EventFlagMerged
	if created {
		action, event = auditlog.ActionFlagCreated, notify.EventFlagCreated
	}
	e.logger.Info("content flagged",
		zap.Int64("flag_id", f.ID),
		zap.String("content_type", string(f.ContentType)),
		zap.Int64("content_id", f.ContentID),
		zap.Float64("risk_score", a.RiskScore),
		zap.Bool("created", created),
	)
	e.appendAudit(ctx, auditlog.Subject(string(f.ContentType), f.ContentID), action, auditlog.SystemActor, f)
	e.dispatch(ctx, event, f)
	return res, nil
}

// appendAudit appends an audit record in a non-fatal manner.
func (e *Engine) appendAudit(ctx context.Context, subject, action, actor string, payload any) {
	if e.audit == nil {
		return
	}
	if _, err := e.audit.Append(ctx, subject, action, actor, payload); err != nil {
		e.logger.Warn("audit append failed",
			zap.String("subject", subject),
			zap.String("action", action),
			zap.Error(err),
		)
		return
	}
	e.metrics.ObserveAuditAppend()
}

func (e *Engine) dispatch(ctx context.Context, eventType string, payload any) {
	if e.events != nil {
		e.events.Dispatch(ctx, eventType, payload)
	}
}
