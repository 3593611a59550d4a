package notify

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jmerrifield20/contentrisk/internal/email"
	"github.com/jmerrifield20/contentrisk/internal/moderation/model"
	"go.uber.org/zap"
)

// alertedFlags bounds the set of flag ids already alerted on.
const alertedFlags = 8192

// MailAlerter emails reviewers when a flag reaches MinLevel, either on
// creation or when a merge raises it, and when the gate blocks content. Each
// flag is alerted on at most once per process. Other events are ignored.
type MailAlerter struct {
	sender    email.Sender
	to        []string
	minLevel  model.RiskLevel
	alerted   *lru.Cache[int64, struct{}]
	timeout   time.Duration
	onMetrics MetricsRecorder
	logger    *zap.Logger
	wg        sync.WaitGroup
}

// NewMailAlerter creates an alerter. An unknown minLevel falls back to high.
func NewMailAlerter(sender email.Sender, to []string, minLevel model.RiskLevel, logger *zap.Logger) *MailAlerter {
	if !slices.Contains(model.RiskLevels, minLevel) {
		minLevel = model.RiskHigh
	}
	alerted, _ := lru.New[int64, struct{}](alertedFlags) // only fails for a non-positive size
	return &MailAlerter{
		sender:   sender,
		to:       to,
		minLevel: minLevel,
		alerted:  alerted,
		timeout:  30 * time.Second,
		logger:   logger,
	}
}

// SetMetricsRecorder configures the metrics callback.
func (a *MailAlerter) SetMetricsRecorder(fn MetricsRecorder) {
	a.onMetrics = fn
}

// Dispatch sends an alert for qualifying events in the background.
func (a *MailAlerter) Dispatch(ctx context.Context, eventType string, payload any) {
	msg, ok := a.compose(eventType, payload)
	if !ok {
		return
	}
	ctx = context.WithoutCancel(ctx)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		sendCtx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()
		err := a.sender.Send(sendCtx, msg)
		if a.onMetrics != nil {
			a.onMetrics("email:"+eventType, err == nil)
		}
		if err != nil {
			a.logger.Warn("notify: alert email failed", zap.String("type", eventType), zap.Error(err))
		}
	}()
}

// Wait blocks until all in-flight alerts have been sent.
func (a *MailAlerter) Wait() {
	a.wg.Wait()
}

func (a *MailAlerter) compose(eventType string, payload any) (email.Message, bool) {
	switch eventType {
	case EventFlagCreated, EventFlagMerged:
		f, ok := payload.(*model.Flag)
		if !ok || levelRank(f.RiskLevel) < levelRank(a.minLevel) {
			return email.Message{}, false
		}
		if seen, _ := a.alerted.ContainsOrAdd(f.ID, struct{}{}); seen {
			return email.Message{}, false
		}
		verb, lead := "flagged", "Flag %d was raised for %s %d."
		if eventType == EventFlagMerged {
			verb, lead = "escalated", "Flag %d for %s %d reached this level after a new analysis."
		}
		return email.Message{
			To:      a.to,
			Subject: fmt.Sprintf("[moderation] %s risk %s %d %s", f.RiskLevel, f.ContentType, f.ContentID, verb),
			Body: fmt.Sprintf(lead+"\n\nRisk: %s (%.1f)\nReasons: %s\nFlagged at: %s\n",
				f.ID, f.ContentType, f.ContentID, f.RiskLevel, f.RiskScore,
				strings.Join(f.Reasons, ", "), f.FlaggedAt.Format(time.RFC3339)),
		}, true

	case EventAutoModBlocked:
		v, ok := payload.(*model.Verdict)
		if !ok || v.Allowed {
			return email.Message{}, false
		}
		subject := "[moderation] content blocked at " + v.Stage + " stage"
		body := fmt.Sprintf("The auto-moderation gate blocked a candidate at the %s stage.\n\nReasons: %s\n",
			v.Stage, strings.Join(v.Reasons, ", "))
		if v.Analysis != nil {
			subject = fmt.Sprintf("[moderation] %s %d blocked at %s stage", v.Analysis.SubjectType, v.Analysis.SubjectID, v.Stage)
			body += fmt.Sprintf("Risk: %s (%.1f)\n", v.Analysis.RiskLevel, v.Analysis.RiskScore)
		}
		return email.Message{To: a.to, Subject: subject, Body: body}, true
	}
	return email.Message{}, false
}

func levelRank(l model.RiskLevel) int {
	return slices.Index(model.RiskLevels, l)
}
