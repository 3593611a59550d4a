package notify_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmerrifield20/contentrisk/internal/email"
	"github.com/jmerrifield20/contentrisk/internal/moderation/model"
	"github.com/jmerrifield20/contentrisk/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type captureSender struct {
	mu   sync.Mutex
	sent []email.Message
	err  error
}

func (c *captureSender) Send(_ context.Context, msg email.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return c.err
}

func flag(level model.RiskLevel) *model.Flag {
	return &model.Flag{
		ID: 7, ContentType: model.ContentAd, ContentID: 11,
		Reasons: []string{"scam_keywords", "price_anomaly"}, RiskScore: 8, RiskLevel: level,
		FlaggedAt: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestMailAlerter_highRiskFlagsOnly(t *testing.T) {
	s := &captureSender{}
	a := notify.NewMailAlerter(s, []string{"queue@example.com"}, model.RiskHigh, zap.NewNop())
	ctx := context.Background()

	a.Dispatch(ctx, notify.EventFlagCreated, flag(model.RiskMedium))
	a.Dispatch(ctx, notify.EventFlagCreated, flag(model.RiskHigh))
	a.Dispatch(ctx, notify.EventFlagMerged, flag(model.RiskHigh))
	a.Dispatch(ctx, notify.EventReportFiled, &model.Report{ID: 1})
	a.Wait()

	require.Len(t, s.sent, 1)
	msg := s.sent[0]
	assert.Equal(t, []string{"queue@example.com"}, msg.To)
	assert.Equal(t, "[moderation] high risk ad 11 flagged", msg.Subject)
	assert.Contains(t, msg.Body, "Reasons: scam_keywords, price_anomaly")
}

func TestMailAlerter_mergeRaisingLevelAlertsOnce(t *testing.T) {
	s := &captureSender{}
	a := notify.NewMailAlerter(s, []string{"queue@example.com"}, model.RiskHigh, zap.NewNop())
	ctx := context.Background()

	a.Dispatch(ctx, notify.EventFlagCreated, flag(model.RiskMedium))
	a.Dispatch(ctx, notify.EventFlagMerged, flag(model.RiskMedium))
	a.Dispatch(ctx, notify.EventFlagMerged, flag(model.RiskHigh))
	a.Dispatch(ctx, notify.EventFlagMerged, flag(model.RiskHigh))
	a.Wait()

	require.Len(t, s.sent, 1)
	assert.Equal(t, "[moderation] high risk ad 11 escalated", s.sent[0].Subject)
	assert.Contains(t, s.sent[0].Body, "Flag 7 for ad 11 reached this level")
}

func TestMailAlerter_mediumThreshold(t *testing.T) {
	s := &captureSender{}
	a := notify.NewMailAlerter(s, []string{"queue@example.com"}, model.RiskMedium, zap.NewNop())
	a.Dispatch(context.Background(), notify.EventFlagCreated, flag(model.RiskMedium))
	a.Wait()
	assert.Len(t, s.sent, 1)
}

func TestMailAlerter_blockedVerdict(t *testing.T) {
	s := &captureSender{err: errors.New("relay down")}
	a := notify.NewMailAlerter(s, []string{"queue@example.com"}, "bogus", zap.NewNop())

	var (
		mu      sync.Mutex
		outcome []bool
	)
	a.SetMetricsRecorder(func(eventType string, ok bool) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, "email:"+notify.EventAutoModBlocked, eventType)
		outcome = append(outcome, ok)
	})

	a.Dispatch(context.Background(), notify.EventAutoModBlocked, &model.Verdict{
		Stage:   model.StageSender,
		Reasons: []string{"restricted_account"},
		Analysis: &model.Analysis{
			SubjectType: model.ContentUser, SubjectID: 42, RiskLevel: model.RiskHigh, RiskScore: 10,
		},
	})
	a.Wait()

	require.Len(t, s.sent, 1)
	assert.Equal(t, "[moderation] user 42 blocked at sender stage", s.sent[0].Subject)
	assert.Equal(t, []bool{false}, outcome)
}

func TestFanout(t *testing.T) {
	var calls []string
	rec := func(name string) notify.Dispatcher {
		return dispatchFunc(func(_ context.Context, eventType string, _ any) {
			calls = append(calls, name+":"+eventType)
		})
	}
	notify.Fanout{rec("a"), rec("b")}.Dispatch(context.Background(), "x", nil)
	assert.Equal(t, []string{"a:x", "b:x"}, calls)
}

type dispatchFunc func(ctx context.Context, eventType string, payload any)

func (f dispatchFunc) Dispatch(ctx context.Context, eventType string, payload any) {
	f(ctx, eventType, payload)
}
