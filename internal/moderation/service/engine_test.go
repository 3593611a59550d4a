package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmerrifield20/contentrisk/internal/auditlog"
	"github.com/jmerrifield20/contentrisk/internal/moderation/model"
	"github.com/jmerrifield20/contentrisk/internal/moderation/repository"
	"github.com/jmerrifield20/contentrisk/internal/moderation/service"
	"github.com/jmerrifield20/contentrisk/internal/notify"
	"github.com/jmerrifield20/contentrisk/internal/risk"
	"github.com/jmerrifield20/contentrisk/internal/velocity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	ctx     = context.Background()
	fixedAt = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
)

func ptr[T any](v T) *T { return &v }

// recordingDispatcher captures dispatched event types.
type recordingDispatcher struct {
	mu     sync.Mutex
	events []string
}

func (d *recordingDispatcher) Dispatch(_ context.Context, eventType string, _ any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, eventType)
}

func (d *recordingDispatcher) types() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.events...)
}

type testEnv struct {
	engine  *service.Engine
	flags   *repository.MemoryFlagRepository
	content *repository.MemoryContent
	counts  *velocity.MemStore
	audit   *auditlog.MemoryLog
	events  *recordingDispatcher
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	analyzer, err := risk.NewAnalyzer(risk.DefaultPolicy())
	require.NoError(t, err)

	env := &testEnv{
		flags:  repository.NewMemoryFlagRepository(),
		counts: velocity.NewMemStore(),
		audit:  auditlog.NewMemoryLog(),
		events: &recordingDispatcher{},
	}
	env.content = repository.NewMemoryContent(env.flags)
	env.counts.SetClock(func() time.Time { return fixedAt })

	env.engine = service.NewEngine(analyzer, env.flags, env.content, env.counts, zap.NewNop())
	env.engine.SetClock(func() time.Time { return fixedAt })
	env.engine.SetAuditLog(env.audit)
	env.engine.SetEventDispatcher(env.events)

	// An established, verified seller.
	env.content.PutUser(model.User{
		ID: 10, CreatedAt: ptr(fixedAt.AddDate(-1, 0, 0)),
		EmailVerified: ptr(true), PhoneVerified: ptr(true), Status: model.UserStatusActive,
	})
	return env
}

func depositScamAd(id int64) *model.Ad {
	return &model.Ad{ID: id, UserID: 10, Category: "phones", Title: "iPhone 14, WhatsApp only, send deposit to activate"}
}

func TestAnalyzeAd_depositScamCreatesThenMergesFlag(t *testing.T) {
	env := newEnv(t)

	res, err := env.engine.AnalyzeAd(ctx, depositScamAd(11))
	require.NoError(t, err)
	assert.Equal(t, model.RiskHigh, res.Analysis.RiskLevel)
	require.NotNil(t, res.Flag)
	assert.True(t, res.FlagCreated)
	assert.Contains(t, res.Flag.Reasons, risk.SignalScamKeywords)
	assert.Equal(t, model.FlagStatusPending, res.Flag.Status)

	again, err := env.engine.AnalyzeAd(ctx, depositScamAd(11))
	require.NoError(t, err)
	assert.False(t, again.FlagCreated)
	assert.Equal(t, res.Flag.ID, again.Flag.ID)

	_, total, err := env.engine.ListFlags(ctx, "pending", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	assert.Equal(t, []string{notify.EventFlagCreated, notify.EventFlagMerged}, env.events.types())
	n, _ := env.audit.Len(ctx)
	assert.Equal(t, 3, n)
	assert.NoError(t, env.audit.Verify(ctx))
}

func TestAnalyzeAd_candidateIsNeverFlagged(t *testing.T) {
	env := newEnv(t)
	res, err := env.engine.AnalyzeAd(ctx, depositScamAd(0))
	require.NoError(t, err)
	assert.True(t, res.Analysis.IsSuspicious)
	assert.Nil(t, res.Flag)
}

func TestAnalyze_loadsContent(t *testing.T) {
	env := newEnv(t)
	env.content.PutAd(*depositScamAd(11))

	res, err := env.engine.Analyze(ctx, model.ContentAd, 11)
	require.NoError(t, err)
	require.NotNil(t, res.Flag)
	assert.Equal(t, int64(11), res.Flag.ContentID)

	_, err = env.engine.Analyze(ctx, model.ContentMessage, 77)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = env.engine.Analyze(ctx, model.ContentAd, 0)
	var ve *model.ErrValidation
	assert.ErrorAs(t, err, &ve)
}

func TestAutoModAd_blocksScamWithoutFlagging(t *testing.T) {
	env := newEnv(t)

	v, err := env.engine.AutoModAd(ctx, depositScamAd(0))
	require.NoError(t, err)
	assert.False(t, v.Allowed)
	assert.Equal(t, model.StageContent, v.Stage)
	assert.Contains(t, v.Reasons, risk.SignalScamKeywords)
	assert.False(t, v.Degraded)

	_, total, _ := env.engine.ListFlags(ctx, "all", 0, 10)
	assert.Equal(t, 0, total)
	assert.Equal(t, []string{notify.EventAutoModBlocked}, env.events.types())

	listings, _ := env.counts.GetCount(ctx, velocity.ActivityListing, 10)
	assert.Equal(t, 1, listings)
}

func TestAutoModMessage_newAccountVelocityBlocks(t *testing.T) {
	env := newEnv(t)
	env.content.PutUser(model.User{
		ID: 20, CreatedAt: ptr(fixedAt), EmailVerified: ptr(false), PhoneVerified: ptr(false),
		Status: model.UserStatusActive,
	})
	contact := func() *model.Message {
		return &model.Message{SenderID: 20, RecipientID: 10, Body: "Text me on +1 555 123 4567"}
	}

	// Before any velocity builds up the same message is only medium risk.
	v, err := env.engine.AutoModMessage(ctx, contact())
	require.NoError(t, err)
	assert.True(t, v.Allowed)
	assert.Equal(t, model.RiskMedium, v.Analysis.RiskLevel)

	for i := 0; i < 49; i++ {
		v, err := env.engine.AutoModMessage(ctx, &model.Message{SenderID: 20, RecipientID: 10, Body: "is it still available?"})
		require.NoError(t, err)
		require.True(t, v.Allowed)
	}

	v, err = env.engine.AutoModMessage(ctx, contact())
	require.NoError(t, err)
	assert.False(t, v.Allowed)
	assert.Equal(t, model.StageContent, v.Stage)
	assert.Contains(t, v.Reasons, risk.SignalSenderRisk)
	assert.Contains(t, v.Reasons, risk.SignalContactExchange)

	rep, err := env.engine.Reputation(ctx, 20)
	require.NoError(t, err)
	assert.Equal(t, model.RiskMedium, rep.RiskLevel)
	velocitySig := signal(t, rep.Signals, risk.SignalMessageVelocity)
	assert.True(t, velocitySig.Triggered)

	_, total, _ := env.engine.ListFlags(ctx, "all", 0, 10)
	assert.Equal(t, 0, total)
}

func TestAutoModMessage_velocityBlocksThroughSenderCache(t *testing.T) {
	env := newEnv(t)
	env.engine.SetSenderCache(10000, time.Minute)
	env.content.PutUser(model.User{
		ID: 21, CreatedAt: ptr(fixedAt), EmailVerified: ptr(false), PhoneVerified: ptr(false),
		Status: model.UserStatusActive,
	})

	var verdicts []*model.Verdict
	for i := 0; i < 60; i++ {
		v, err := env.engine.AutoModMessage(ctx, &model.Message{SenderID: 21, RecipientID: 10, Body: "Text me on +1 555 123 4567"})
		require.NoError(t, err)
		verdicts = append(verdicts, v)
	}

	assert.True(t, verdicts[0].Allowed)
	last := verdicts[len(verdicts)-1]
	assert.False(t, last.Allowed)
	assert.Contains(t, last.Reasons, risk.SignalSenderRisk)

	n, err := env.counts.GetCount(ctx, velocity.ActivityMessage, 21)
	require.NoError(t, err)
	assert.Equal(t, 60, n)
}

func TestAutoModMessage_highRiskSenderShortCircuits(t *testing.T) {
	env := newEnv(t)
	env.content.PutUser(model.User{ID: 30, CreatedAt: ptr(fixedAt.AddDate(-2, 0, 0)), Status: model.UserStatusBanned})

	v, err := env.engine.AutoModMessage(ctx, &model.Message{SenderID: 30, RecipientID: 10, Body: "hello"})
	require.NoError(t, err)
	assert.False(t, v.Allowed)
	assert.Equal(t, model.StageSender, v.Stage)
	assert.Equal(t, model.ContentUser, v.Analysis.SubjectType)
	assert.Contains(t, v.Reasons, risk.SignalAccountRestricted)
}

func TestAutoModMessage_senderCache(t *testing.T) {
	env := newEnv(t)
	env.engine.SetSenderCache(16, time.Minute)

	v, err := env.engine.AutoModMessage(ctx, &model.Message{SenderID: 10, RecipientID: 2, Body: "Thanks, see you Saturday"})
	require.NoError(t, err)
	assert.True(t, v.Allowed)

	// Banning the sender is not visible until the cached analysis expires.
	env.content.PutUser(model.User{ID: 10, CreatedAt: ptr(fixedAt.AddDate(-1, 0, 0)), Status: model.UserStatusBanned})
	v, err = env.engine.AutoModMessage(ctx, &model.Message{SenderID: 10, RecipientID: 2, Body: "ok"})
	require.NoError(t, err)
	assert.True(t, v.Allowed)

	env.engine.SetSenderCache(0, 0)
	v, err = env.engine.AutoModMessage(ctx, &model.Message{SenderID: 10, RecipientID: 2, Body: "ok"})
	require.NoError(t, err)
	assert.False(t, v.Allowed)
}

// failingContent simulates an unreachable marketplace database.
type failingContent struct{}

var errDown = errors.New("connection refused")

func (failingContent) GetAd(context.Context, int64) (*model.Ad, error)           { return nil, errDown }
func (failingContent) GetUser(context.Context, int64) (*model.User, error)       { return nil, errDown }
func (failingContent) GetMessage(context.Context, int64) (*model.Message, error) { return nil, errDown }
func (failingContent) PriorFlagCount(context.Context, int64) (int, error)        { return 0, errDown }

func TestGate_failsOpenWhenContentSourceIsDown(t *testing.T) {
	analyzer, err := risk.NewAnalyzer(risk.DefaultPolicy())
	require.NoError(t, err)
	e := service.NewEngine(analyzer, repository.NewMemoryFlagRepository(), failingContent{}, nil, zap.NewNop())

	v, err := e.AutoModAd(ctx, &model.Ad{UserID: 5, Category: "furniture", Title: "Oak table", Price: ptr(150.0)})
	require.NoError(t, err)
	assert.True(t, v.Allowed)
	assert.True(t, v.Degraded)

	v, err = e.AutoModMessage(ctx, &model.Message{SenderID: 5, RecipientID: 6, Body: "Is the table still available?"})
	require.NoError(t, err)
	assert.True(t, v.Allowed)
	assert.True(t, v.Degraded)
	assert.Equal(t, model.StageContent, v.Stage)

	// An explicit high verdict still blocks while degraded.
	v, err = e.AutoModAd(ctx, &model.Ad{UserID: 5, Title: "WhatsApp only, send deposit, gift card"})
	require.NoError(t, err)
	assert.False(t, v.Allowed)
	assert.True(t, v.Degraded)
}

func TestReputation_bounds(t *testing.T) {
	for _, score := range []float64{0, 0.5, 3, 5.5, 10, 25, 1e9} {
		r := service.ReputationScore(score)
		assert.GreaterOrEqual(t, r, 0.0, "score %v", score)
		assert.LessOrEqual(t, r, 100.0, "score %v", score)
	}
	assert.Equal(t, 100.0, service.ReputationScore(0))
	assert.Equal(t, 45.0, service.ReputationScore(5.5))
	assert.Equal(t, 0.0, service.ReputationScore(12))

	env := newEnv(t)
	rep, err := env.engine.Reputation(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 100.0, rep.Score)
	assert.Equal(t, model.RiskLow, rep.RiskLevel)

	_, err = env.engine.Reputation(ctx, 404)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func signal(t *testing.T, signals []model.Signal, name string) model.Signal {
	t.Helper()
	for _, s := range signals {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("signal %q not emitted", name)
	return model.Signal{}
}
