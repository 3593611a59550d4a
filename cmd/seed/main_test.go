package main

import (
	"context"
	"testing"
	"time"

	"github.com/jmerrifield20/contentrisk/internal/moderation/model"
	"github.com/jmerrifield20/contentrisk/internal/moderation/repository"
	"github.com/jmerrifield20/contentrisk/internal/moderation/service"
	"github.com/jmerrifield20/contentrisk/internal/risk"
	"github.com/jmerrifield20/contentrisk/internal/velocity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// TestFixturesCoverRiskLevels runs the seed rows through an in-memory engine
// so the fixtures keep demonstrating what their comments claim.
func TestFixturesCoverRiskLevels(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	flags := repository.NewMemoryFlagRepository()
	content := repository.NewMemoryContent(flags)
	for _, u := range users(now) {
		content.PutUser(u)
	}
	for _, a := range ads(now) {
		content.PutAd(a)
	}
	for _, m := range messages(now) {
		content.PutMessage(m)
	}

	analyzer, err := risk.NewAnalyzer(risk.DefaultPolicy())
	require.NoError(t, err)
	engine := service.NewEngine(analyzer, flags, content, velocity.NewMemStore(), zap.NewNop())
	engine.SetClock(func() time.Time { return now })
	ctx := context.Background()

	for _, tc := range []struct {
		ct   model.ContentType
		id   int64
		want model.RiskLevel
	}{
		{model.ContentAd, 10, model.RiskLow},
		{model.ContentAd, 11, model.RiskHigh},
		{model.ContentUser, 3, model.RiskHigh},
		{model.ContentMessage, 20, model.RiskLow},
		{model.ContentMessage, 21, model.RiskHigh},
	} {
		res, err := engine.Analyze(ctx, tc.ct, tc.id)
		require.NoError(t, err, "%s %d", tc.ct, tc.id)
		assert.Equal(t, tc.want, res.Analysis.RiskLevel, "%s %d", tc.ct, tc.id)
	}

	v, err := engine.AutoModMessage(ctx, &model.Message{SenderID: 3, RecipientID: 5, Body: "hello", CreatedAt: now})
	require.NoError(t, err)
	assert.False(t, v.Allowed)
	assert.Equal(t, model.StageSender, v.Stage)
}

func TestPrincipalSecretsAreHashable(t *testing.T) {
	for _, p := range principals {
		assert.GreaterOrEqual(t, len(p.Secret), 12, p.Name)
	}
}
