package risk_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmerrifield20/contentrisk/internal/moderation/model"
	"github.com/jmerrifield20/contentrisk/internal/risk"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func sig(name string, weight float64, triggered bool) model.Signal {
	return model.Signal{Name: name, Weight: weight, Triggered: triggered, Evidence: name}
}

func TestScore_sumsTriggeredWeightsOnly(t *testing.T) {
	s := risk.NewScorer(3, 6)
	a := s.Score(model.ContentAd, 7, []model.Signal{
		sig("a", 2, true),
		sig("b", 5, false),
		sig("c", 1.5, true),
	}, fixedNow)

	assert.InDelta(t, 3.5, a.RiskScore, 1e-9)
	assert.Equal(t, model.RiskMedium, a.RiskLevel)
	assert.True(t, a.IsSuspicious)
	assert.Equal(t, model.ContentAd, a.SubjectType)
	assert.Equal(t, int64(7), a.SubjectID)
	assert.Equal(t, []string{"a", "c"}, a.TriggeredNames())
}

func TestScore_levels(t *testing.T) {
	s := risk.NewScorer(3, 6)
	cases := []struct {
		score float64
		want  model.RiskLevel
	}{
		{0, model.RiskLow},
		{2.99, model.RiskLow},
		{3, model.RiskMedium},
		{5.99, model.RiskMedium},
		{6, model.RiskHigh},
		{42, model.RiskHigh},
	}
	for _, tc := range cases {
		a := s.Score(model.ContentUser, 1, []model.Signal{sig("x", tc.score, true)}, fixedNow)
		assert.Equal(t, tc.want, a.RiskLevel, "score %v", tc.score)
		assert.Equal(t, tc.want != model.RiskLow, a.IsSuspicious, "score %v", tc.score)
	}
}

func TestScore_deterministic(t *testing.T) {
	s := risk.NewScorer(3, 6)
	signals := []model.Signal{sig("a", 1.25, true), sig("b", 2.5, true), sig("c", 9, false)}

	first := s.Score(model.ContentMessage, 3, signals, fixedNow)
	for i := 0; i < 50; i++ {
		again := s.Score(model.ContentMessage, 3, signals, fixedNow)
		require.Equal(t, first, again)
	}
}

func TestScore_monotoneInWeight(t *testing.T) {
	s := risk.NewScorer(3, 6)
	rank := map[model.RiskLevel]int{model.RiskLow: 0, model.RiskMedium: 1, model.RiskHigh: 2}

	base := []model.Signal{sig("a", 1, true), sig("b", 0.5, true)}
	prev := s.Score(model.ContentAd, 1, base, fixedNow)
	for w := 0.0; w <= 10; w += 0.25 {
		signals := append([]model.Signal{}, base...)
		signals[0].Weight = 1 + w
		got := s.Score(model.ContentAd, 1, signals, fixedNow)
		assert.GreaterOrEqual(t, got.RiskScore, prev.RiskScore)
		assert.GreaterOrEqual(t, rank[got.RiskLevel], rank[prev.RiskLevel])
		prev = got
	}
}

func TestScore_negativeWeightIgnored(t *testing.T) {
	s := risk.NewScorer(3, 6)
	a := s.Score(model.ContentAd, 1, []model.Signal{sig("a", -4, true), sig("b", 1, true)}, fixedNow)
	assert.InDelta(t, 1.0, a.RiskScore, 1e-9)
}

func TestScore_nilSignals(t *testing.T) {
	s := risk.NewScorer(3, 6)
	a := s.Score(model.ContentAd, 1, nil, fixedNow)
	assert.NotNil(t, a.Signals)
	assert.Zero(t, a.RiskScore)
	assert.Equal(t, model.RiskLow, a.RiskLevel)
	assert.False(t, a.IsSuspicious)
}
