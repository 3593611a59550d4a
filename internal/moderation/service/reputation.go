package service

import (
	"context"
	"math"

	"github.com/jmerrifield20/contentrisk/internal/moderation/model"
)

// Reputation projects a user's trust score from a fresh analysis of the
// account: clamp(0, 100, 100 - risk_score*10). Nothing is cached or persisted.
func (e *Engine) Reputation(ctx context.Context, userID int64) (*model.Reputation, error) {
	if userID <= 0 {
		return nil, &model.ErrValidation{Msg: "user id must be positive"}
	}
	u, err := e.content.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	a, err := e.analyzeUser(ctx, u)
	if err != nil {
		return nil, err
	}
	return &model.Reputation{
		UserID:     userID,
		Score:      ReputationScore(a.RiskScore),
		RiskScore:  a.RiskScore,
		RiskLevel:  a.RiskLevel,
		Signals:    a.Signals,
		ComputedAt: a.ComputedAt,
	}, nil
}

// ReputationScore maps a risk score onto the 0-100 reputation scale.
func ReputationScore(riskScore float64) float64 {
	return math.Max(0, math.Min(100, 100-riskScore*10))
}
