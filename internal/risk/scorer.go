package risk

import (
	"time"

	"github.com/jmerrifield20/contentrisk/internal/moderation/model"
)

// Scorer aggregates signals additively and classifies the sum against two
// thresholds. It holds no other state.
type Scorer struct {
	medium float64
	high   float64
}

// NewScorer returns a Scorer with the given level thresholds.
func NewScorer(medium, high float64) *Scorer {
	return &Scorer{medium: medium, high: high}
}

// Score sums the weights of triggered signals. Signals keep the order the
// extractor emitted them in; negative weights count as zero.
func (s *Scorer) Score(kind model.ContentType, id int64, signals []model.Signal, now time.Time) *model.Analysis {
	total := 0.0
	for _, sig := range signals {
		if sig.Triggered && sig.Weight > 0 {
			total += sig.Weight
		}
	}
	if signals == nil {
		signals = []model.Signal{}
	}

	level := s.Level(total)
	return &model.Analysis{
		SubjectType:  kind,
		SubjectID:    id,
		RiskScore:    total,
		RiskLevel:    level,
		Signals:      signals,
		IsSuspicious: level != model.RiskLow,
		ComputedAt:   now.UTC(),
	}
}

// Level maps a score to a risk level.
func (s *Scorer) Level(score float64) model.RiskLevel {
	switch {
	case score >= s.high:
		return model.RiskHigh
	case score >= s.medium:
		return model.RiskMedium
	default:
		return model.RiskLow
	}
}
