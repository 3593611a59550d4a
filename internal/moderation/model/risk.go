package model

import "time"

// RiskLevel is the coarse classification derived from a risk score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// RiskLevels lists the levels from lowest to highest.
var RiskLevels = []RiskLevel{RiskLow, RiskMedium, RiskHigh}

// Signal is a single named, weighted piece of evidence about content risk.
type Signal struct {
	Name      string  `json:"name"`
	Weight    float64 `json:"weight"`
	Triggered bool    `json:"triggered"`
	Evidence  string  `json:"evidence"`
}

// Analysis is the transient output of scoring one subject.
type Analysis struct {
	SubjectType   ContentType `json:"subject_type"`
	SubjectID     int64       `json:"subject_id"`
	RiskScore     float64     `json:"risk_score"`
	RiskLevel     RiskLevel   `json:"risk_level"`
	Signals       []Signal    `json:"signals"`
	IsSuspicious  bool        `json:"is_suspicious"`
	ComputedAt    time.Time   `json:"computed_at"`
	PolicyVersion string      `json:"policy_version,omitempty"`
}

// TriggeredNames returns the names of the triggered signals in emission order,
// without duplicates.
func (a *Analysis) TriggeredNames() []string {
	names := []string{}
	seen := make(map[string]bool, len(a.Signals))
	for _, s := range a.Signals {
		if !s.Triggered || seen[s.Name] {
			continue
		}
		seen[s.Name] = true
		names = append(names, s.Name)
	}
	return names
}

// Reputation is the user-facing trust number projected from a user analysis.
type Reputation struct {
	UserID     int64     `json:"user_id"`
	Score      float64   `json:"score"`
	RiskScore  float64   `json:"risk_score"`
	RiskLevel  RiskLevel `json:"risk_level"`
	Signals    []Signal  `json:"signals"`
	ComputedAt time.Time `json:"computed_at"`
}

// Gate stages reported on a Verdict.
const (
	StageSender  = "sender"
	StageContent = "content"
)

// Verdict is the answer of the auto-moderation gate for a candidate.
type Verdict struct {
	Allowed bool   `json:"allowed"`
	Stage   string `json:"stage"`
	// Reasons names the triggered signals when the candidate is blocked.
	Reasons  []string  `json:"reasons,omitempty"`
	Degraded bool      `json:"degraded,omitempty"`
	Analysis *Analysis `json:"analysis,omitempty"`
}

// AnalysisResult is an analysis plus the flag it created or merged into, if
// any.
type AnalysisResult struct {
	Analysis *Analysis `json:"analysis"`
	Flag     *Flag     `json:"flag,omitempty"`
	// FlagCreated is false when the analysis merged into an existing pending flag.
	FlagCreated bool `json:"flag_created,omitempty"`
}
