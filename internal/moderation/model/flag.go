package model

import (
	"strings"
	"time"
)

// FlagStatus represents the lifecycle state of a moderation flag.
type FlagStatus string

const (
	FlagStatusPending  FlagStatus = "pending"
	FlagStatusReviewed FlagStatus = "reviewed"
)

// Disposition is the terminal human decision recorded on a reviewed flag.
type Disposition string

const (
	DispositionApproved  Disposition = "approved"
	DispositionFlagged   Disposition = "flagged"
	DispositionRejected  Disposition = "rejected"
	DispositionSuspended Disposition = "suspended"
	DispositionBanned    Disposition = "banned"
)

// Dispositions lists every disposition in action order.
var Dispositions = []Disposition{
	DispositionApproved, DispositionFlagged, DispositionRejected,
	DispositionSuspended, DispositionBanned,
}

// actions maps the review verbs accepted from admins to dispositions.
var actions = map[string]Disposition{
	"approve": DispositionApproved,
	"flag":    DispositionFlagged,
	"reject":  DispositionRejected,
	"suspend": DispositionSuspended,
	"ban":     DispositionBanned,
}

// ParseAction validates a review action and returns the disposition it records.
func ParseAction(action string) (Disposition, error) {
	d, ok := actions[strings.ToLower(strings.TrimSpace(action))]
	if !ok {
		return "", &ErrValidation{Msg: "action must be one of 'approve', 'flag', 'reject', 'suspend', 'ban'"}
	}
	return d, nil
}

// StatusFilter selects flags by status when listing.
type StatusFilter string

const (
	FilterPending  StatusFilter = "pending"
	FilterReviewed StatusFilter = "reviewed"
	FilterAll      StatusFilter = "all"
)

// ParseStatusFilter validates a list filter. An empty string means "all".
func ParseStatusFilter(s string) (StatusFilter, error) {
	switch f := StatusFilter(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FilterAll, nil
	case FilterPending, FilterReviewed, FilterAll:
		return f, nil
	}
	return "", &ErrValidation{Msg: "status must be one of 'pending', 'reviewed', 'all'"}
}

// Matches reports whether a flag with the given status passes the filter.
func (f StatusFilter) Matches(status FlagStatus) bool {
	switch f {
	case FilterPending:
		return status == FlagStatusPending
	case FilterReviewed:
		return status != FlagStatusPending
	default:
		return true
	}
}

// Flag is the durable record that a piece of content was found suspicious.
type Flag struct {
	ID          int64        `json:"id"           db:"id"`
	ContentType ContentType  `json:"content_type" db:"content_type"`
	ContentID   int64        `json:"content_id"   db:"content_id"`
	Reasons     []string     `json:"reasons"      db:"reasons"`
	Status      FlagStatus   `json:"status"       db:"status"`
	RiskScore   float64      `json:"risk_score"   db:"risk_score"`
	RiskLevel   RiskLevel    `json:"risk_level"   db:"risk_level"`
	FlaggedAt   time.Time    `json:"flagged_at"   db:"flagged_at"`
	ReviewedAt  *time.Time   `json:"reviewed_at,omitempty"  db:"reviewed_at"`
	ReviewerID  *int64       `json:"reviewer_id,omitempty"  db:"reviewer_id"`
	Disposition *Disposition `json:"disposition,omitempty"  db:"disposition"`
}

// IsOpen reports whether the flag still awaits human review.
func (f *Flag) IsOpen() bool { return f.Status == FlagStatusPending }

// FlagRequest is the payload for flagging content manually.
type FlagRequest struct {
	ContentType string   `json:"content_type" binding:"required"`
	ContentID   int64    `json:"content_id"   binding:"required"`
	Reasons     []string `json:"reasons"      binding:"required"`
}

// ReviewRequest is the payload for reviewing a single flag.
type ReviewRequest struct {
	Action string `json:"action" binding:"required"`
}

// BulkReviewRequest is the payload for reviewing several flags at once.
type BulkReviewRequest struct {
	FlagIDs []int64 `json:"flag_ids" binding:"required"`
	Action  string  `json:"action"   binding:"required"`
}

// BulkFailure explains why one id of a bulk review was not processed.
type BulkFailure struct {
	FlagID int64  `json:"flag_id"`
	Reason string `json:"reason"`
}

// BulkResult reports the outcome of a bulk review.
type BulkResult struct {
	Processed      int           `json:"processed_count"`
	TotalRequested int           `json:"total_requested"`
	Failures       []BulkFailure `json:"failures,omitempty"`
}

// RiskSummary aggregates flag counts for dashboards.
type RiskSummary struct {
	Total         int                 `json:"total"`
	ByStatus      map[FlagStatus]int  `json:"by_status"`
	ByLevel       map[RiskLevel]int   `json:"by_level"`
	ByContentType map[ContentType]int `json:"by_content_type"`
	ByDisposition map[Disposition]int `json:"by_disposition"`
}

// NewRiskSummary returns a summary with every known bucket present at zero.
func NewRiskSummary() *RiskSummary {
	s := &RiskSummary{
		ByStatus:      map[FlagStatus]int{FlagStatusPending: 0, FlagStatusReviewed: 0},
		ByLevel:       make(map[RiskLevel]int, len(RiskLevels)),
		ByContentType: make(map[ContentType]int, len(ContentTypes)),
		ByDisposition: make(map[Disposition]int, len(Dispositions)),
	}
	for _, l := range RiskLevels {
		s.ByLevel[l] = 0
	}
	for _, ct := range ContentTypes {
		s.ByContentType[ct] = 0
	}
	for _, d := range Dispositions {
		s.ByDisposition[d] = 0
	}
	return s
}

// Add counts a flag into the summary.
func (s *RiskSummary) Add(f *Flag) {
	s.Total++
	s.ByStatus[f.Status]++
	s.ByLevel[f.RiskLevel]++
	s.ByContentType[f.ContentType]++
	if f.Disposition != nil {
		s.ByDisposition[*f.Disposition]++
	}
}
