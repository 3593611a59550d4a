package model

import "time"

// ReportStatus represents the lifecycle state of a user report.
type ReportStatus string

const (
	ReportStatusPending     ReportStatus = "pending"
	ReportStatusUnderReview ReportStatus = "under_review"
	ReportStatusResolved    ReportStatus = "resolved"
	ReportStatusDismissed   ReportStatus = "dismissed"
	ReportStatusEscalated   ReportStatus = "escalated"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s ReportStatus) IsTerminal() bool {
	switch s {
	case ReportStatusResolved, ReportStatusDismissed, ReportStatusEscalated:
		return true
	}
	return false
}

// CanTransition reports whether an admin may move a report from s to next.
func (s ReportStatus) CanTransition(next ReportStatus) bool {
	switch s {
	case ReportStatusPending:
		return next == ReportStatusUnderReview || next.IsTerminal()
	case ReportStatusUnderReview:
		return next.IsTerminal()
	}
	return false
}

// Report is a user-submitted complaint about a piece of content.
type Report struct {
	ID                 int64        `json:"id"                    db:"id"`
	ReporterUserID     int64        `json:"reporter_user_id"      db:"reporter_user_id"`
	ContentType        ContentType  `json:"content_type"          db:"content_type"`
	ContentID          int64        `json:"content_id"            db:"content_id"`
	Reason             string       `json:"reason"                db:"reason"`
	Description        string       `json:"description"           db:"description"`
	Status             ReportStatus `json:"status"                db:"status"`
	ModerationDecision string       `json:"moderation_decision"   db:"moderation_decision"`
	CreatedAt          time.Time    `json:"created_at"            db:"created_at"`
	ResolvedByAdminID  *int64       `json:"resolved_by_admin_id,omitempty" db:"resolved_by_admin_id"`
	ResolvedAt         *time.Time   `json:"resolved_at,omitempty" db:"resolved_at"`
}

// CreateReportRequest is the payload for filing a report.
type CreateReportRequest struct {
	ReporterUserID int64  `json:"reporter_user_id" binding:"required"`
	ContentType    string `json:"content_type"     binding:"required"`
	ContentID      int64  `json:"content_id"       binding:"required"`
	Reason         string `json:"reason"           binding:"required"`
	Description    string `json:"description"`
}

// UpdateReportRequest is the payload for moving a report through its lifecycle.
type UpdateReportRequest struct {
	Status             ReportStatus `json:"status"              binding:"required"`
	ModerationDecision string       `json:"moderation_decision"`
}

// MaxReportDescriptionLength bounds the free-text part of a report.
const MaxReportDescriptionLength = 2000
