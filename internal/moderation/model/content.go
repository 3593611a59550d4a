package model

import (
	"strings"
	"time"
)

// ContentType identifies the kind of marketplace content being moderated.
type ContentType string

const (
	ContentAd      ContentType = "ad"
	ContentUser    ContentType = "user"
	ContentMessage ContentType = "message"
)

// ContentTypes lists every supported content type in dispatch order.
var ContentTypes = []ContentType{ContentAd, ContentUser, ContentMessage}

// ParseContentType validates a content type string.
func ParseContentType(s string) (ContentType, error) {
	ct := ContentType(strings.ToLower(strings.TrimSpace(s)))
	switch ct {
	case ContentAd, ContentUser, ContentMessage:
		return ct, nil
	}
	return "", &ErrValidation{Msg: "content_type must be one of 'ad', 'user', 'message'"}
}

// Ad is a snapshot of a listing, either persisted or a not-yet-created candidate
// (ID == 0).
type Ad struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	Category    string    `json:"category"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Price       *float64  `json:"price,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// User account statuses recognised by the user extractor.
const (
	UserStatusActive    = "active"
	UserStatusSuspended = "suspended"
	UserStatusBanned    = "banned"
)

// User is a snapshot of a marketplace account.
type User struct {
	ID            int64      `json:"id"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
	EmailVerified *bool      `json:"email_verified,omitempty"`
	PhoneVerified *bool      `json:"phone_verified,omitempty"`
	Status        string     `json:"status,omitempty"`
}

// Message is a snapshot of a direct message between two users.
type Message struct {
	ID          int64     `json:"id"`
	SenderID    int64     `json:"sender_id"`
	RecipientID int64     `json:"recipient_id"`
	Body        string    `json:"body"`
	CreatedAt   time.Time `json:"created_at"`
}

// History carries the behavioural context of the user behind a piece of
// content. A nil field means the value could not be read.
type History struct {
	AccountAgeDays   *float64 `json:"account_age_days,omitempty"`
	ListingsLastHour *int     `json:"listings_last_hour,omitempty"`
	MessagesLastHour *int     `json:"messages_last_hour,omitempty"`
	PriorFlags       *int     `json:"prior_flags,omitempty"`
}

// AccountAge returns the age of an account in fractional days relative to now,
// or nil when the creation time is unknown.
func AccountAge(createdAt *time.Time, now time.Time) *float64 {
	if createdAt == nil || createdAt.IsZero() {
		return nil
	}
	days := now.Sub(*createdAt).Hours() / 24
	if days < 0 {
		days = 0
	}
	return &days
}
