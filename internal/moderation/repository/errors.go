package repository

import "errors"

var (
	// ErrNotFound is returned when a flag, report or piece of content does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyReviewed is returned when a review targets a flag that is no
	// longer pending.
	ErrAlreadyReviewed = errors.New("flag already reviewed")
	// ErrInvalidTransition is returned when a report status change is not
	// allowed from its current status.
	ErrInvalidTransition = errors.New("invalid report status transition")
)
