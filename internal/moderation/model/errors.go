package model

// ErrValidation is returned by service methods when the caller supplies invalid
// input. Handlers map it to HTTP 400; it is always raised before any mutation.
type ErrValidation struct{ Msg string }

func (e *ErrValidation) Error() string { return e.Msg }
