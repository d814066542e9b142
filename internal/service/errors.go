package service

import "errors"

// Domain errors returned by the attempt engine. Handlers map them to HTTP codes with errors.Is.
var (
	ErrNotFound         = errors.New("not found")
	ErrForbidden        = errors.New("forbidden")
	ErrNotEditable      = errors.New("attempt is not editable")
	ErrAlreadySubmitted = errors.New("attempt already submitted")
	ErrInvalidMode      = errors.New("operation not valid for exam mode")
	ErrConflict         = errors.New("attempt was modified concurrently")

	// ErrGradingUnavailable is absorbed by the grader and never returned to callers.
	ErrGradingUnavailable = errors.New("ai grading unavailable")
)
