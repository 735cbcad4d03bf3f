package domain

import (
	"context"
	"errors"
)

// Error kinds shared by every stage. Adapters wrap them with %w.
var (
	ErrNetwork        = errors.New("network error")
	ErrExtraction     = errors.New("extraction error")
	ErrAnalysis       = errors.New("analysis error")
	ErrGeneration     = errors.New("generation error")
	ErrAutomation     = errors.New("automation error")
	ErrSessionExpired = errors.New("session expired")
	ErrAuth           = errors.New("authentication error")
	ErrStore          = errors.New("store error")
)

// Outcome classifies the result of a unit of work for retry decisions.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeRetryable
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeRetryable:
		return "retryable"
	default:
		return "fatal"
	}
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks an error that must not be retried even if its kind usually is.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// Classify maps an error to an Outcome. Network and generation failures and
// deadlines are retryable unless wrapped with Permanent; cancellation is fatal.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeOK
	}
	var perm permanentError
	if errors.As(err, &perm) {
		return OutcomeFatal
	}
	if errors.Is(err, context.Canceled) {
		return OutcomeFatal
	}
	if errors.Is(err, ErrNetwork) || errors.Is(err, ErrGeneration) || errors.Is(err, context.DeadlineExceeded) {
		return OutcomeRetryable
	}
	return OutcomeFatal
}
