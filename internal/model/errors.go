package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrorClass categorizes an endpoint failure for retry decisions.
type ErrorClass string

const (
	// ClassRateLimited marks "too many requests" responses; recoverable by
	// cooling the variant down and falling over to the next one.
	ClassRateLimited ErrorClass = "rate_limited"
	// ClassTransient marks network/server faults worth retrying on the same
	// variant with backoff.
	ClassTransient ErrorClass = "transient"
	// ClassNonRetryable marks request-level faults (auth, malformed request)
	// that no amount of retrying or variant switching can fix.
	ClassNonRetryable ErrorClass = "non_retryable"
)

// CallError wraps an endpoint failure with its classification and, for
// rate limits, the server-suggested resume delay (zero when not provided).
type CallError struct {
	Class      ErrorClass
	Variant    string
	RetryAfter time.Duration
	Err        error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("[%s] %s: %v", e.Class, e.Variant, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// AsCallError extracts a *CallError from an error chain. Unclassified errors
// are treated as non-retryable: guessing retryability invites retry storms.
func AsCallError(err error) *CallError {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce
	}
	return &CallError{Class: ClassNonRetryable, Err: err}
}

// AllCoolingDownError is returned when every configured variant is inside a
// cooldown window. EarliestResume tells the caller when a retry could succeed.
type AllCoolingDownError struct {
	EarliestResume time.Time
}

func (e *AllCoolingDownError) Error() string {
	return fmt.Sprintf("all model variants cooling down until %s", e.EarliestResume.Format(time.RFC3339))
}

// ExhaustedError is returned once every eligible variant has been tried and
// failed, or the global attempt ceiling was hit. EarliestResume carries the
// minimum resume time observed across rate-limited variants (zero when no
// rate limits were seen).
type ExhaustedError struct {
	Attempts       int
	EarliestResume time.Time
	LastErr        error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("exhausted retries after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *ExhaustedError) Unwrap() error {
	return e.LastErr
}

// RetryConfig bounds the same-variant backoff loop for transient faults.
type RetryConfig struct {
	// TransientAttempts is how many times one variant is retried on
	// transient errors before falling over to the next variant.
	TransientAttempts int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffFactor     float64
}

// DefaultRetryConfig returns sensible retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		TransientAttempts: 3,
		InitialDelay:      1 * time.Second,
		MaxDelay:          30 * time.Second,
		BackoffFactor:     2.0,
	}
}

// backoffDelay calculates the delay before retry number attempt (0-based),
// growing exponentially and capped at MaxDelay.
func backoffDelay(attempt int, cfg RetryConfig) time.Duration {
	delay := float64(cfg.InitialDelay)
	for i := 0; i < attempt; i++ {
		delay *= cfg.BackoffFactor
	}
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	return time.Duration(delay)
}
