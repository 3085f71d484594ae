package provider

import (
	"errors"
	"fmt"
	"time"
)

// Error taxonomy for provider calls. PolicyRejection and Truncation are
// terminal and never retried. RateLimit and Timeout are terminal only after
// the retry budget is spent. Everything else is wrapped as ProviderError.

// PolicyRejectionError means the provider declined to answer. Never retried.
type PolicyRejectionError struct {
	Reason string
}

func (e *PolicyRejectionError) Error() string {
	if e.Reason == "" {
		return "provider rejected the request"
	}
	return fmt.Sprintf("provider rejected the request: %s", e.Reason)
}

// TruncationError means generation hit the output length ceiling. Never
// retried; a retry would hit the same ceiling.
type TruncationError struct {
	MaxOutputTokens int
}

func (e *TruncationError) Error() string {
	return fmt.Sprintf("output truncated at %d tokens", e.MaxOutputTokens)
}

// RateLimitError is raised once the retry budget for 429 responses is spent.
type RateLimitError struct {
	Attempts int
	LastHint time.Duration // Provider-supplied retry hint from the last attempt, if any
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited after %d attempts", e.Attempts)
}

// TimeoutError is raised once the retry budget for transient failures
// (timeouts, connection errors, 5xx) is spent.
type TimeoutError struct {
	Attempts int
	Last     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *TimeoutError) Unwrap() error { return e.Last }

// ProviderError wraps responses the adapter cannot classify.
type ProviderError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error (status %d, code %q): %s", e.StatusCode, e.Code, e.Message)
}

// IsTerminalRejection reports whether err is a policy rejection or truncation,
// the two failures a caller should never route back through the provider.
func IsTerminalRejection(err error) bool {
	var pr *PolicyRejectionError
	var tr *TruncationError
	return errors.As(err, &pr) || errors.As(err, &tr)
}

// IsRetryExhausted reports whether err is a spent rate-limit or timeout budget.
func IsRetryExhausted(err error) bool {
	var rl *RateLimitError
	var to *TimeoutError
	return errors.As(err, &rl) || errors.As(err, &to)
}
