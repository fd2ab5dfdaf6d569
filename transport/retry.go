// ABOUTME: Retry policy for the transport engine
// ABOUTME: Pure backoff schedule plus transient-error classification
package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	defaultMaxAttempts    = 3
	defaultBaseDelay      = 1000 * time.Millisecond
	defaultMaxDelay       = 10000 * time.Millisecond
	defaultBackoffFactor  = 2
	defaultAttemptTimeout = 30 * time.Second
)

// retryableStatuses are the HTTP statuses worth another attempt.
var retryableStatuses = map[int]bool{
	408: true,
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// transientVocabulary matches error messages from network failures that
// carry no HTTP status.
var transientVocabulary = []string{
	"timeout",
	"timed out",
	"connection reset",
	"connection refused",
	"no such host",
	"broken pipe",
	"unexpected EOF",
	"EOF",
}

// RequestError is a transport failure carrying the HTTP status when one
// was received. Callers inspect it with errors.As.
type RequestError struct {
	Status        int
	Message       string
	CorrelationID string
}

func (e *RequestError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("request failed with status %d: %s", e.Status, e.Message)
	}
	return e.Message
}

// IsAuthError reports whether the error is an authentication failure.
// Auth failures are never retried and signal that the held credential
// should be dropped.
func IsAuthError(err error) bool {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Status == 401 || reqErr.Status == 403
	}
	return false
}

// isRetryable classifies an attempt failure. Timeouts and matched
// transient signatures count toward retry exhaustion; auth failures
// propagate immediately.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsAuthError(err) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var reqErr *RequestError
	if errors.As(err, &reqErr) && reqErr.Status > 0 {
		return retryableStatuses[reqErr.Status]
	}

	msg := err.Error()
	for _, signature := range transientVocabulary {
		if strings.Contains(msg, signature) {
			return true
		}
	}
	return false
}

// nextDelay returns the pause before attempt n+1, given n completed
// attempts: min(maxDelay, baseDelay × factor^(n-1)). No jitter.
func nextDelay(completed int, base, max time.Duration) time.Duration {
	if completed < 1 {
		return base
	}
	delay := base
	for i := 1; i < completed; i++ {
		delay *= defaultBackoffFactor
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
