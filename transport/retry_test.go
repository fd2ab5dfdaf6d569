package transport

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNextDelaySchedule(t *testing.T) {
	tests := []struct {
		completed int
		want      time.Duration
	}{
		{1, 1000 * time.Millisecond},
		{2, 2000 * time.Millisecond},
		{3, 4000 * time.Millisecond},
		{4, 8000 * time.Millisecond},
		{5, 10000 * time.Millisecond}, // capped
		{9, 10000 * time.Millisecond},
	}

	for _, tt := range tests {
		got := nextDelay(tt.completed, defaultBaseDelay, defaultMaxDelay)
		if got != tt.want {
			t.Errorf("nextDelay(%d) = %v, want %v", tt.completed, got, tt.want)
		}
	}
}

func TestIsRetryableStatuses(t *testing.T) {
	retryable := []int{408, 429, 500, 502, 503, 504}
	for _, status := range retryable {
		err := &RequestError{Status: status, Message: "boom"}
		if !isRetryable(err) {
			t.Errorf("status %d should be retryable", status)
		}
	}

	terminal := []int{400, 401, 403, 404, 409, 422}
	for _, status := range terminal {
		err := &RequestError{Status: status, Message: "boom"}
		if isRetryable(err) {
			t.Errorf("status %d should not be retryable", status)
		}
	}
}

func TestIsRetryableVocabulary(t *testing.T) {
	if !isRetryable(errors.New("dial tcp: connection refused")) {
		t.Error("connection refused should be retryable")
	}
	if !isRetryable(errors.New("read tcp: connection reset by peer")) {
		t.Error("connection reset should be retryable")
	}
	if !isRetryable(context.DeadlineExceeded) {
		t.Error("deadline exceeded should be retryable")
	}
	if isRetryable(errors.New("invalid request payload")) {
		t.Error("arbitrary errors should not be retryable")
	}
	if isRetryable(nil) {
		t.Error("nil should not be retryable")
	}
}

func TestIsAuthError(t *testing.T) {
	if !IsAuthError(&RequestError{Status: 401}) {
		t.Error("401 is an auth error")
	}
	if !IsAuthError(&RequestError{Status: 403}) {
		t.Error("403 is an auth error")
	}
	if IsAuthError(&RequestError{Status: 500}) {
		t.Error("500 is not an auth error")
	}
	if IsAuthError(errors.New("plain")) {
		t.Error("plain errors are not auth errors")
	}
}
