package modelclient

import (
	"errors"
	"net/http"
	"testing"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailoverReason
	}{
		{"timeout", errors.New("context deadline exceeded"), FailoverTimeout},
		{"rate limit", errors.New("429 rate limit exceeded"), FailoverRateLimit},
		{"auth", errors.New("401 unauthorized"), FailoverAuth},
		{"billing", errors.New("quota exceeded"), FailoverBilling},
		{"model unavailable", errors.New("model not found"), FailoverModelUnavailable},
		{"server error", errors.New("502 bad gateway"), FailoverServerError},
		{"unknown", errors.New("something strange"), FailoverUnknown},
		{"nil", nil, FailoverUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.want {
				t.Errorf("ClassifyError(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestFailoverReason_IsRetryable(t *testing.T) {
	retryable := []FailoverReason{FailoverRateLimit, FailoverTimeout, FailoverServerError}
	for _, r := range retryable {
		if !r.IsRetryable() {
			t.Errorf("%q.IsRetryable() = false, want true", r)
		}
	}
	notRetryable := []FailoverReason{FailoverBilling, FailoverAuth, FailoverInvalidRequest, FailoverModelUnavailable, FailoverUnknown}
	for _, r := range notRetryable {
		if r.IsRetryable() {
			t.Errorf("%q.IsRetryable() = true, want false", r)
		}
	}
}

func TestProviderError_WithStatus(t *testing.T) {
	err := NewProviderError("anthropic", "claude", errors.New("boom")).WithStatus(http.StatusTooManyRequests)
	if err.Status != http.StatusTooManyRequests {
		t.Errorf("Status = %d, want %d", err.Status, http.StatusTooManyRequests)
	}
	if err.Reason != FailoverRateLimit {
		t.Errorf("Reason = %q, want %q", err.Reason, FailoverRateLimit)
	}
}

func TestProviderError_ErrorString(t *testing.T) {
	err := &ProviderError{Reason: FailoverRateLimit, Provider: "openai", Status: 429, Message: "slow down"}
	got := err.Error()
	for _, want := range []string{"rate_limit", "openai", "status=429", "slow down"} {
		if !contains(got, want) {
			t.Errorf("Error() = %q, want it to contain %q", got, want)
		}
	}
}

func TestProviderError_Unwrap(t *testing.T) {
	cause := errors.New("network reset")
	err := NewProviderError("openai", "", cause)
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to see through ProviderError to its cause")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(&ProviderError{Reason: FailoverTimeout}) {
		t.Error("expected a timeout ProviderError to be retryable")
	}
	if IsRetryable(&ProviderError{Reason: FailoverAuth}) {
		t.Error("expected an auth ProviderError to not be retryable")
	}
	if !IsRetryable(errors.New("503 service unavailable")) {
		t.Error("expected a raw 503 error to classify as retryable")
	}
}

func TestIsProviderError(t *testing.T) {
	if !IsProviderError(&ProviderError{Reason: FailoverUnknown}) {
		t.Error("expected IsProviderError to recognize a *ProviderError")
	}
	if IsProviderError(errors.New("plain error")) {
		t.Error("expected IsProviderError to reject a plain error")
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (haystack == needle || len(needle) == 0 ||
		indexOf(haystack, needle) >= 0)
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
