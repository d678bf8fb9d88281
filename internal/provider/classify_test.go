package provider

import (
	"testing"
	"time"
)

func TestClassifyProviderErrorRateLimit(t *testing.T) {
	class := classifyProviderError("upstream error: 429 rate limit exceeded")
	if class.Category != "rate_limit" || !class.Retryable {
		t.Fatalf("expected retryable rate_limit, got %+v", class)
	}
}

func TestClassifyProviderErrorAuthNotRetryable(t *testing.T) {
	class := classifyProviderError("401 Unauthorized: invalid API key")
	if class.Category != "auth" || class.Retryable {
		t.Fatalf("expected non-retryable auth, got %+v", class)
	}
}

func TestClassifyProviderErrorContentBlockedNotRetryable(t *testing.T) {
	class := classifyProviderError("response blocked by safety filters")
	if class.Category != "content_blocked" || class.Retryable {
		t.Fatalf("expected non-retryable content_blocked, got %+v", class)
	}
}

func TestUserRateLimiterEnforcesWindow(t *testing.T) {
	rl := newUserRateLimiter(2, time.Minute)
	if !rl.Allow("user-1") {
		t.Fatal("first attempt should be allowed")
	}
	if !rl.Allow("user-1") {
		t.Fatal("second attempt should be allowed")
	}
	if rl.Allow("user-1") {
		t.Fatal("third attempt should be rejected")
	}
	if !rl.Allow("user-2") {
		t.Fatal("a different user should not share the window")
	}
}
