package provider

import "strings"

// errorClass describes how an upstream image-model error should be
// handled: whether it's worth retrying. The circuit breaker does not
// consult it; every failed upstream call counts toward its failure ratio.
type errorClass struct {
	Category  string
	Retryable bool
}

// classifyProviderError inspects an upstream error string and decides
// whether the Generative Provider Adapter should retry it. This is
// intentionally a single isolated function: substring matching against
// vendor error text is brittle, and keeping it in one place means a
// vendor wording change only needs a fix here.
func classifyProviderError(errStr string) errorClass {
	lower := strings.ToLower(errStr)
	switch {
	case strings.Contains(lower, "context canceled") || strings.Contains(lower, "context deadline"):
		return errorClass{Category: "canceled", Retryable: false}
	case strings.Contains(lower, "401") || strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid api key") ||
		strings.Contains(lower, "permission denied"):
		return errorClass{Category: "auth", Retryable: false}
	case strings.Contains(lower, "400") || strings.Contains(lower, "invalid argument") || strings.Contains(lower, "unsupported") ||
		strings.Contains(lower, "bad request") || strings.Contains(lower, "invalid request") || strings.Contains(lower, "not found"):
		return errorClass{Category: "client", Retryable: false}
	case strings.Contains(lower, "safety") || strings.Contains(lower, "blocked") || strings.Contains(lower, "content policy"):
		return errorClass{Category: "content_blocked", Retryable: false}
	case strings.Contains(lower, "429") || strings.Contains(lower, "rate limit") || strings.Contains(lower, "quota"):
		return errorClass{Category: "rate_limit", Retryable: true}
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded"):
		return errorClass{Category: "timeout", Retryable: true}
	case strings.Contains(lower, "connection reset") || strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "unexpected eof") || strings.Contains(lower, "broken pipe") || lower == "eof":
		return errorClass{Category: "network", Retryable: true}
	case strings.Contains(lower, "500") || strings.Contains(lower, "502") || strings.Contains(lower, "503") || strings.Contains(lower, "504"):
		return errorClass{Category: "server", Retryable: true}
	default:
		return errorClass{Category: "unknown", Retryable: true}
	}
}
