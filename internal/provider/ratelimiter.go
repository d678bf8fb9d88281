package provider

import (
	"sync"
	"time"
)

// userRateLimiter is a sliding-window limiter keyed by user ID, modeled
// on the corpus's per-IP sliding window: prune expired attempts, compare
// against the cap, record the new attempt. Kept as private, in-process
// state deliberately separate from the ambient per-IP limiter in
// internal/middleware — the per-user cap is a provider-usage policy, not
// an ingress-protection one, and the spec treats it as a soft,
// best-effort guard rather than a hard distributed quota.
type userRateLimiter struct {
	mu          sync.Mutex
	attempts    map[string][]time.Time
	maxAttempts int
	window      time.Duration
}

// newUserRateLimiter creates a limiter allowing maxAttempts calls per
// window, per user.
func newUserRateLimiter(maxAttempts int, window time.Duration) *userRateLimiter {
	rl := &userRateLimiter{
		attempts:    make(map[string][]time.Time),
		maxAttempts: maxAttempts,
		window:      window,
	}
	go rl.cleanupLoop()
	return rl
}

// Allow reports whether userID may make another provider call right now,
// recording the attempt if so.
func (rl *userRateLimiter) Allow(userID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-rl.window)

	entries := rl.attempts[userID]
	valid := entries[:0]
	for _, t := range entries {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}

	if len(valid) >= rl.maxAttempts {
		rl.attempts[userID] = valid
		return false
	}

	rl.attempts[userID] = append(valid, now)
	return true
}

func (rl *userRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		rl.cleanup()
	}
}

func (rl *userRateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-rl.window)
	for userID, entries := range rl.attempts {
		valid := entries[:0]
		for _, t := range entries {
			if t.After(cutoff) {
				valid = append(valid, t)
			}
		}
		if len(valid) == 0 {
			delete(rl.attempts, userID)
		} else {
			rl.attempts[userID] = valid
		}
	}
}
