package reliability

import (
	"testing"
	"time"
)

func TestIsRetryableHTTPStatus(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503, 504} {
		if !IsRetryableHTTPStatus(code) {
			t.Fatalf("IsRetryableHTTPStatus(%d) = false, want true", code)
		}
	}
	for _, code := range []int{200, 204, 400, 401, 404} {
		if IsRetryableHTTPStatus(code) {
			t.Fatalf("IsRetryableHTTPStatus(%d) = true, want false", code)
		}
	}
}

func TestReconnectPolicyCapsAttempts(t *testing.T) {
	p := ReconnectPolicy{Delay: 2 * time.Second, MaxAttempts: 5}

	allowed := 0
	for attempts := 0; attempts < 10; attempts++ {
		d, ok := p.Next(attempts)
		if !ok {
			break
		}
		if d != 2*time.Second {
			t.Fatalf("Next(%d) delay = %v, want 2s", attempts, d)
		}
		allowed++
	}
	if allowed != 5 {
		t.Fatalf("allowed attempts = %d, want 5", allowed)
	}
}

func TestReconnectPolicyDefaultDelay(t *testing.T) {
	p := ReconnectPolicy{MaxAttempts: 1}
	d, ok := p.Next(0)
	if !ok {
		t.Fatalf("Next(0) not allowed, want allowed")
	}
	if d != 2*time.Second {
		t.Fatalf("default delay = %v, want 2s", d)
	}
}
