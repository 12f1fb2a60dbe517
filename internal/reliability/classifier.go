package reliability

import "time"

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// ReconnectPolicy schedules bounded fixed-delay reconnection attempts.
// The transcription socket uses a flat 2s delay with a hard attempt cap;
// the counter is reset by the caller on a successful open.
type ReconnectPolicy struct {
	Delay       time.Duration
	MaxAttempts int
}

// Next reports whether another attempt is allowed after `attempts`
// previous failures, and the delay to wait before it.
func (p ReconnectPolicy) Next(attempts int) (time.Duration, bool) {
	if p.MaxAttempts > 0 && attempts >= p.MaxAttempts {
		return 0, false
	}
	d := p.Delay
	if d <= 0 {
		d = 2 * time.Second
	}
	return d, true
}
