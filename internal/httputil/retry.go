package httputil

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"
)

// RetryPolicy bounds the backoff schedule used by every adapter's outbound
// HTTP client (spec §4.B "Retry"). Zero value is not usable; use
// DefaultRetryPolicy.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryPolicy matches spec §4.B's defaults: N=3, initial=1s, max=30s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialDelay: time.Second, MaxDelay: 30 * time.Second}
}

// Delay returns the backoff delay before attempt n (0-indexed):
// min(max_delay, initial * 2^n).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := float64(p.InitialDelay) * math.Pow(2, float64(attempt))
	if d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// IsRetryableStatus reports whether an HTTP status code should trigger a
// retry: 408/429/5xx except 501 and 505 (spec §4.B).
func IsRetryableStatus(status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	case http.StatusNotImplemented, http.StatusHTTPVersionNotSupported:
		return false
	}
	return status >= 500 && status < 600
}

// RetryAfter parses a Retry-After header value, which per RFC 9110 may be
// either an integer number of seconds or an HTTP-date. Returns the wait
// duration and true if parsed, else false.
func RetryAfter(header string, now time.Time) (time.Duration, bool) {
	if header == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(header); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(header); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

// Sleep waits for d or returns ctx.Err() if ctx is cancelled first —
// backoff waits are suspension points and must honor cancellation (spec §5).
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
