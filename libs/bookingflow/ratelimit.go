package bookingflow

import (
	"time"

	"golang.org/x/time/rate"
)

// MinIntervalLimiter accepts a request only if at least the minimum interval passed since
// the last accepted one. Rejected requests do not move the window.
type MinIntervalLimiter struct {
	lim *rate.Limiter
}

// NewMinIntervalLimiter returns a limiter; a non-positive interval disables limiting.
func NewMinIntervalLimiter(minInterval time.Duration) *MinIntervalLimiter {
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	return &MinIntervalLimiter{lim: rate.NewLimiter(limit, 1)}
}

func (l *MinIntervalLimiter) Allow(now time.Time) bool {
	return l.lim.AllowN(now, 1)
}
