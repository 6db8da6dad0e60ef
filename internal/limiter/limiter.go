// Package limiter admits or denies requests against a per-user sliding
// one-hour window whose ceiling depends on the user's tier.
package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/raakeshmj/textgate/internal/db"
	"github.com/raakeshmj/textgate/internal/errs"
)

// Window is the span over which requests are counted.
const Window = time.Hour

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// RetryAfter is set on denial: how long until the oldest counted
	// request leaves the window.
	RetryAfter time.Duration
}

func (d Decision) Message() string {
	if d.Allowed {
		return fmt.Sprintf("Remaining: %d/%d", d.Remaining, d.Limit)
	}
	return fmt.Sprintf("Rate limit exceeded. Limit: %d/hour", d.Limit)
}

// Limiter is implemented by SlidingWindow and RedisSlidingWindow.
type Limiter interface {
	Admit(ctx context.Context, username string, tier db.Tier) (Decision, error)
}

// LimitSource resolves the hourly ceiling for a tier.
type LimitSource interface {
	LimitFor(tier db.Tier) int
}

// AdmitOrError runs an admission check and turns a denial into an
// *errs.RateLimitedError.
func AdmitOrError(ctx context.Context, l Limiter, username string, tier db.Tier) (Decision, error) {
	d, err := l.Admit(ctx, username, tier)
	if err != nil {
		return d, err
	}
	if !d.Allowed {
		return d, &errs.RateLimitedError{Limit: d.Limit, RetryAfter: d.RetryAfter}
	}
	return d, nil
}

func retryAfter(oldest, now time.Time) time.Duration {
	d := oldest.Add(Window).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
