package limiter

import (
	"context"
	"time"

	"github.com/raakeshmj/textgate/internal/db"
	"github.com/raakeshmj/textgate/internal/keylock"
	"github.com/raakeshmj/textgate/internal/repository"
)

// SlidingWindow keeps each user's request timestamps in a WindowRepository.
// A keyed lock serialises admissions for one user inside this process; the
// repository's compare-and-swap covers other processes sharing the store.
type SlidingWindow struct {
	repo   repository.WindowRepository
	limits LimitSource
	locks  *keylock.Locker

	// Now is the clock. Tests replace it.
	Now func() time.Time
}

func NewSlidingWindow(repo repository.WindowRepository, limits LimitSource) *SlidingWindow {
	return &SlidingWindow{
		repo:   repo,
		limits: limits,
		locks:  keylock.New(),
		Now:    time.Now,
	}
}

func (s *SlidingWindow) Admit(ctx context.Context, username string, tier db.Tier) (Decision, error) {
	unlock := s.locks.Lock(username)
	defer unlock()

	limit := s.limits.LimitFor(tier)
	var d Decision

	err := s.repo.UpdateWindow(ctx, username, func(cur []time.Time) ([]time.Time, error) {
		now := s.Now()
		cutoff := now.Add(-Window)

		kept := make([]time.Time, 0, len(cur)+1)
		for _, ts := range cur {
			if ts.After(cutoff) {
				kept = append(kept, ts)
			}
		}

		if len(kept) >= limit {
			d = Decision{Allowed: false, Limit: limit}
			if len(kept) > 0 {
				d.RetryAfter = retryAfter(kept[0], now)
			}
			return kept, nil
		}

		kept = append(kept, now)
		d = Decision{Allowed: true, Limit: limit, Remaining: limit - len(kept)}
		return kept, nil
	})
	if err != nil {
		return Decision{}, err
	}
	return d, nil
}

var _ Limiter = (*SlidingWindow)(nil)
