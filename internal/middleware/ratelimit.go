package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"

	"github.com/raakeshmj/textgate/internal/limiter"
	"github.com/raakeshmj/textgate/internal/logger"
	"github.com/raakeshmj/textgate/internal/metrics"
	"github.com/raakeshmj/textgate/internal/reliability"
	"github.com/sirupsen/logrus"
)

const DecisionContextKey contextKey = "ratelimit"

// RateLimit admits metered requests against the caller's tier quota. It
// must run after the auth middleware.
func RateLimit(l limiter.Limiter, strategy reliability.FailureStrategy, collector *metrics.MetricsCollector) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := GetPolicy(r.Context())
			account, ok := AccountFromContext(r.Context())
			if p == nil || !p.Rules.Metered || !ok {
				next.ServeHTTP(w, r)
				return
			}

			d, err := l.Admit(r.Context(), account.Username, account.Tier)
			if err != nil {
				if reliability.ShouldAllow(strategy, err) {
					logger.LogEvent(logrus.WarnLevel, "rate limiter error (fail open)", logrus.Fields{
						"user":  account.Username,
						"error": err.Error(),
					})
					next.ServeHTTP(w, r)
					return
				}
				logger.LogEvent(logrus.ErrorLevel, "rate limiter error", logrus.Fields{
					"user":  account.Username,
					"error": err.Error(),
				})
				WriteError(w, http.StatusInternalServerError, "internal error")
				return
			}

			if collector != nil {
				collector.RecordAdmission(string(account.Tier), d.Allowed)
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

			if !d.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(d.RetryAfter.Seconds()))))
				WriteError(w, http.StatusTooManyRequests, d.Message())
				return
			}

			ctx := context.WithValue(r.Context(), DecisionContextKey, d)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// DecisionFromContext returns the admission decision for a metered request.
func DecisionFromContext(ctx context.Context) (limiter.Decision, bool) {
	d, ok := ctx.Value(DecisionContextKey).(limiter.Decision)
	return d, ok
}
