package middleware

import (
	"context"
	"net/http"

	"github.com/raakeshmj/textgate/internal/policy"
)

type contextKey string

const PolicyContextKey contextKey = "policy"

// PolicyEnforcer evaluates the request and attaches the policy to context
func PolicyEnforcer(engine *policy.Engine) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := engine.Evaluate(r)
			if p == nil {
				d := policy.Default
				p = &d
			}

			ctx := context.WithValue(r.Context(), PolicyContextKey, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Helper to get policy from context
func GetPolicy(ctx context.Context) *policy.Policy {
	if p, ok := ctx.Value(PolicyContextKey).(*policy.Policy); ok {
		return p
	}
	return nil
}
