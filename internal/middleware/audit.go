package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/raakeshmj/textgate/internal/audit"
)

const actorContextKey contextKey = "actor"

// actor is filled in by the auth middleware, which runs inside the audit
// middleware and cannot hand a new context back out.
type actor struct {
	username string
}

func setActor(ctx context.Context, username string) {
	if a, ok := ctx.Value(actorContextKey).(*actor); ok {
		a.username = username
	}
}

func AuditMiddleware(logger audit.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", requestID)

			// Capture Response Status
			rw := &responseWriterInterceptor{
				ResponseWriter: w,
				statusCode:     http.StatusOK, // Default
			}

			who := &actor{}
			ctx := context.WithValue(r.Context(), actorContextKey, who)
			next.ServeHTTP(rw, r.WithContext(ctx))

			actorID := "anonymous"
			if who.username != "" {
				actorID = who.username
			}

			logger.Log(audit.LogEntry{
				Timestamp: start,
				ActorID:   actorID,
				Action:    r.Method + " " + r.URL.Path,
				Resource:  r.URL.Path,
				Status:    rw.statusCode,
				Metadata: map[string]interface{}{
					"request_id":  requestID,
					"remote_addr": r.RemoteAddr,
					"duration_ms": time.Since(start).Milliseconds(),
				},
			})
		})
	}
}
