package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"
)

// SecurityConfig options
type SecurityConfig struct {
	EnableReplayProtection bool
	ReplayWindow           time.Duration
}

func SecureHeaders(cfg SecurityConfig) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			w.Header().Set("Cache-Control", "no-store")

			if cfg.EnableReplayProtection {
				ts := r.Header.Get("X-Timestamp")
				if ts == "" {
					WriteError(w, http.StatusBadRequest, "missing X-Timestamp header")
					return
				}

				reqTime, err := strconv.ParseInt(ts, 10, 64)
				if err != nil {
					WriteError(w, http.StatusBadRequest, "invalid X-Timestamp header")
					return
				}

				now := time.Now().Unix()
				// allowed clock skew, either direction
				if math.Abs(float64(now-reqTime)) > cfg.ReplayWindow.Seconds() {
					WriteError(w, http.StatusForbidden, fmt.Sprintf("request timestamp skewed (server: %d, req: %d)", now, reqTime))
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}
