package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/raakeshmj/textgate/internal/auth"
	"github.com/raakeshmj/textgate/internal/db"
	"github.com/raakeshmj/textgate/internal/errs"
	"github.com/raakeshmj/textgate/internal/logger"
	"github.com/sirupsen/logrus"
)

type ContextKey string

const (
	UserContextKey    ContextKey = "user"
	AccountContextKey ContextKey = "account"
)

// KeyValidator resolves a raw API key to its owner.
type KeyValidator interface {
	Validate(ctx context.Context, rawKey string) (string, bool, error)
}

type AccountLoader interface {
	GetAccount(ctx context.Context, username string) (*db.Account, error)
}

type AuthMiddleware struct {
	jwtManager *auth.JWTManager
	keys       KeyValidator
	accounts   AccountLoader

	// InvalidKeyDelay slows down guessing of API keys.
	InvalidKeyDelay time.Duration
}

func NewAuth(jwtManager *auth.JWTManager, keys KeyValidator, accounts AccountLoader) *AuthMiddleware {
	return &AuthMiddleware{
		jwtManager:      jwtManager,
		keys:            keys,
		accounts:        accounts,
		InvalidKeyDelay: 100 * time.Millisecond,
	}
}

func (m *AuthMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := GetPolicy(r.Context())
		authRequired := p == nil || p.Rules.AuthRequired

		username, status, msg := m.identify(r)
		if status == http.StatusInternalServerError {
			WriteError(w, status, msg)
			return
		}
		if username == "" {
			// Credentials that were presented and rejected fail even on public routes.
			if authRequired || status != 0 {
				if status == 0 {
					status, msg = http.StatusUnauthorized, "missing credentials"
				}
				WriteError(w, status, msg)
				return
			}
			// Public access
			next.ServeHTTP(w, r)
			return
		}

		account, err := m.accounts.GetAccount(r.Context(), username)
		if errors.Is(err, errs.ErrNotFound) {
			WriteError(w, http.StatusUnauthorized, "unknown account")
			return
		}
		if err != nil {
			logger.LogEvent(logrus.ErrorLevel, "account lookup failed", logrus.Fields{"user": username, "error": err.Error()})
			WriteError(w, http.StatusInternalServerError, "internal error")
			return
		}

		if p != nil && p.Rules.AdminOnly && !account.IsAdmin() {
			WriteError(w, http.StatusForbidden, "admin access required")
			return
		}

		setActor(r.Context(), username)
		ctx := context.WithValue(r.Context(), UserContextKey, username)
		ctx = context.WithValue(ctx, AccountContextKey, account)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// identify returns the caller's username. A non-zero status means the
// presented credentials were rejected.
func (m *AuthMiddleware) identify(r *http.Request) (string, int, string) {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		claims, err := m.jwtManager.Verify(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			if errors.Is(err, auth.ErrExpiredToken) {
				return "", http.StatusUnauthorized, "token expired"
			}
			return "", http.StatusUnauthorized, "invalid token"
		}
		return claims.Username, 0, ""
	}

	if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
		username, ok, err := m.keys.Validate(r.Context(), apiKey)
		if err != nil {
			return "", http.StatusInternalServerError, "internal error"
		}
		if !ok {
			time.Sleep(m.InvalidKeyDelay)
			return "", http.StatusUnauthorized, "invalid API key"
		}
		return username, 0, ""
	}

	return "", 0, ""
}

// AccountFromContext returns the authenticated account, if any.
func AccountFromContext(ctx context.Context) (*db.Account, bool) {
	a, ok := ctx.Value(AccountContextKey).(*db.Account)
	return a, ok && a != nil
}
