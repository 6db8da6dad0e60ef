package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/raakeshmj/textgate/internal/app"
	"github.com/raakeshmj/textgate/internal/logger"
	"github.com/raakeshmj/textgate/internal/middleware"
	"github.com/raakeshmj/textgate/internal/policy"
	"github.com/raakeshmj/textgate/internal/reliability"
	"github.com/sirupsen/logrus"
)

type Server struct {
	app          *app.App
	router       *http.ServeMux
	policyEngine *policy.Engine
	validate     *validator.Validate
	strategy     reliability.FailureStrategy
}

func New(a *app.App) (*Server, error) {
	strategy, err := reliability.ParseStrategy(a.Config.RateLimitFailure)
	if err != nil {
		return nil, err
	}

	eng := policy.NewEngine()
	eng.LoadPolicies(policy.DefaultPolicies())

	s := &Server{
		app:          a,
		router:       http.NewServeMux(),
		policyEngine: eng,
		validate:     validator.New(),
		strategy:     strategy,
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.router.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	s.router.HandleFunc("GET /ready", s.ready)
	s.router.Handle("GET /metrics", s.app.Metrics.Handler())

	s.router.HandleFunc("POST /api/auth/register", s.register)
	s.router.HandleFunc("POST /api/auth/login", s.login)
	s.router.HandleFunc("GET /api/account", s.account)

	s.router.HandleFunc("POST /api/keys", s.issueKey)
	s.router.HandleFunc("GET /api/keys", s.listKeys)
	s.router.HandleFunc("POST /api/keys/rotate", s.rotateKey)

	s.router.HandleFunc("POST /api/tools/sentiment", s.sentiment)
	s.router.HandleFunc("POST /api/tools/summarize", s.summarize)
	s.router.HandleFunc("POST /api/tools/fake-news", s.fakeNews)
	s.router.HandleFunc("POST /api/tools/job-match", s.jobMatch)

	s.router.HandleFunc("GET /api/ratelimit", s.rateLimitStatus)
	s.router.HandleFunc("GET /api/history", s.history)
	s.router.HandleFunc("GET /api/analytics", s.analytics)

	s.router.HandleFunc("GET /api/admin/stats", s.adminStats)
	s.router.HandleFunc("POST /api/admin/tier", s.setTier)
	s.router.HandleFunc("GET /api/admin/limits", s.getLimits)
	s.router.HandleFunc("POST /api/admin/limits", s.reloadLimits)
}

// Handler returns the router wrapped in the middleware chain:
// Metrics -> Audit -> Security -> Policy -> Auth -> RateLimit -> Handler
func (s *Server) Handler() http.Handler {
	auditLog := s.app.Audit

	mws := []middleware.Middleware{middleware.MetricsMiddleware(s.app.Metrics)}
	if auditLog != nil {
		mws = append(mws, middleware.AuditMiddleware(auditLog))
	}
	mws = append(mws,
		middleware.SecureHeaders(middleware.SecurityConfig{
			EnableReplayProtection: s.app.Config.ReplayProtection,
			ReplayWindow:           60 * time.Second,
		}),
		middleware.PolicyEnforcer(s.policyEngine),
		middleware.NewAuth(s.app.JWT, s.app.Keys, s.app.Credentials).Handle,
		middleware.RateLimit(s.app.Limiter, s.strategy, s.app.Metrics),
	)
	return middleware.Chain(s.router, mws...)
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.app.Ready(ctx); err != nil {
		logger.LogEvent(logrus.WarnLevel, "not ready", logrus.Fields{"error": err.Error()})
		http.Error(w, "Store Unavailable", http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}

func (s *Server) Start() error {
	srv := &http.Server{
		Addr:              ":" + s.app.Config.ServerPort,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to listen for errors coming from the listener.
	serverErrors := make(chan error, 1)

	go func() {
		logger.LogEvent(logrus.InfoLevel, "server starting", logrus.Fields{
			"port":    s.app.Config.ServerPort,
			"backend": s.app.Config.StoreBackend,
		})
		serverErrors <- srv.ListenAndServe()
	}()

	// Channel to listen for an interrupt or terminate signal from the OS.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.LogEvent(logrus.InfoLevel, "shutdown started", logrus.Fields{"signal": sig.String()})

		// Give outstanding requests a deadline for completion.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			srv.Close()
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
	}

	return nil
}
