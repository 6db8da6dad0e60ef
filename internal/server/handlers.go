package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/raakeshmj/textgate/internal/circuitbreaker"
	"github.com/raakeshmj/textgate/internal/errs"
	"github.com/raakeshmj/textgate/internal/logger"
	"github.com/raakeshmj/textgate/internal/middleware"
	"github.com/sirupsen/logrus"
)

const maxBodyBytes = 1 << 20

type registerRequest struct {
	Username        string `json:"username" validate:"required,min=3,max=64,printascii"`
	Password        string `json:"password" validate:"required,min=8,max=72"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
	Email           string `json:"email" validate:"omitempty,email"`
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "eqfield":
		return "passwords do not match"
	case "min":
		return fe.Field() + " must be at least " + fe.Param() + " characters"
	case "max":
		return fe.Field() + " must be at most " + fe.Param() + " characters"
	case "email":
		return "invalid email address"
	}
	return "invalid " + fe.Field()
}

// writeServiceError maps the error taxonomy to HTTP. Storage failures are
// logged and never described to the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var rl *errs.RateLimitedError
	switch {
	case errors.As(err, &rl):
		middleware.WriteError(w, http.StatusTooManyRequests, rl.Error())
	case errors.Is(err, errs.ErrInvalidInput):
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, errs.ErrConflict):
		middleware.WriteError(w, http.StatusConflict, "username already exists")
	case errors.Is(err, errs.ErrUnauthorized):
		middleware.WriteError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, errs.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, "not found")
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		middleware.WriteError(w, http.StatusServiceUnavailable, "inference service unavailable")
	default:
		logger.LogEvent(logrus.ErrorLevel, "request failed", logrus.Fields{
			"path":  r.URL.Path,
			"error": err.Error(),
		})
		middleware.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}

// writeToolError treats anything outside the taxonomy as an upstream failure.
func writeToolError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errs.ErrStorage) || errors.Is(err, errs.ErrInvalidInput) || errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		writeServiceError(w, r, err)
		return
	}
	logger.LogEvent(logrus.WarnLevel, "inference call failed", logrus.Fields{
		"path":  r.URL.Path,
		"error": err.Error(),
	})
	middleware.WriteError(w, http.StatusBadGateway, "inference service error")
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	if !s.app.Config.EnableUserSignup {
		middleware.WriteError(w, http.StatusForbidden, "registration is disabled")
		return
	}

	var req registerRequest
	if !s.decode(w, r, &req) {
		return
	}

	if err := s.app.Credentials.Register(r.Context(), req.Username, req.Password, req.Email); err != nil {
		writeServiceError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, map[string]string{"username": req.Username})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decode(w, r, &req) {
		return
	}

	token, err := s.app.Credentials.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"token_type": "Bearer",
		"expires_in": int(s.app.Config.TokenTTL.Seconds()),
	})
}

func (s *Server) account(w http.ResponseWriter, r *http.Request) {
	a, _ := middleware.AccountFromContext(r.Context())
	middleware.WriteJSON(w, http.StatusOK, a.View())
}

func (s *Server) issueKey(w http.ResponseWriter, r *http.Request) {
	if !s.app.Config.EnableAPIAccess {
		middleware.WriteError(w, http.StatusForbidden, "API access is disabled")
		return
	}
	a, _ := middleware.AccountFromContext(r.Context())

	raw, err := s.app.Keys.Issue(r.Context(), a.Username)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, map[string]string{
		"api_key": raw,
		"message": "Store this key now. It will not be shown again.",
	})
}

func (s *Server) listKeys(w http.ResponseWriter, r *http.Request) {
	a, _ := middleware.AccountFromContext(r.Context())

	keys, err := s.app.Keys.List(r.Context(), a.Username)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"keys": keys})
}

func (s *Server) rotateKey(w http.ResponseWriter, r *http.Request) {
	if !s.app.Config.EnableAPIAccess {
		middleware.WriteError(w, http.StatusForbidden, "API access is disabled")
		return
	}
	a, _ := middleware.AccountFromContext(r.Context())

	raw, err := s.app.Keys.Rotate(r.Context(), a.Username)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"api_key": raw,
		"message": "All previous keys revoked",
	})
}

func (s *Server) rateLimitStatus(w http.ResponseWriter, r *http.Request) {
	d, _ := middleware.DecisionFromContext(r.Context())
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"allowed":   d.Allowed,
		"limit":     d.Limit,
		"remaining": d.Remaining,
		"message":   d.Message(),
	})
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	a, _ := middleware.AccountFromContext(r.Context())

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			middleware.WriteError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := s.app.History.Recent(r.Context(), a.Username, limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"history": entries})
}

func (s *Server) analytics(w http.ResponseWriter, r *http.Request) {
	a, _ := middleware.AccountFromContext(r.Context())

	snap, err := s.app.Analytics.Summarize(r.Context(), a.Username)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if snap == nil {
		middleware.WriteError(w, http.StatusNotFound, "no history yet")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, snap)
}
