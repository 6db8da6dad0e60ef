package server

import (
	"net/http"
	"sort"

	"github.com/raakeshmj/textgate/internal/audit"
	"github.com/raakeshmj/textgate/internal/config"
	"github.com/raakeshmj/textgate/internal/db"
	"github.com/raakeshmj/textgate/internal/middleware"
)

type setTierRequest struct {
	Username string  `json:"username" validate:"required"`
	Tier     db.Tier `json:"tier" validate:"required,oneof=guest user pro"`
}

type limitsRequest struct {
	Guest int `json:"guest" validate:"required,min=1"`
	User  int `json:"user" validate:"required,min=1"`
	Pro   int `json:"pro" validate:"required,min=1"`
}

// adminStats returns user counts, the user list and recent traffic.
func (s *Server) adminStats(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.app.Credentials.ListAccounts(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	total, err := s.app.History.TotalEntries(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	users := make([]db.AccountView, 0, len(accounts))
	for _, a := range accounts {
		users = append(users, a.View())
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"total_users":   len(users),
		"total_queries": total,
		"users":         users,
		"traffic":       s.app.Metrics.GetStats(),
	})
}

func (s *Server) setTier(w http.ResponseWriter, r *http.Request) {
	var req setTierRequest
	if !s.decode(w, r, &req) {
		return
	}

	ok, err := s.app.Credentials.UpdateAccount(r.Context(), req.Username, db.AccountUpdate{Tier: &req.Tier})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !ok {
		middleware.WriteError(w, http.StatusNotFound, "no such user")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"username": req.Username, "tier": string(req.Tier)})
}

func (s *Server) getLimits(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, s.app.Limits.GetLimits())
}

// reloadLimits replaces the tier table at runtime.
func (s *Server) reloadLimits(w http.ResponseWriter, r *http.Request) {
	var req limitsRequest
	if !s.decode(w, r, &req) {
		return
	}

	limits := config.TierLimits{Guest: req.Guest, User: req.User, Pro: req.Pro}
	if err := s.app.Limits.UpdateLimits(limits); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	actor := ""
	if a, ok := middleware.AccountFromContext(r.Context()); ok {
		actor = a.Username
	}
	audit.Event(s.app.Audit, actor, audit.ActionLimitsReload, map[string]interface{}{
		"guest": limits.Guest,
		"user":  limits.User,
		"pro":   limits.Pro,
	})

	middleware.WriteJSON(w, http.StatusOK, limits)
}
