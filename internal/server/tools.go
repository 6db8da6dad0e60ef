package server

import (
	"net/http"

	"github.com/raakeshmj/textgate/internal/middleware"
)

type textRequest struct {
	Text string `json:"text" validate:"required"`
}

type summarizeRequest struct {
	Text      string `json:"text" validate:"required"`
	MaxLength int    `json:"max_length" validate:"omitempty,min=10,max=1000"`
	MinLength int    `json:"min_length" validate:"omitempty,min=1,max=1000"`
}

type jobMatchRequest struct {
	Resume         string `json:"resume" validate:"required"`
	JobDescription string `json:"job_description" validate:"required"`
}

// quota renders the admission result next to each tool response.
func quota(r *http.Request) string {
	d, ok := middleware.DecisionFromContext(r.Context())
	if !ok {
		return ""
	}
	return d.Message()
}

func (s *Server) sentiment(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !s.decode(w, r, &req) {
		return
	}
	a, _ := middleware.AccountFromContext(r.Context())

	res, err := s.app.Tools.Sentiment(r.Context(), a.Username, req.Text)
	if err != nil {
		writeToolError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"label":      res.Label,
		"score":      res.Score,
		"rate_limit": quota(r),
	})
}

func (s *Server) fakeNews(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !s.decode(w, r, &req) {
		return
	}
	a, _ := middleware.AccountFromContext(r.Context())

	res, err := s.app.Tools.FakeNews(r.Context(), a.Username, req.Text)
	if err != nil {
		writeToolError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"label":      res.Label,
		"score":      res.Score,
		"rate_limit": quota(r),
	})
}

func (s *Server) summarize(w http.ResponseWriter, r *http.Request) {
	var req summarizeRequest
	if !s.decode(w, r, &req) {
		return
	}
	a, _ := middleware.AccountFromContext(r.Context())

	summary, err := s.app.Tools.Summarize(r.Context(), a.Username, req.Text, req.MaxLength, req.MinLength)
	if err != nil {
		writeToolError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"summary":    summary,
		"rate_limit": quota(r),
	})
}

func (s *Server) jobMatch(w http.ResponseWriter, r *http.Request) {
	var req jobMatchRequest
	if !s.decode(w, r, &req) {
		return
	}
	a, _ := middleware.AccountFromContext(r.Context())

	res, err := s.app.Tools.JobMatch(r.Context(), a.Username, req.Resume, req.JobDescription)
	if err != nil {
		writeToolError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"similarity_score": res.SimilarityScore,
		"match_percentage": res.MatchPercentage,
		"recommendation":   res.Recommendation,
		"rate_limit":       quota(r),
	})
}
