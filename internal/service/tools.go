package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/raakeshmj/textgate/internal/db"
	"github.com/raakeshmj/textgate/internal/errs"
	"github.com/raakeshmj/textgate/internal/metrics"
	"github.com/raakeshmj/textgate/internal/tools"
)

// Breaker guards calls to the inference service.
type Breaker interface {
	Execute(ctx context.Context, serviceName string, action func() error) error
}

// Processors bundles the inference backends used by ToolService.
type Processors struct {
	Sentiment  tools.Classifier
	FakeNews   tools.Classifier
	Summarizer tools.Summarizer
	Matcher    tools.Embedder
}

// ToolService runs a text tool and records the call in the user's history.
// Admission is checked by the caller.
type ToolService struct {
	procs   Processors
	history *HistoryManager
	breaker Breaker
	metrics *metrics.MetricsCollector
}

// NewToolService accepts a nil breaker or collector.
func NewToolService(p Processors, h *HistoryManager, b Breaker, m *metrics.MetricsCollector) *ToolService {
	return &ToolService{procs: p, history: h, breaker: b, metrics: m}
}

func (s *ToolService) call(ctx context.Context, tool db.Tool, action func() error) error {
	var err error
	if s.breaker != nil {
		err = s.breaker.Execute(ctx, string(tool), action)
	} else {
		err = action()
	}
	if s.metrics != nil {
		s.metrics.RecordToolCall(string(tool), err)
	}
	return err
}

func (s *ToolService) Sentiment(ctx context.Context, username, text string) (tools.Classification, error) {
	return s.classify(ctx, username, db.ToolSentiment, s.procs.Sentiment, text)
}

func (s *ToolService) FakeNews(ctx context.Context, username, text string) (tools.Classification, error) {
	return s.classify(ctx, username, db.ToolFakeNews, s.procs.FakeNews, text)
}

func (s *ToolService) classify(ctx context.Context, username string, tool db.Tool, c tools.Classifier, text string) (tools.Classification, error) {
	if strings.TrimSpace(text) == "" {
		return tools.Classification{}, fmt.Errorf("%w: text is required", errs.ErrInvalidInput)
	}

	var out tools.Classification
	err := s.call(ctx, tool, func() error {
		var err error
		out, err = c.Classify(ctx, tools.ClipInput(text, tools.ClassifyInputLimit))
		return err
	})
	if err != nil {
		return out, err
	}

	return out, s.history.Append(ctx, username, tool, text, fmt.Sprintf("%s (%.4f)", out.Label, out.Score))
}

// Summarize uses the default lengths when maxLength or minLength is zero.
func (s *ToolService) Summarize(ctx context.Context, username, text string, maxLength, minLength int) (string, error) {
	if len([]rune(strings.TrimSpace(text))) < tools.MinSummarizeLen {
		return "", fmt.Errorf("%w: text must be at least %d characters", errs.ErrInvalidInput, tools.MinSummarizeLen)
	}
	if maxLength == 0 {
		maxLength = tools.DefaultSummaryMax
	}
	if minLength == 0 {
		minLength = tools.DefaultSummaryMin
	}
	if minLength < 0 || maxLength < minLength {
		return "", fmt.Errorf("%w: min_length must not exceed max_length", errs.ErrInvalidInput)
	}

	var summary string
	err := s.call(ctx, db.ToolSummarization, func() error {
		var err error
		summary, err = s.procs.Summarizer.Summarize(ctx, text, maxLength, minLength)
		return err
	})
	if err != nil {
		return "", err
	}

	return summary, s.history.Append(ctx, username, db.ToolSummarization, text, summary)
}

func (s *ToolService) JobMatch(ctx context.Context, username, resume, job string) (tools.MatchResult, error) {
	if strings.TrimSpace(resume) == "" || strings.TrimSpace(job) == "" {
		return tools.MatchResult{}, fmt.Errorf("%w: resume and job description are required", errs.ErrInvalidInput)
	}

	var sim float64
	err := s.call(ctx, db.ToolJobMatch, func() error {
		var err error
		sim, err = s.procs.Matcher.EmbedSimilarity(ctx, resume, job)
		return err
	})
	if err != nil {
		return tools.MatchResult{}, err
	}

	res := tools.NewMatchResult(sim)
	summary := fmt.Sprintf("%.1f%% %s", res.MatchPercentage, res.Recommendation)
	return res, s.history.Append(ctx, username, db.ToolJobMatch, "Resume vs Job", summary)
}
