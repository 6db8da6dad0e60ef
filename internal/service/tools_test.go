package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/raakeshmj/textgate/internal/db"
	"github.com/raakeshmj/textgate/internal/errs"
	"github.com/raakeshmj/textgate/internal/metrics"
	"github.com/raakeshmj/textgate/internal/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProcessor struct {
	label      string
	similarity float64
	err        error
	lastText   string
	lastMax    int
	lastMin    int
}

func (f *fakeProcessor) Classify(ctx context.Context, text string) (tools.Classification, error) {
	f.lastText = text
	return tools.Classification{Label: f.label, Score: 0.9}, f.err
}

func (f *fakeProcessor) Summarize(ctx context.Context, text string, maxLength, minLength int) (string, error) {
	f.lastMax, f.lastMin = maxLength, minLength
	return "a summary", f.err
}

func (f *fakeProcessor) EmbedSimilarity(ctx context.Context, a, b string) (float64, error) {
	return f.similarity, f.err
}

type openBreaker struct{}

func (openBreaker) Execute(ctx context.Context, name string, action func() error) error {
	return errors.New("circuit breaker is open")
}

func newToolService(t *testing.T, p *fakeProcessor, b Breaker) (*ToolService, *HistoryManager) {
	t.Helper()
	h, _ := newHistory(t)
	procs := Processors{Sentiment: p, FakeNews: p, Summarizer: p, Matcher: p}
	return NewToolService(procs, h, b, metrics.NewCollector(10)), h
}

func TestToolService_SentimentRecordsHistory(t *testing.T) {
	p := &fakeProcessor{label: "POSITIVE"}
	svc, h := newToolService(t, p, nil)
	ctx := context.Background()

	text := strings.Repeat("great ", 200)
	res, err := svc.Sentiment(ctx, "alice", text)
	require.NoError(t, err)
	assert.Equal(t, "POSITIVE", res.Label)
	assert.Len(t, []rune(p.lastText), tools.ClassifyInputLimit)

	entries, err := h.Recent(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, db.ToolSentiment, entries[0].Tool)
	assert.Len(t, entries[0].Query, MaxQueryLen)
	assert.Equal(t, "POSITIVE (0.9000)", entries[0].Result)
}

func TestToolService_FakeNews(t *testing.T) {
	svc, h := newToolService(t, &fakeProcessor{label: "FAKE"}, nil)
	ctx := context.Background()

	_, err := svc.FakeNews(ctx, "bob", "   ")
	assert.ErrorIs(t, err, errs.ErrInvalidInput)

	res, err := svc.FakeNews(ctx, "bob", "Moon made of cheese, scientists say")
	require.NoError(t, err)
	assert.Equal(t, "FAKE", res.Label)

	entries, err := h.Recent(ctx, "bob", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, db.ToolFakeNews, entries[0].Tool)
}

func TestToolService_Summarize(t *testing.T) {
	p := &fakeProcessor{}
	svc, h := newToolService(t, p, nil)
	ctx := context.Background()

	_, err := svc.Summarize(ctx, "carol", "too short", 0, 0)
	assert.ErrorIs(t, err, errs.ErrInvalidInput)

	long := strings.Repeat("word ", 30)
	_, err = svc.Summarize(ctx, "carol", long, 20, 40)
	assert.ErrorIs(t, err, errs.ErrInvalidInput)

	out, err := svc.Summarize(ctx, "carol", long, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "a summary", out)
	assert.Equal(t, tools.DefaultSummaryMax, p.lastMax)
	assert.Equal(t, tools.DefaultSummaryMin, p.lastMin)

	entries, err := h.Recent(ctx, "carol", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1, "rejected calls are not recorded")
	assert.Equal(t, "a summary", entries[0].Result)
}

func TestToolService_JobMatch(t *testing.T) {
	svc, h := newToolService(t, &fakeProcessor{similarity: 0.91}, nil)
	ctx := context.Background()

	res, err := svc.JobMatch(ctx, "dave", "Go, Kubernetes", "Backend engineer")
	require.NoError(t, err)
	assert.Equal(t, "Excellent Match", res.Recommendation)
	assert.InDelta(t, 91.0, res.MatchPercentage, 1e-9)

	entries, err := h.Recent(ctx, "dave", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Resume vs Job", entries[0].Query)
	assert.Equal(t, "91.0% Excellent Match", entries[0].Result)
}

func TestToolService_FailuresAreNotRecorded(t *testing.T) {
	ctx := context.Background()

	svc, h := newToolService(t, &fakeProcessor{err: errors.New("model offline")}, nil)
	_, err := svc.Sentiment(ctx, "erin", "hello")
	assert.Error(t, err)

	svc2, h2 := newToolService(t, &fakeProcessor{label: "POSITIVE"}, openBreaker{})
	_, err = svc2.Sentiment(ctx, "erin", "hello")
	assert.Error(t, err)

	for _, hm := range []*HistoryManager{h, h2} {
		entries, err := hm.Recent(ctx, "erin", 10)
		require.NoError(t, err)
		assert.Empty(t, entries)
	}
}
