// Package tools defines the text-processing operations the gateway meters.
// Inference happens elsewhere; this package only describes and calls it.
package tools

import "context"

const (
	// ClassifyInputLimit is how many characters of input a classifier sees.
	ClassifyInputLimit = 512

	DefaultSummaryMax = 130
	DefaultSummaryMin = 30

	// MinSummarizeLen is the shortest text worth summarizing.
	MinSummarizeLen = 50
)

type Classification struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

type Classifier interface {
	Classify(ctx context.Context, text string) (Classification, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, text string, maxLength, minLength int) (string, error)
}

// Embedder returns the cosine similarity of two texts, in [-1, 1].
type Embedder interface {
	EmbedSimilarity(ctx context.Context, a, b string) (float64, error)
}

type Processor interface {
	Classifier
	Summarizer
	Embedder
}

type MatchResult struct {
	SimilarityScore float64 `json:"similarity_score"`
	MatchPercentage float64 `json:"match_percentage"`
	Recommendation  string  `json:"recommendation"`
}

func NewMatchResult(similarity float64) MatchResult {
	return MatchResult{
		SimilarityScore: similarity,
		MatchPercentage: similarity * 100,
		Recommendation:  Recommendation(similarity),
	}
}

func Recommendation(score float64) string {
	switch {
	case score >= 0.9:
		return "Excellent Match"
	case score >= 0.8:
		return "Strong Match"
	case score >= 0.7:
		return "Good Match"
	case score >= 0.6:
		return "Fair Match"
	}
	return "Weak Match"
}

// ClipInput cuts text to at most n characters.
func ClipInput(text string, n int) string {
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n])
}
