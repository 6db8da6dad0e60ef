package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// RemoteProcessor calls an inference service over HTTP.
//
//	POST /v1/classify   {"model", "text"}            -> {"label", "score"}
//	POST /v1/summarize  {"text", "max_length", ...}  -> {"summary"}
//	POST /v1/similarity {"a", "b"}                   -> {"similarity"}
type RemoteProcessor struct {
	client *resty.Client
	model  string
}

func NewRemoteProcessor(baseURL string, timeout time.Duration) *RemoteProcessor {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(100 * time.Millisecond).
		SetRetryMaxWaitTime(time.Second)

	client.AddRetryCondition(retryCondition)

	return &RemoteProcessor{client: client}
}

// ForModel returns a processor whose Classify uses the named model.
func (p *RemoteProcessor) ForModel(model string) *RemoteProcessor {
	return &RemoteProcessor{client: p.client, model: model}
}

func retryCondition(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}
	code := r.StatusCode()
	return code >= 500 || code == 429 || code == 408
}

type apiError struct {
	Error string `json:"error"`
}

func (p *RemoteProcessor) post(ctx context.Context, path string, body, result any) error {
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(result).
		SetError(&apiError{}).
		Post(path)
	if err != nil {
		return fmt.Errorf("inference request failed: %w", err)
	}
	if resp.IsError() {
		if e, ok := resp.Error().(*apiError); ok && e.Error != "" {
			return fmt.Errorf("inference error: %s (status %d)", e.Error, resp.StatusCode())
		}
		return fmt.Errorf("inference error: status %d", resp.StatusCode())
	}
	return nil
}

func (p *RemoteProcessor) Classify(ctx context.Context, text string) (Classification, error) {
	var out Classification
	err := p.post(ctx, "/v1/classify", map[string]any{
		"model": p.model,
		"text":  ClipInput(text, ClassifyInputLimit),
	}, &out)
	return out, err
}

func (p *RemoteProcessor) Summarize(ctx context.Context, text string, maxLength, minLength int) (string, error) {
	var out struct {
		Summary string `json:"summary"`
	}
	err := p.post(ctx, "/v1/summarize", map[string]any{
		"text":       text,
		"max_length": maxLength,
		"min_length": minLength,
	}, &out)
	return out.Summary, err
}

func (p *RemoteProcessor) EmbedSimilarity(ctx context.Context, a, b string) (float64, error) {
	var out struct {
		Similarity float64 `json:"similarity"`
	}
	err := p.post(ctx, "/v1/similarity", map[string]any{"a": a, "b": b}, &out)
	return out.Similarity, err
}

var _ Processor = (*RemoteProcessor)(nil)
