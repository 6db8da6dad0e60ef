package tools

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/raakeshmj/textgate/internal/cache"
)

// CachedClassifier remembers recent classifications of identical input.
// Only successful results are cached.
type CachedClassifier struct {
	next  Classifier
	cache *cache.MemoryCache[Classification]
}

func NewCachedClassifier(next Classifier, c *cache.MemoryCache[Classification]) *CachedClassifier {
	return &CachedClassifier{next: next, cache: c}
}

func (c *CachedClassifier) Classify(ctx context.Context, text string) (Classification, error) {
	sum := sha256.Sum256([]byte(text))
	key := hex.EncodeToString(sum[:])

	if res, ok := c.cache.Get(key); ok {
		return res, nil
	}

	res, err := c.next.Classify(ctx, text)
	if err != nil {
		return res, err
	}
	c.cache.Set(key, res)
	return res, nil
}
