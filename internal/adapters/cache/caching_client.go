package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mikey/submission-guard/internal/core"
	"github.com/zeebo/xxh3"
	"go.uber.org/zap"
)

// CachingClient serves repeated submission text from a verdict cache before
// asking the wrapped model. Failed calls are never cached.
type CachingClient struct {
	client core.LLMClient
	cache  core.VerdictCache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachingClient wraps client with cache
func NewCachingClient(client core.LLMClient, cache core.VerdictCache, ttl time.Duration, logger *zap.Logger) *CachingClient {
	return &CachingClient{client: client, cache: cache, ttl: ttl, logger: logger}
}

// Key derives the cache key from the form and its normalised text
func Key(sub *core.Submission) string {
	text := strings.ToLower(strings.Join(strings.Fields(sub.Text()), " "))
	return fmt.Sprintf("%016x", xxh3.HashString(sub.FormKey+"\x00"+text))
}

// ScoreSubmission returns the cached verdict or asks the model
func (c *CachingClient) ScoreSubmission(ctx context.Context, sub *core.Submission) (*core.LLMVerdict, error) {
	key := Key(sub)
	if verdict, ok := c.cache.Get(ctx, key); ok {
		c.logger.Debug("Using cached verdict", zap.String("key", key), zap.String("model", verdict.Model))
		return verdict, nil
	}

	verdict, err := c.client.ScoreSubmission(ctx, sub)
	if err != nil {
		return nil, err
	}
	c.cache.Set(ctx, key, verdict, c.ttl)
	return verdict, nil
}

// Close closes the wrapped client and stops the cache when they support it
func (c *CachingClient) Close() error {
	if stopper, ok := c.cache.(interface{ Stop() }); ok {
		stopper.Stop()
	}
	if closer, ok := c.client.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
