package aggregator

import (
	"context"
	"time"

	"basket_swap/internal/core"
	"basket_swap/internal/infrastructure/cache"
)

// CachedQuoteClient serves repeated quote requests from redis for a short TTL. Cache failures
// fall through to the wrapped client.
type CachedQuoteClient struct {
	next   core.IQuoteClient
	cache  *cache.RedisCache
	ttl    time.Duration
	logger core.ILogger
}

func NewCachedQuoteClient(next core.IQuoteClient, c *cache.RedisCache, ttl time.Duration, logger core.ILogger) *CachedQuoteClient {
	return &CachedQuoteClient{
		next:   next,
		cache:  c,
		ttl:    ttl,
		logger: logger.WithField("component", "quote_cache"),
	}
}

func (c *CachedQuoteClient) GetQuote(ctx context.Context, req core.QuoteRequest) (*core.Quote, error) {
	key := cache.Key("quote", req.CacheKey())

	var cached core.Quote
	ok, err := c.cache.GetJSON(ctx, key, &cached)
	if err != nil {
		c.logger.Warn("Quote cache read failed", "error", err)
	} else if ok && cached.Validate(req) == nil {
		return &cached, nil
	}

	q, err := c.next.GetQuote(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := c.cache.SetJSON(ctx, key, q, c.ttl); err != nil {
		c.logger.Warn("Quote cache write failed", "error", err)
	}
	return q, nil
}
