package market

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/wonny/tailgame/internal/contracts"
	"github.com/wonny/tailgame/pkg/logger"
	"github.com/wonny/tailgame/pkg/redis"
)

// CodeCache memoises the A-share code list used by the batch sources
type CodeCache struct {
	lister contracts.CodeLister
	ttl    time.Duration
	cache  *redis.Cache
	now    func() time.Time
	logger *logger.Logger

	mu       sync.Mutex
	codes    []string
	loadedAt time.Time
}

// NewCodeCache wraps lister with a ttl cache. cache may be nil.
func NewCodeCache(lister contracts.CodeLister, ttl time.Duration, cache *redis.Cache, log *logger.Logger) *CodeCache {
	return &CodeCache{
		lister: lister,
		ttl:    ttl,
		cache:  cache,
		now:    time.Now,
		logger: log.Component("codes"),
	}
}

// ListCodes returns the cached list, reloading it after ttl
func (c *CodeCache) ListCodes(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.codes) > 0 && c.now().Sub(c.loadedAt) < c.ttl {
		return append([]string(nil), c.codes...), nil
	}

	if c.cache != nil {
		var codes []string
		found, err := c.cache.Get(ctx, redis.CodeListKey(), &codes)
		if err != nil {
			c.logger.WithError(err).Warn("Code list cache read failed")
		}
		if found && len(codes) > 0 {
			c.codes = codes
			c.loadedAt = c.now()
			return append([]string(nil), codes...), nil
		}
	}

	codes, err := c.lister.ListCodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list codes: %w", err)
	}
	if len(codes) == 0 {
		return nil, fmt.Errorf("failed to list codes: %w", ErrEmptySnapshot)
	}

	c.codes = append([]string(nil), codes...)
	c.loadedAt = c.now()
	c.logger.WithField("count", len(codes)).Info("Code list loaded")

	if c.cache != nil {
		if err := c.cache.Set(ctx, redis.CodeListKey(), codes, c.ttl); err != nil {
			c.logger.WithError(err).Warn("Code list cache write failed")
		}
	}
	return codes, nil
}

// Invalidate forgets the cached list
func (c *CodeCache) Invalidate(ctx context.Context) {
	c.mu.Lock()
	c.codes = nil
	c.loadedAt = time.Time{}
	c.mu.Unlock()

	if c.cache != nil {
		if err := c.cache.Delete(ctx, redis.CodeListKey()); err != nil {
			c.logger.WithError(err).Warn("Code list cache delete failed")
		}
	}
}

// StaticCodes is a fixed code list, used to watch a handful of symbols
type StaticCodes []string

// ListCodes returns the fixed list
func (s StaticCodes) ListCodes(context.Context) ([]string, error) {
	return append([]string(nil), s...), nil
}

// PrefixCode adds the exchange prefix to a bare 6-digit code
func PrefixCode(code string) string {
	switch {
	case len(code) != 6:
		return code
	case code[0] == '4' || code[0] == '8' || strings.HasPrefix(code, "92"):
		return "bj" + code
	case code[0] == '6' || code[0] == '9' || code[0] == '5':
		return "sh" + code
	default:
		return "sz" + code
	}
}
