// Package dedupe tracks already-seen articles in Redis so repeated
// crawls of the same source only report genuinely new items.
package dedupe

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/insight-crawler/internal/config"
	"github.com/jonesrussell/insight-crawler/internal/domain"
)

// keyPrefix namespaces seen-article keys.
const keyPrefix = "crawler:seen:"

// DefaultTTL bounds how long a seen marker lives when configuration
// does not set one. Articles older than this re-surface as new, which
// is harmless because persistence upserts by identifier.
const DefaultTTL = 30 * 24 * time.Hour

// Tracker marks article identifiers as seen with a bounded lifetime.
type Tracker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTracker creates a tracker over an existing Redis client.
func NewTracker(client *redis.Client, cfg config.RedisConfig) *Tracker {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Tracker{client: client, ttl: ttl}
}

// Key returns the Redis key for an article identifier.
func Key(articleID string) string {
	return keyPrefix + articleID
}

// MarkNew atomically marks each article as seen and returns the subset
// that was not seen before. Markers are written with the configured
// lifetime; an article already marked has its lifetime left untouched.
func (t *Tracker) MarkNew(ctx context.Context, articles []domain.CrawledArticle) ([]domain.CrawledArticle, error) {
	if len(articles) == 0 {
		return nil, nil
	}

	pipe := t.client.Pipeline()

	cmds := make([]*redis.BoolCmd, len(articles))
	for i := range articles {
		cmds[i] = pipe.SetNX(ctx, Key(articles[i].ID), 1, t.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("mark seen: %w", err)
	}

	fresh := make([]domain.CrawledArticle, 0, len(articles))

	for i := range articles {
		if cmds[i].Val() {
			fresh = append(fresh, articles[i])
		}
	}

	return fresh, nil
}

// Seen reports whether one article identifier was already marked.
func (t *Tracker) Seen(ctx context.Context, articleID string) (bool, error) {
	n, err := t.client.Exists(ctx, Key(articleID)).Result()
	if err != nil {
		return false, fmt.Errorf("check seen: %w", err)
	}

	return n > 0, nil
}

// Forget removes the seen marker for one article identifier.
func (t *Tracker) Forget(ctx context.Context, articleID string) error {
	if err := t.client.Del(ctx, Key(articleID)).Err(); err != nil {
		return fmt.Errorf("forget: %w", err)
	}

	return nil
}
