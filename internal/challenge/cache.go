// Package challenge fronts the random candidate query for the guessing game
// with a striped in-memory cache, so browsing players do not run an ORDER BY
// random() scan on every request.
package challenge

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sakuramoe/galarc/internal/gallery"
)

const (
	shardCount = 8
	// fillSize is how many candidates one repository query pre-fetches per
	// shard.
	fillSize = 64
)

// source is the repository side of the cache.
type source interface {
	ChallengeCandidates(ctx context.Context, limit int) ([]gallery.ChallengeCandidate, error)
}

// Cache stripes pools of pre-fetched candidates across shards. Requests
// rotate over the shards so concurrent draws rarely share a lock, and each
// shard refills independently once its pool drains or its fill goes stale.
type Cache struct {
	repo   source
	clock  gallery.Clock
	ttl    time.Duration
	next   atomic.Uint32
	shards [shardCount]shard
}

type shard struct {
	mu     sync.Mutex
	filled time.Time
	pool   []gallery.ChallengeCandidate
}

// New builds a Cache over the repository query. ttl bounds how long a shard
// serves from a single fill; zero picks five minutes.
func New(repo source, clock gallery.Clock, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{repo: repo, clock: clock, ttl: ttl}
}

// ChallengeCandidates serves up to limit candidates from one shard. Draws
// from the same fill never repeat a candidate; the shard refetches when it
// cannot cover the request or its fill is older than the ttl.
func (c *Cache) ChallengeCandidates(ctx context.Context, limit int) ([]gallery.ChallengeCandidate, error) {
	sh := &c.shards[c.next.Add(1)%shardCount]
	sh.mu.Lock()
	defer sh.mu.Unlock()

	now := c.clock.Now()
	if len(sh.pool) < limit || now.Sub(sh.filled) > c.ttl {
		pool, err := c.repo.ChallengeCandidates(ctx, fillSize)
		if err != nil {
			return nil, fmt.Errorf("fill challenge shard: %w", err)
		}
		sh.pool = pool
		sh.filled = now
	}

	n := limit
	if n > len(sh.pool) {
		n = len(sh.pool)
	}
	out := append([]gallery.ChallengeCandidate(nil), sh.pool[:n]...)
	sh.pool = sh.pool[n:]
	return out, nil
}
