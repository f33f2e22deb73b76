// Package dedup fronts the image repository with a content-addressed cache
// so repeat ingestions skip both the network fetch and the database lookup.
package dedup

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/sakuramoe/galarc/internal/gallery"
)

const shardCount = 32

// Store is a striped concurrent map keyed by content hash, backed by the
// image repository. Lookups for unrelated hashes never share a lock.
type Store struct {
	repo   gallery.ImageRepo
	shards [shardCount]shard
}

type shard struct {
	mu     sync.RWMutex
	images map[string]gallery.Image
}

// New builds a Store over the given image repository.
func New(repo gallery.ImageRepo) *Store {
	s := &Store{repo: repo}
	for i := range s.shards {
		s.shards[i].images = make(map[string]gallery.Image)
	}
	return s
}

func (s *Store) shard(hash string) *shard {
	h := fnv.New32a()
	h.Write([]byte(hash))
	return &s.shards[h.Sum32()%shardCount]
}

// Lookup returns the image stored under the hash, or nil when the asset has
// never been uploaded. Database hits are cached.
func (s *Store) Lookup(ctx context.Context, hash string) (*gallery.Image, error) {
	sh := s.shard(hash)
	sh.mu.RLock()
	img, ok := sh.images[hash]
	sh.mu.RUnlock()
	if ok {
		return &img, nil
	}

	found, err := s.repo.ByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("dedup lookup %s: %w", hash, err)
	}
	if found == nil {
		return nil, nil
	}

	sh.mu.Lock()
	sh.images[hash] = *found
	sh.mu.Unlock()
	return found, nil
}

// Remember records a freshly uploaded image. The write goes through the
// repository first; a duplicate hash is surfaced to the caller untouched so
// the pipeline can fail just that page.
func (s *Store) Remember(ctx context.Context, img gallery.Image) error {
	if err := s.repo.Insert(ctx, img); err != nil {
		return err
	}
	sh := s.shard(img.ContentHash)
	sh.mu.Lock()
	sh.images[img.ContentHash] = img
	sh.mu.Unlock()
	return nil
}
