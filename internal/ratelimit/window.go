// Package ratelimit provides a sliding-window limiter for externally
// triggered actions, keyed by actor.
package ratelimit

import (
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 16

// Window is a fixed-size sliding-window rate limiter. State is striped
// across shards keyed by actor id so unrelated actors never contend on one
// lock.
type Window struct {
	interval time.Duration
	limit    int
	now      func() time.Time
	shards   [shardCount]windowShard
}

type windowShard struct {
	mu      sync.Mutex
	entries map[int64][]time.Time
}

// NewWindow builds a limiter admitting at most limit operations per actor
// within interval.
func NewWindow(interval time.Duration, limit int) *Window {
	w := &Window{interval: interval, limit: limit, now: time.Now}
	for i := range w.shards {
		w.shards[i].entries = make(map[int64][]time.Time)
	}
	return w
}

func (w *Window) shard(actor int64) *windowShard {
	h := fnv.New32a()
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(actor >> (8 * i))
	}
	h.Write(buf[:])
	return &w.shards[h.Sum32()%shardCount]
}

// Reserve records one operation for the actor. It returns zero when the
// operation is admitted, otherwise the duration the actor has to wait.
func (w *Window) Reserve(actor int64) time.Duration {
	s := w.shard(actor)
	s.mu.Lock()
	defer s.mu.Unlock()

	now := w.now()
	cutoff := now.Add(-w.interval)

	window := s.entries[actor]
	kept := window[:0]
	for _, ts := range window {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= w.limit {
		wait := w.interval - now.Sub(kept[0])
		s.entries[actor] = kept
		return wait
	}
	s.entries[actor] = append(kept, now)
	return 0
}
