package orchestrator

import (
	"sync"

	"golang.org/x/time/rate"
)

// repoLimiter is a keyed token-bucket limiter. Each repository gets its own
// bucket; comment traffic uses a separate "owner/repo#comment" key so a
// chatty thread cannot starve issue intake.
type repoLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	buckets  map[string]*rate.Limiter
	notified map[string]bool
}

// CommentChannelSuffix separates comment traffic into its own bucket.
const CommentChannelSuffix = "#comment"

func newRepoLimiter(limit rate.Limit, burst int) *repoLimiter {
	return &repoLimiter{
		limit:    limit,
		burst:    burst,
		buckets:  map[string]*rate.Limiter{},
		notified: map[string]bool{},
	}
}

// Allow consumes one token for key. The boolean result is the admit
// decision; notify is true on the first rejection since the bucket last
// admitted, so the caller posts at most one rate-limited comment per burst
// of drops.
func (l *repoLimiter) Allow(key string) (allowed, notify bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	bucket, ok := l.buckets[key]
	if !ok {
		bucket = rate.NewLimiter(l.limit, l.burst)
		l.buckets[key] = bucket
	}

	if bucket.Allow() {
		l.notified[key] = false
		return true, false
	}
	if !l.notified[key] {
		l.notified[key] = true
		return false, true
	}
	return false, false
}

// keyedMutex serializes work per issue identity so duplicate deliveries for
// the same issue never interleave. Entries are reference-counted and freed
// on last unlock.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: map[string]*keyedLock{}}
}

// Lock acquires the lock for key, blocking if another goroutine holds it.
func (k *keyedMutex) Lock(key string) {
	k.mu.Lock()
	lock, ok := k.locks[key]
	if !ok {
		lock = &keyedLock{}
		k.locks[key] = lock
	}
	lock.refs++
	k.mu.Unlock()

	lock.mu.Lock()
}

// Unlock releases the lock for key.
func (k *keyedMutex) Unlock(key string) {
	k.mu.Lock()
	lock, ok := k.locks[key]
	if ok {
		lock.refs--
		if lock.refs == 0 {
			delete(k.locks, key)
		}
	}
	k.mu.Unlock()

	if ok {
		lock.mu.Unlock()
	}
}
