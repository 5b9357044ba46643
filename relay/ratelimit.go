package relay

import "sync"

// rateLimiter is a token bucket per (space, author). Buckets live in
// memory only; a relay restart refills everyone, which errs on the side
// of accepting traffic.
type rateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucketState
}

type bucketState struct {
	tokens float64
	last   uint64
}

func newRateLimiter() *rateLimiter {
	return &rateLimiter{buckets: make(map[string]*bucketState)}
}

// allow spends one token from the bucket for key, refilling at perMinute
// tokens per minute up to a burst of perMinute. A perMinute of zero means
// unlimited. now is a unix timestamp in seconds.
func (l *rateLimiter) allow(key string, perMinute uint64, now uint64) bool {
	if perMinute == 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucketState{tokens: float64(perMinute), last: now}
		l.buckets[key] = b
	}
	if now > b.last {
		b.tokens += float64(now-b.last) * float64(perMinute) / 60
		if burst := float64(perMinute); b.tokens > burst {
			b.tokens = burst
		}
		b.last = now
	}
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

func rateKey(spaceID string, author []byte) string {
	return spaceID + "\x00" + string(author)
}
