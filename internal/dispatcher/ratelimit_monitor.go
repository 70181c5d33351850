package dispatcher

import (
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/valyala/fasthttp"
)

type RateLimitBucket struct {
	Remaining int
	Limit     int
	ResetAt   time.Time
}

// RateLimitMonitor remembers the last rate limit headers per route and guild
// so requests that would certainly be rejected are not sent.
type RateLimitMonitor struct {
	mu      sync.RWMutex
	buckets map[string]*RateLimitBucket
	clock   clock.Clock
}

func NewRateLimitMonitor(clk clock.Clock) *RateLimitMonitor {
	if clk == nil {
		clk = clock.New()
	}
	return &RateLimitMonitor{
		buckets: make(map[string]*RateLimitBucket),
		clock:   clk,
	}
}

func (rlm *RateLimitMonitor) CanExecute(route, guildID string) bool {
	rlm.mu.RLock()
	bucket, ok := rlm.buckets[bucketKey(route, guildID)]
	rlm.mu.RUnlock()

	if !ok || !rlm.clock.Now().Before(bucket.ResetAt) {
		return true
	}
	return bucket.Remaining > 0
}

// Update records the limit headers of resp. A 429 empties the bucket until
// Retry-After has elapsed.
func (rlm *RateLimitMonitor) Update(resp *fasthttp.Response, route, guildID string) {
	bucket := &RateLimitBucket{Remaining: 1}
	now := rlm.clock.Now()

	if v := resp.Header.Peek("X-RateLimit-Remaining"); len(v) > 0 {
		bucket.Remaining, _ = strconv.Atoi(string(v))
	}
	if v := resp.Header.Peek("X-RateLimit-Limit"); len(v) > 0 {
		bucket.Limit, _ = strconv.Atoi(string(v))
	}
	if v := resp.Header.Peek("X-RateLimit-Reset-After"); len(v) > 0 {
		if secs, err := strconv.ParseFloat(string(v), 64); err == nil {
			bucket.ResetAt = now.Add(time.Duration(secs * float64(time.Second)))
		}
	}
	if resp.StatusCode() == fasthttp.StatusTooManyRequests {
		bucket.Remaining = 0
		if v := resp.Header.Peek("Retry-After"); len(v) > 0 {
			if secs, err := strconv.ParseFloat(string(v), 64); err == nil {
				bucket.ResetAt = now.Add(time.Duration(secs * float64(time.Second)))
			}
		}
	}

	rlm.mu.Lock()
	rlm.buckets[bucketKey(route, guildID)] = bucket
	rlm.mu.Unlock()
}

func (rlm *RateLimitMonitor) Bucket(route, guildID string) *RateLimitBucket {
	rlm.mu.RLock()
	defer rlm.mu.RUnlock()
	return rlm.buckets[bucketKey(route, guildID)]
}

func bucketKey(route, guildID string) string {
	return route + ":" + guildID
}
