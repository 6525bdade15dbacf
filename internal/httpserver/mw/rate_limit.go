package mw

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/MrSnakeDoc/linkvault/internal/utils"
)

// RateLimitConfig configures a token bucket per client. A client is the
// request identity when Identity ran first, its IP otherwise.
type RateLimitConfig struct {
	Burst         int              // bucket capacity, at least 1
	RefillPerMin  int              // tokens added per minute, at least 1
	MaxEntries    int              // sweep early once this many clients are tracked (0: no cap)
	SweepInterval time.Duration    // how often idle buckets are dropped
	IdleTTL       time.Duration    // a bucket unused this long is dropped
	TrustProxy    bool             // resolve IP from proxy headers when true
	Now           func() time.Time // defaults to time.Now
}

func (c RateLimitConfig) withDefaults() RateLimitConfig {
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = 15 * time.Minute
	}
	c.Burst = max(c.Burst, 1)
	c.RefillPerMin = max(c.RefillPerMin, 1)
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

type tokenBucket struct {
	mu       sync.Mutex
	tokens   float64
	refilled time.Time
	used     time.Time
}

// verdict is the outcome of one take.
type verdict struct {
	allowed    bool
	remaining  int
	retryAfter int // seconds, set when not allowed
}

// take refills the bucket for the time elapsed since the last refill and
// spends one token if there is one.
func (b *tokenBucket) take(now time.Time, capacity, perSec float64) verdict {
	b.mu.Lock()
	defer b.mu.Unlock()

	if dt := now.Sub(b.refilled).Seconds(); dt > 0 {
		b.tokens = math.Min(capacity, b.tokens+dt*perSec)
		b.refilled = now
	}

	if b.tokens < 1 {
		wait := int(math.Ceil((1 - b.tokens) / perSec))
		return verdict{remaining: 0, retryAfter: max(wait, 1)}
	}
	b.tokens--
	b.used = now
	return verdict{allowed: true, remaining: int(b.tokens)}
}

func (b *tokenBucket) idleSince(now time.Time) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return now.Sub(b.used)
}

type buckets struct {
	cfg      RateLimitConfig
	capacity float64
	perSec   float64

	mu        sync.Mutex
	byClient  map[string]*tokenBucket
	lastSweep time.Time
}

func newBuckets(cfg RateLimitConfig) *buckets {
	cfg = cfg.withDefaults()
	return &buckets{
		cfg:       cfg,
		capacity:  float64(cfg.Burst),
		perSec:    float64(cfg.RefillPerMin) / 60,
		byClient:  make(map[string]*tokenBucket),
		lastSweep: cfg.Now(),
	}
}

// get returns the client's bucket, sweeping idle ones first when due or
// when the table is full.
func (bs *buckets) get(client string, now time.Time) *tokenBucket {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	full := bs.cfg.MaxEntries > 0 && len(bs.byClient) >= bs.cfg.MaxEntries
	if full || now.Sub(bs.lastSweep) >= bs.cfg.SweepInterval {
		bs.sweepLocked(now)
	}

	b, ok := bs.byClient[client]
	if !ok {
		b = &tokenBucket{tokens: bs.capacity, refilled: now, used: now}
		bs.byClient[client] = b
	}
	return b
}

func (bs *buckets) sweepLocked(now time.Time) {
	for client, b := range bs.byClient {
		if b.idleSince(now) > bs.cfg.IdleTTL {
			delete(bs.byClient, client)
		}
	}
	bs.lastSweep = now
}

func (bs *buckets) clientKey(r *http.Request) string {
	if id := IdentityFrom(r.Context()); id != "" {
		return "id:" + id
	}
	return "ip:" + utils.ClientIP(r, bs.cfg.TrustProxy)
}

// RateLimit rejects requests over the client's budget with 429.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	bs := newBuckets(cfg)
	limit := strconv.Itoa(bs.cfg.Burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := bs.cfg.Now()
			v := bs.get(bs.clientKey(r), now).take(now, bs.capacity, bs.perSec)

			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(v.remaining))
			if !v.allowed {
				h.Set("Retry-After", strconv.Itoa(v.retryAfter))
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
