package middlewares

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"civicportal/models"
	"civicportal/response"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Limiter decides whether key may perform one more action.
// Refund gives back the slot taken by the last allowed action of key.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
	Refund(ctx context.Context, key string) error
}

// RedisLimiter counts actions per key in fixed windows shared by every server instance.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
}

func NewRedisLimiter(client *redis.Client, prefix string, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: prefix, limit: limit, window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	// Create individual key for each user
	userKey := l.prefix + ":" + key

	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	if _, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, userKey)
		ttl = pipe.TTL(ctx, userKey)
		return nil
	}); err != nil {
		return false, 0, fmt.Errorf("redis incr: %w", err)
	}

	// A key without expiry is either new or lost its EXPIRE; arm the window in both cases.
	retryAfter := ttl.Val()
	if retryAfter < 0 {
		if err := l.client.Expire(ctx, userKey, l.window).Err(); err != nil {
			return false, 0, fmt.Errorf("redis expire: %w", err)
		}
		retryAfter = l.window
	}

	if incr.Val() > int64(l.limit) {
		return false, retryAfter, nil
	}
	return true, 0, nil
}

var refundScript = redis.NewScript(`
local count = tonumber(redis.call("GET", KEYS[1]) or "0")
if count > 0 then
	return redis.call("DECR", KEYS[1])
end
return 0
`)

// Refund decrements the counter of key, never below zero.
func (l *RedisLimiter) Refund(ctx context.Context, key string) error {
	if err := refundScript.Run(ctx, l.client, []string{l.prefix + ":" + key}).Err(); err != nil {
		return fmt.Errorf("redis refund: %w", err)
	}
	return nil
}

// LocalLimiter is a per-process token bucket per key, used when Redis is not configured.
type LocalLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*localBucket
	every     rate.Limit
	burst     int
	window    time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type localBucket struct {
	limiter  *rate.Limiter
	last     *rate.Reservation
	lastAt   time.Time
	lastSeen time.Time
}

// NewLocalLimiter allows limit actions at once per key, refilling one every window/limit.
func NewLocalLimiter(limit int, window time.Duration) *LocalLimiter {
	return &LocalLimiter{
		buckets: make(map[string]*localBucket),
		every:   rate.Every(window / time.Duration(limit)),
		burst:   limit,
		window:  window,
		now:     time.Now,
	}
}

func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	now := l.now()

	l.mu.Lock()
	l.sweep(now)
	b, ok := l.buckets[key]
	if !ok {
		b = &localBucket{limiter: rate.NewLimiter(l.every, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	r := b.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, 0, fmt.Errorf("limiter cannot grant a single token")
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay, nil
	}

	l.mu.Lock()
	b.last, b.lastAt = r, now
	l.mu.Unlock()
	return true, 0, nil
}

// Refund cancels the last granted reservation of key. The cancel is dated at the
// reservation time; rate.Reservation ignores cancels after its act time.
func (l *LocalLimiter) Refund(_ context.Context, key string) error {
	l.mu.Lock()
	b, ok := l.buckets[key]
	var r *rate.Reservation
	var at time.Time
	if ok {
		r, at, b.last = b.last, b.lastAt, nil
	}
	l.mu.Unlock()

	if r != nil {
		r.CancelAt(at)
	}
	return nil
}

// sweep drops buckets idle for a whole window. Such a bucket has refilled to burst,
// so a fresh one behaves the same. Runs at most once per window; l.mu must be held.
func (l *LocalLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	l.lastSweep = now
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) >= l.window {
			delete(l.buckets, key)
		}
	}
}

// IssueRateLimiter caps how many issues each authenticated user may submit.
// Submissions answered with an error status are refunded. A nil limiter disables the check.
func IssueRateLimiter(limiter Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}

		user, ok := CurrentUser(c)
		if !ok {
			response.Error(c, models.ErrUnauthorized)
			return
		}

		allowed, retryAfter, err := limiter.Allow(c.Request.Context(), user.ID.Hex())
		if err != nil {
			response.Error(c, fmt.Errorf("issue rate limiter: %w", err))
			return
		}
		if !allowed {
			seconds := int(math.Ceil(retryAfter.Seconds()))
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"message":    "Issue submission limit reached, try again later",
				"error":      "rate_limited",
				"retryAfter": seconds,
			})
			return
		}

		c.Next()

		if c.Writer.Status() >= http.StatusBadRequest {
			if err := limiter.Refund(c.Request.Context(), user.ID.Hex()); err != nil {
				_ = c.Error(fmt.Errorf("issue rate limiter refund: %w", err))
			}
		}
	}
}
