package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/AnshRaj112/accountd/pkg/clientip"
)

const (
	// RateLimitWindow is the fixed window each counter lives for.
	RateLimitWindow = 120 * time.Second
	// RateLimitMaxRequests is the number of requests allowed per window.
	RateLimitMaxRequests = 25
	// RateLimitKeyPrefix is the Redis key prefix for request counters.
	RateLimitKeyPrefix = "ratelimit:"
	// BlockedIPKeyPrefix is the Redis key prefix for blocked IPs.
	BlockedIPKeyPrefix = "blocked_ip:"
	// BlockedIPDuration is how long an IP stays blocked.
	BlockedIPDuration = 24 * time.Hour
)

// RateLimiter is a Redis backed fixed-window limiter shared by every
// instance of the service. An IP that exceeds the window is blocked for
// BlockFor. Redis failures let the request through.
type RateLimiter struct {
	client   *redis.Client
	log      *zap.Logger
	Window   time.Duration
	Max      int
	BlockFor time.Duration
}

func NewRateLimiter(client *redis.Client, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{
		client:   client,
		log:      logger,
		Window:   RateLimitWindow,
		Max:      RateLimitMaxRequests,
		BlockFor: BlockedIPDuration,
	}
}

// Middleware applies the limiter per client IP.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ip := clientip.LimitKey(r)

		blocked, err := l.IsBlocked(ctx, ip)
		if err == nil && blocked {
			writeTooMany(w, "Your IP has been temporarily blocked due to excessive requests. Please try again later.")
			return
		}

		count, err := l.hit(ctx, ip)
		if err != nil {
			l.log.Warn("rate limiter unavailable", zap.String("client_ip", ip), zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		if count > int64(l.Max) {
			if err := l.client.Set(ctx, BlockedIPKeyPrefix+ip, "1", l.BlockFor).Err(); err != nil {
				l.log.Warn("failed to block ip", zap.String("client_ip", ip), zap.Error(err))
			} else {
				l.log.Info("ip blocked", zap.String("client_ip", ip), zap.Int64("count", count))
			}
			w.Header().Set("Retry-After", strconv.Itoa(int(l.Window.Seconds())))
			writeTooMany(w, "Rate limit exceeded. Your IP has been temporarily blocked. Please try again later.")
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.Max))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(int64(l.Max)-count, 10))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(l.Window).Unix(), 10))
		next.ServeHTTP(w, r)
	})
}

// hit increments the window counter for ip and starts the window on the
// first request.
func (l *RateLimiter) hit(ctx context.Context, ip string) (int64, error) {
	key := RateLimitKeyPrefix + ip
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("count request: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.Window).Err(); err != nil {
			return 0, fmt.Errorf("start window: %w", err)
		}
	}
	return count, nil
}

// IsBlocked reports whether ip is currently blocked.
func (l *RateLimiter) IsBlocked(ctx context.Context, ip string) (bool, error) {
	n, err := l.client.Exists(ctx, BlockedIPKeyPrefix+ip).Result()
	return n > 0, err
}

func writeTooMany(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	fmt.Fprintf(w, `{"errors":[{"message":%q,"extensions":{"code":"RATE_LIMITED"}}]}`, message)
}
