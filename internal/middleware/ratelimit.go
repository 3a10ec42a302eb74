// AngelaMos | 2026
// ratelimit.go

package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	redis_rate "github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/carterperez-dev/marketplace-access/internal/config"
)

const (
	TierAnonymous = "anonymous"
	TierFree      = "free"
	TierPro       = "pro"
)

// TieredLimiter applies the free or Pro budget of the caller. Redis holds
// the shared counters; without Redis, or when it errors, a per-process
// token bucket takes over.
type TieredLimiter struct {
	limiter    *redis_rate.Limiter
	fallback   *localLimiter
	guard      *Guard
	free       redis_rate.Limit
	pro        redis_rate.Limit
	trustProxy bool
	logger     *slog.Logger
}

func NewTieredLimiter(
	rdb *redis.Client,
	cfg config.RateLimitConfig,
	guard *Guard,
	logger *slog.Logger,
) *TieredLimiter {
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *redis_rate.Limiter
	if rdb != nil {
		limiter = redis_rate.NewLimiter(rdb)
	}

	return &TieredLimiter{
		limiter:    limiter,
		fallback:   newLocalLimiter(),
		guard:      guard,
		free:       PerMinute(cfg.FreeRequests, cfg.FreeBurst),
		pro:        PerMinute(cfg.ProRequests, cfg.ProBurst),
		trustProxy: cfg.TrustProxyHeaders,
		logger:     logger,
	}
}

// Close stops the local bucket sweeper. Safe to call more than once.
func (tl *TieredLimiter) Close() {
	tl.fallback.stop()
}

func (tl *TieredLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, r := tl.guard.identify(r)

		tier := TierAnonymous
		key := KeyByIP(r, tl.trustProxy)
		limit := tl.free

		if user.Authenticated() {
			tier = TierFree
			key = "ratelimit:user:" + user.ID
			if user.IsPro {
				tier = TierPro
				limit = tl.pro
			}
		}

		res := tl.allow(r.Context(), key, limit)

		w.Header().Set("X-RateLimit-Tier", tier)
		setRateLimitHeaders(w, res, limit)

		if res.Allowed == 0 {
			RateLimitedTotal.WithLabelValues(tier).Inc()
			writeRateLimitExceeded(w, res)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (tl *TieredLimiter) allow(
	ctx context.Context,
	key string,
	limit redis_rate.Limit,
) *redis_rate.Result {
	if tl.limiter != nil {
		res, err := tl.limiter.Allow(ctx, key, limit)
		if err == nil {
			return res
		}
		tl.logger.Warn("redis rate limiter unavailable, using local bucket",
			"error", err,
			"key", key,
		)
	}
	return tl.fallback.allow(key, limit)
}

// KeyByIP keys anonymous callers by peer address. Forwarding headers are
// read only when trustProxy is set.
func KeyByIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			ips := strings.Split(xff, ",")
			if ip := strings.TrimSpace(ips[len(ips)-1]); ip != "" {
				return "ratelimit:ip:" + ip
			}
		}

		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return "ratelimit:ip:" + xri
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}

	return "ratelimit:ip:" + ip
}

func setRateLimitHeaders(
	w http.ResponseWriter,
	res *redis_rate.Result,
	limit redis_rate.Limit,
) {
	h := w.Header()

	h.Set("X-RateLimit-Limit", strconv.Itoa(limit.Rate))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(
		time.Now().Add(res.ResetAfter).Unix(), 10))

	windowSecs := int(limit.Period.Seconds())
	h.Set("RateLimit-Policy", fmt.Sprintf(`%d;w=%d`, limit.Rate, windowSecs))
	h.Set(
		"RateLimit",
		fmt.Sprintf(`%d;t=%d`, res.Remaining, int(res.ResetAfter.Seconds())),
	)
}

func writeRateLimitExceeded(w http.ResponseWriter, res *redis_rate.Result) {
	retryAfter := int(res.RetryAfter.Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	response := map[string]any{
		"success": false,
		"error": map[string]any{
			"code": "RATE_LIMITED",
			"message": fmt.Sprintf(
				"Rate limit exceeded. Retry after %d seconds.",
				retryAfter,
			),
		},
	}

	//nolint:errcheck // best-effort response write
	_ = json.NewEncoder(w).Encode(response)
}

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess atomic.Int64
}

type localLimiter struct {
	limiters sync.Map
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

const (
	cleanupInterval = 5 * time.Minute
	entryTTL        = 10 * time.Minute
)

func newLocalLimiter() *localLimiter {
	l := &localLimiter{
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go l.cleanup()
	return l
}

func (l *localLimiter) stop() {
	l.stopOnce.Do(func() { close(l.quit) })
}

func (l *localLimiter) cleanup() {
	defer close(l.done)

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.quit:
			return
		case <-ticker.C:
			l.sweep(time.Now().Add(-entryTTL).Unix())
		}
	}
}

func (l *localLimiter) sweep(cutoff int64) {
	l.limiters.Range(func(key, value any) bool {
		entry, ok := value.(*limiterEntry)
		if ok && entry.lastAccess.Load() < cutoff {
			l.limiters.Delete(key)
		}
		return true
	})
}

func (l *localLimiter) allow(key string, limit redis_rate.Limit) *redis_rate.Result {
	ratePerSec := float64(limit.Rate) / limit.Period.Seconds()

	entryI, loaded := l.limiters.Load(key)
	if !loaded {
		entryI, _ = l.limiters.LoadOrStore(key, &limiterEntry{
			limiter: rate.NewLimiter(rate.Limit(ratePerSec), limit.Burst),
		})
	}

	//nolint:forcetypeassert // only *limiterEntry is stored
	entry := entryI.(*limiterEntry)
	entry.lastAccess.Store(time.Now().Unix())

	allowed := entry.limiter.Allow()

	remaining := max(int(entry.limiter.Tokens()), 0)

	retryAfter := time.Duration(-1)
	allowedInt := 1
	if !allowed {
		retryAfter = time.Duration(float64(time.Second) / ratePerSec)
		allowedInt = 0
	}

	return &redis_rate.Result{
		Limit:      limit,
		Allowed:    allowedInt,
		Remaining:  remaining,
		RetryAfter: retryAfter,
		ResetAfter: time.Duration(float64(time.Second) / ratePerSec),
	}
}

func PerMinute(rate, burst int) redis_rate.Limit {
	return redis_rate.Limit{
		Rate:   rate,
		Burst:  burst,
		Period: time.Minute,
	}
}
