package middleware

import (
    "fmt"
    "math"
    "net/http"
    "strconv"
    "strings"
    "sync"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
    "go.uber.org/zap"
    "golang.org/x/time/rate"

    "github.com/iliyamo/vehicle-rental/internal/config"
    "github.com/iliyamo/vehicle-rental/internal/logger"
)

var limiterScript = redis.NewScript(`
    local key = KEYS[1]
    local now_ms = tonumber(ARGV[1])
    local capacity = tonumber(ARGV[2])
    local refill_tokens = tonumber(ARGV[3])
    local interval_ms = tonumber(ARGV[4])
    local ttl_seconds = tonumber(ARGV[5])

    local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
    local tokens = tonumber(state[1])
    local last_refill = tonumber(state[2])

    if tokens == nil or last_refill == nil then
        tokens = capacity
        last_refill = now_ms
    end

    if interval_ms > 0 and refill_tokens > 0 then
        local elapsed = math.max(0, now_ms - last_refill)
        local intervals = math.floor(elapsed / interval_ms)
        if intervals > 0 then
            tokens = math.min(capacity, tokens + (intervals * refill_tokens))
            last_refill = last_refill + (intervals * interval_ms)
        end
    end

    local allowed = 0
    local retry_after_ms = 0
    if tokens > 0 then
        allowed = 1
        tokens = tokens - 1
    else
        local until_next = interval_ms - (now_ms - last_refill)
        if until_next < 0 then until_next = 0 end
        retry_after_ms = until_next
    end

    redis.call('HMSET', key, 'tokens', tokens, 'last_refill_ms', last_refill, 'capacity', capacity)
    redis.call('EXPIRE', key, ttl_seconds)

    return { allowed, tokens, retry_after_ms }
`)

// NewTokenBucket limits requests per key with a token bucket kept in Redis
// so every instance shares one bucket. Without Redis each instance keeps
// its own buckets in memory.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
    if !cfg.Enabled {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    var local *localBuckets
    if rdb == nil {
        local = newLocalBuckets(cfg)
    }

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            key := buildRateKey(cfg, c)

            var (
                allowed   bool
                remaining int64
                retryMs   int64
            )
            if local != nil {
                allowed, remaining, retryMs = local.take(key)
            } else {
                var ok bool
                allowed, remaining, retryMs, ok = takeRedis(c, cfg, rdb, key)
                if !ok {
                    return next(c)
                }
            }

            c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
            c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

            if !allowed {
                secs := int(math.Ceil(float64(retryMs) / 1000.0))
                if secs < 1 { secs = 1 }
                c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
                if cfg.Debug {
                    logger.FromContext(c.Request().Context()).Info("rate limited",
                        zap.String("key", key), zap.Int64("retry_ms", retryMs))
                }
                return c.JSON(http.StatusTooManyRequests, map[string]any{
                    "success":     false,
                    "error":       "rate_limited",
                    "message":     "rate limit exceeded",
                    "retry_after": secs,
                })
            }

            if cfg.Debug {
                c.Response().Header().Set("X-RateLimit-Key", key)
            }
            return next(c)
        }
    }
}

// takeRedis runs the bucket script. ok is false when Redis could not answer,
// in which case the request is let through.
func takeRedis(c echo.Context, cfg config.RateLimitConfig, rdb *redis.Client, key string) (allowed bool, remaining, retryMs int64, ok bool) {
    args := []interface{}{
        time.Now().UnixMilli(),
        cfg.Capacity,
        cfg.RefillTokens,
        cfg.RefillInterval.Milliseconds(),
        int64(cfg.TTL / time.Second),
    }
    ctx := c.Request().Context()
    vals, err := limiterScript.Run(ctx, rdb, []string{key}, args...).Result()
    if err != nil {
        logger.FromContext(ctx).Warn("rate limit script failed", zap.String("key", key), zap.Error(err))
        return false, 0, 0, false
    }
    arr, isArr := vals.([]interface{})
    if !isArr || len(arr) != 3 {
        logger.FromContext(ctx).Warn("unexpected rate limit result", zap.String("key", key), zap.Any("result", vals))
        return false, 0, 0, false
    }
    if i, isInt := arr[0].(int64); isInt { allowed = i == 1 } else { allowed = fmt.Sprint(arr[0]) == "1" }
    return allowed, asInt64(arr[1]), asInt64(arr[2]), true
}

// localBuckets is the in-process fallback used when Redis is unavailable.
type localBuckets struct {
    mu       sync.Mutex
    limiters map[string]*rate.Limiter
    limit    rate.Limit
    burst    int
    interval time.Duration
    tokens   int
}

func newLocalBuckets(cfg config.RateLimitConfig) *localBuckets {
    return &localBuckets{
        limiters: make(map[string]*rate.Limiter),
        limit:    rate.Limit(float64(cfg.RefillTokens) / cfg.RefillInterval.Seconds()),
        burst:    cfg.Capacity,
        interval: cfg.RefillInterval,
        tokens:   cfg.RefillTokens,
    }
}

func (b *localBuckets) take(key string) (bool, int64, int64) {
    b.mu.Lock()
    l, ok := b.limiters[key]
    if !ok {
        l = rate.NewLimiter(b.limit, b.burst)
        b.limiters[key] = l
    }
    b.mu.Unlock()

    now := time.Now()
    r := l.ReserveN(now, 1)
    if delay := r.DelayFrom(now); delay > 0 {
        r.CancelAt(now)
        return false, 0, delay.Milliseconds()
    }
    return true, int64(l.TokensAt(now)), 0
}

func asInt64(v interface{}) int64 {
    switch t := v.(type) {
    case int64: return t
    case int32: return int64(t)
    case int: return int64(t)
    case float64: return int64(t)
    case float32: return int64(t)
    case string:
        if n, err := strconv.ParseInt(t, 10, 64); err == nil { return n }
    }
    return 0
}

func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
    parts := []string{cfg.Prefix}
    ip := c.RealIP()
    if ip == "" { ip = "unknown" }
    uid := rateIdentity(c)
    route := c.Request().Method + " " + c.Path()

    switch strings.ToLower(cfg.KeyStrategy) {
    case "ip":
        parts = append(parts, "ip", ip)
    case "user":
        parts = append(parts, "user", uid)
    case "route":
        parts = append(parts, "route", route)
    case "ip_user":
        parts = append(parts, "ip", ip, "user", uid)
    case "ip_route":
        parts = append(parts, "ip", ip, "route", route)
    case "user_route":
        parts = append(parts, "user", uid, "route", route)
    default:
        parts = append(parts, "ip", ip, "user", uid, "route", route)
    }
    return strings.Join(parts, ":")
}
