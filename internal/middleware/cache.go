package middleware

import (
    "bytes"
    "context"
    "crypto/sha1"
    "encoding/json"
    "fmt"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"

    "github.com/iliyamo/parking-space-reservation/internal/config"
)

// listingRecorder tees the response body so a successful listing can be
// stored after the handler returns.  Bodies over limit are not kept.
type listingRecorder struct {
    http.ResponseWriter
    status   int
    body     bytes.Buffer
    limit    int
    overflow bool
}

func (w *listingRecorder) WriteHeader(code int) {
    w.status = code
    w.ResponseWriter.WriteHeader(code)
}

func (w *listingRecorder) Write(b []byte) (int, error) {
    if !w.overflow {
        if w.limit > 0 && w.body.Len()+len(b) > w.limit {
            w.overflow = true
            w.body.Reset()
        } else {
            w.body.Write(b)
        }
    }
    return w.ResponseWriter.Write(b)
}

// cachedListing is what lands in Redis for one public response.
type cachedListing struct {
    ContentType string `json:"ct"`
    Body        []byte `json:"b"`
}

// listingKey derives the Redis key of a request.  The strategy decides
// which parts of the request distinguish entries; everything after the
// prefix is hashed to keep keys short.
func listingKey(cfg config.CacheConfig, c echo.Context) string {
    r := c.Request()
    var tail string
    switch strings.ToLower(cfg.KeyStrategy) {
    case "route":
        tail = c.Path()
    case "method_route":
        tail = r.Method + " " + c.Path()
    case "method_route_query":
        tail = r.Method + " " + r.URL.Path + "?" + r.URL.RawQuery
    default: // route_query
        tail = r.URL.Path + "?" + r.URL.RawQuery
    }
    return fmt.Sprintf("%s:%x", cfg.Prefix, sha1.Sum([]byte(tail)))
}

// NewRedisCache caches successful anonymous listing responses under
// cfg.Prefix for cfg.TTL.  Authenticated requests bypass the cache since an
// owner's view of a space may differ.  RedisInvalidator drops every entry
// when a counter changes.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    ttl := cfg.TTL
    if ttl <= 0 {
        ttl = 30 * time.Second
    }

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            req := c.Request()
            if !cfg.Methods[strings.ToUpper(req.Method)] || req.Header.Get(echo.HeaderAuthorization) != "" {
                return next(c)
            }
            key := listingKey(cfg, c)

            if raw, err := rdb.Get(req.Context(), key).Bytes(); err == nil {
                var hit cachedListing
                if json.Unmarshal(raw, &hit) == nil {
                    c.Response().Header().Set("X-Cache", "HIT")
                    return c.Blob(http.StatusOK, hit.ContentType, hit.Body)
                }
            }

            rec := &listingRecorder{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: cfg.MaxBodyBytes}
            c.Response().Writer = rec
            c.Response().Header().Set("X-Cache", "MISS")
            if err := next(c); err != nil {
                return err
            }
            if rec.status != http.StatusOK || rec.overflow {
                return nil
            }
            payload, err := json.Marshal(cachedListing{
                ContentType: c.Response().Header().Get(echo.HeaderContentType),
                Body:        rec.body.Bytes(),
            })
            if err == nil {
                // the request context may already be cancelled by now
                _ = rdb.SetEx(context.Background(), key, payload, ttl).Err()
            }
            return nil
        }
    }
}

// RedisInvalidator drops every cached listing under a prefix.  It satisfies
// service.CacheInvalidator.
type RedisInvalidator struct {
    rdb    *redis.Client
    prefix string
}

// NewRedisInvalidator returns nil when rdb is nil.
func NewRedisInvalidator(rdb *redis.Client, prefix string) *RedisInvalidator {
    if rdb == nil {
        return nil
    }
    return &RedisInvalidator{rdb: rdb, prefix: prefix}
}

// Invalidate scans for keys under the prefix and unlinks them in batches.
func (r *RedisInvalidator) Invalidate(ctx context.Context) error {
    var cursor uint64
    for {
        keys, next, err := r.rdb.Scan(ctx, cursor, r.prefix+":*", 200).Result()
        if err != nil {
            return err
        }
        if len(keys) > 0 {
            if err := r.rdb.Unlink(ctx, keys...).Err(); err != nil {
                return err
            }
        }
        if next == 0 {
            return nil
        }
        cursor = next
    }
}
