package config

// Redis backs the shared rate limiter and the public listing cache.  When it
// cannot be reached at startup both features degrade: the limiter keeps
// per-process buckets and caching is skipped.

import (
    "context"
    "crypto/tls"
    "os"
    "strconv"
    "strings"
    "time"

    "github.com/redis/go-redis/v9"
    "go.uber.org/zap"
)

// NewRedisClient instantiates a Redis client using environment variables.
// Supported variables are:
//
//	REDIS_ADDR - host:port, overridden by REDIS_HOST and REDIS_PORT together
//	REDIS_PASSWORD - optional password
//	REDIS_DB - database number (default 0)
//	REDIS_TLS - enable TLS when "true" or "1"
//	REDIS_ENABLED - set to "false" to skip Redis entirely
//
// It returns nil when Redis is disabled or the ping fails.
func NewRedisClient(logger *zap.Logger) *redis.Client {
    if !envBool("REDIS_ENABLED", true) {
        return nil
    }
    addr := envStr("REDIS_ADDR", "localhost:6379")
    if host, port := os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT"); host != "" && port != "" {
        addr = host + ":" + port
    }
    dbNum := 0
    if n, err := strconv.Atoi(os.Getenv("REDIS_DB")); err == nil {
        dbNum = n
    }
    var tlsConf *tls.Config
    if v := os.Getenv("REDIS_TLS"); strings.EqualFold(v, "true") || v == "1" {
        tlsConf = &tls.Config{MinVersion: tls.VersionTLS12, ServerName: strings.Split(addr, ":")[0]}
    }
    client := redis.NewClient(&redis.Options{
        Addr:      addr,
        Password:  os.Getenv("REDIS_PASSWORD"),
        DB:        dbNum,
        TLSConfig: tlsConf,
    })
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    if err := client.Ping(ctx).Err(); err != nil {
        if logger != nil {
            logger.Warn("redis unavailable, cache and shared rate limiting disabled", zap.String("addr", addr), zap.Error(err))
        }
        _ = client.Close()
        return nil
    }
    return client
}
