package config

// Redis backs distributed rate limiting, the catalog response cache and
// one-time redemption of intended-destination tokens. When the server is
// unreachable at startup NewRedisClient returns nil and callers degrade:
// caching is skipped, rate limiting falls back to an in-process limiter.

import (
    "context"
    "crypto/tls"
    "time"

    "github.com/redis/go-redis/v9"
    "github.com/spf13/viper"
)

// RedisConfig addresses the Redis server. Host and Port take precedence
// over Addr when both are set.
type RedisConfig struct {
    Addr     string
    Password string
    DB       int
    TLS      bool
}

func loadRedis(v *viper.Viper) RedisConfig {
    v.SetDefault("REDIS_ADDR", "localhost:6379")
    v.SetDefault("REDIS_DB", 0)
    v.SetDefault("REDIS_TLS", false)

    addr := v.GetString("REDIS_ADDR")
    if host, port := v.GetString("REDIS_HOST"), v.GetString("REDIS_PORT"); host != "" && port != "" {
        addr = host + ":" + port
    }
    return RedisConfig{
        Addr:     addr,
        Password: v.GetString("REDIS_PASSWORD"),
        DB:       v.GetInt("REDIS_DB"),
        TLS:      v.GetBool("REDIS_TLS"),
    }
}

// NewRedisClient connects and pings. It returns nil if the server does not
// answer within two seconds.
func NewRedisClient(cfg RedisConfig) *redis.Client {
    var tlsConf *tls.Config
    if cfg.TLS {
        tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
    }
    client := redis.NewClient(&redis.Options{
        Addr:      cfg.Addr,
        Password:  cfg.Password,
        DB:        cfg.DB,
        TLSConfig: tlsConf,
    })
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    if err := client.Ping(ctx).Err(); err != nil {
        _ = client.Close()
        return nil
    }
    return client
}
