package config_test

import (
    "testing"
    "time"

    "github.com/alicebob/miniredis/v2"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/vehicle-rental/internal/config"
)

func setRequired(t *testing.T) {
    t.Helper()
    t.Setenv("APP_ENV", "development")
    t.Setenv("APP_PORT", "8080")
    t.Setenv("DB_USER", "rental")
    t.Setenv("DB_HOST", "127.0.0.1")
    t.Setenv("DB_PORT", "3306")
    t.Setenv("DB_NAME", "rental")
    t.Setenv("JWT_SECRET", "s3cret")
}

func TestLoadDefaults(t *testing.T) {
    setRequired(t)
    cfg, err := config.Load()
    require.NoError(t, err)
    require.True(t, cfg.Development())
    require.Equal(t, 15, cfg.AccessTTLMin)
    require.Equal(t, 12, cfg.BcryptCost)
    require.Equal(t, "logs/booking.log", cfg.BookingLogPath)
    require.Equal(t, 60, cfg.RateLimit.Capacity)
    require.Equal(t, time.Second, cfg.RateLimit.RefillInterval)
    require.True(t, cfg.Cache.Methods["GET"])
    require.Equal(t, 30*time.Second, cfg.Cache.TTL)
    require.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestLoadOverrides(t *testing.T) {
    setRequired(t)
    t.Setenv("APP_ENV", "production")
    t.Setenv("RATE_LIMIT_BURST", "5")
    t.Setenv("RATE_LIMIT_REFILL_EVERY", "2s")
    t.Setenv("CACHE_METHODS", "get, head")
    t.Setenv("REDIS_HOST", "cache")
    t.Setenv("REDIS_PORT", "6380")
    t.Setenv("DB_AUTO_MIGRATE", "true")

    cfg, err := config.Load()
    require.NoError(t, err)
    require.False(t, cfg.Development())
    require.True(t, cfg.DBAutoMigrate)
    require.Equal(t, 5, cfg.RateLimit.Capacity)
    require.Equal(t, 2*time.Second, cfg.RateLimit.RefillInterval)
    require.Equal(t, 10*time.Minute, cfg.RateLimit.TTL)
    require.Equal(t, map[string]bool{"GET": true, "HEAD": true}, cfg.Cache.Methods)
    require.Equal(t, "cache:6380", cfg.Redis.Addr)
}

func TestLoadReportsMissingKeys(t *testing.T) {
    setRequired(t)
    t.Setenv("JWT_SECRET", "")
    t.Setenv("DB_NAME", "")
    _, err := config.Load()
    require.ErrorContains(t, err, "DB_NAME, JWT_SECRET")
}

func TestNewRedisClient(t *testing.T) {
    mr := miniredis.RunT(t)
    rdb := config.NewRedisClient(config.RedisConfig{Addr: mr.Addr()})
    require.NotNil(t, rdb)
    _ = rdb.Close()

    addr := mr.Addr()
    mr.Close()
    require.Nil(t, config.NewRedisClient(config.RedisConfig{Addr: addr}))
}
