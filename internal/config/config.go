package config // package config loads application configuration from the environment

import (
    "fmt"
    "strings"

    "github.com/spf13/viper"
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable; .env is loaded into the environment by main
// before Load runs.
type Config struct {
    Env            string // application environment (development, production)
    Port           string // HTTP port to listen on
    AppName        string // shown on receipts
    DBUser         string // database username
    DBPass         string // database password (optional)
    DBHost         string // database host address
    DBPort         string // database port number
    DBName         string // database name
    DBAutoMigrate  bool   // apply the embedded schema on start
    JWTSecret      string // secret used to sign access and intended-destination tokens
    AccessTTLMin   int    // access token time-to-live in minutes
    RefreshTTLDays int    // refresh token time-to-live in days
    BcryptCost     int    // bcrypt cost for password hashing
    AMQPURL        string // RabbitMQ URL; empty disables publishing
    BookingLogPath string // file the consumer appends confirmed bookings to

    SMTP      SMTPConfig
    Redis     RedisConfig
    RateLimit RateLimitConfig
    Cache     CacheConfig
}

// SMTPConfig addresses the mail relay used for OTP and receipt emails.
type SMTPConfig struct {
    Host     string
    Port     string
    Username string
    Password string
    From     string
}

var required = []string{"APP_ENV", "APP_PORT", "DB_USER", "DB_HOST", "DB_PORT", "DB_NAME", "JWT_SECRET"}

// Load reads the configuration. Missing required variables are reported
// together in one error.
func Load() (Config, error) {
    v := viper.New()
    v.AutomaticEnv()
    setDefaults(v)

    var missing []string
    for _, k := range required {
        if strings.TrimSpace(v.GetString(k)) == "" {
            missing = append(missing, k)
        }
    }
    if len(missing) > 0 {
        return Config{}, fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
    }

    cfg := Config{
        Env:            v.GetString("APP_ENV"),
        Port:           v.GetString("APP_PORT"),
        AppName:        v.GetString("APP_NAME"),
        DBUser:         v.GetString("DB_USER"),
        DBPass:         v.GetString("DB_PASS"),
        DBHost:         v.GetString("DB_HOST"),
        DBPort:         v.GetString("DB_PORT"),
        DBName:         v.GetString("DB_NAME"),
        DBAutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
        JWTSecret:      v.GetString("JWT_SECRET"),
        AccessTTLMin:   v.GetInt("ACCESS_TOKEN_TTL_MIN"),
        RefreshTTLDays: v.GetInt("REFRESH_TOKEN_TTL_DAYS"),
        BcryptCost:     v.GetInt("BCRYPT_COST"),
        AMQPURL:        v.GetString("RABBITMQ_URL"),
        BookingLogPath: v.GetString("BOOKING_LOG_PATH"),
        SMTP: SMTPConfig{
            Host:     v.GetString("SMTP_HOST"),
            Port:     v.GetString("SMTP_PORT"),
            Username: v.GetString("SMTP_USER"),
            Password: v.GetString("SMTP_PASSWORD"),
            From:     v.GetString("SMTP_FROM"),
        },
        Redis:     loadRedis(v),
        RateLimit: loadRateLimit(v),
        Cache:     loadCache(v),
    }
    if cfg.AccessTTLMin <= 0 {
        return Config{}, fmt.Errorf("invalid ACCESS_TOKEN_TTL_MIN: %d", cfg.AccessTTLMin)
    }
    if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
        return Config{}, fmt.Errorf("invalid BCRYPT_COST: %d", cfg.BcryptCost)
    }
    return cfg, nil
}

// Development reports whether debug affordances such as echoing OTP codes
// are enabled.
func (c Config) Development() bool {
    switch strings.ToLower(c.Env) {
    case "dev", "development", "local":
        return true
    }
    return false
}

func setDefaults(v *viper.Viper) {
    v.SetDefault("APP_NAME", "Uniride")
    v.SetDefault("DB_AUTO_MIGRATE", false)
    v.SetDefault("ACCESS_TOKEN_TTL_MIN", 15)
    v.SetDefault("REFRESH_TOKEN_TTL_DAYS", 7)
    v.SetDefault("BCRYPT_COST", 12)
    v.SetDefault("RABBITMQ_URL", "")
    v.SetDefault("BOOKING_LOG_PATH", "logs/booking.log")
    v.SetDefault("SMTP_PORT", "587")
    v.SetDefault("SMTP_FROM", "no-reply@uniride.local")
}
