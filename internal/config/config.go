package config // package config loads application configuration from environment variables

import (
    "fmt"
    "os"
    "strconv"
    "strings"
    "time"
)

// Store drivers accepted in STORE_DRIVER.
const (
    DriverMySQL  = "mysql"
    DriverMemory = "memory"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
    Env                string        // APP_ENV, e.g. "dev" or "prod"
    Port               string        // APP_PORT
    StoreDriver        string        // STORE_DRIVER: mysql (default) or memory
    DBUser             string        // DB_USER
    DBPass             string        // DB_PASS, empty allowed
    DBHost             string        // DB_HOST
    DBPort             string        // DB_PORT
    DBName             string        // DB_NAME
    JWTSecret          string        // JWT_SECRET
    AccessTTLMin       int           // ACCESS_TOKEN_TTL_MIN
    RefreshTTLDays     int           // REFRESH_TOKEN_TTL_DAYS
    BcryptCost         int           // BCRYPT_COST
    PersistenceTimeout time.Duration // PERSISTENCE_TIMEOUT, per store call

    Payment PaymentConfig
    Sweeper SweeperConfig
    Notify  NotifyConfig
    Storage StorageConfig
    Queue   QueueConfig
}

// PaymentConfig configures Stripe.  Prepaid bookings are disabled when
// SecretKey is empty.
type PaymentConfig struct {
    SecretKey     string
    WebhookSecret string
    Currency      string
}

// Enabled reports whether prepaid reservations can be taken.
func (p PaymentConfig) Enabled() bool { return p.SecretKey != "" }

// SweeperConfig drives the background job that completes elapsed
// reservations and expires unpaid ones.
type SweeperConfig struct {
    Schedule   string
    PendingTTL time.Duration
}

// NotifyConfig holds SendGrid and Twilio credentials.  Empty values turn the
// channel off.
type NotifyConfig struct {
    SendGridAPIKey string
    FromEmail      string
    FromName       string
    TwilioSID      string
    TwilioToken    string
    TwilioFrom     string
}

// StorageConfig controls where uploaded space photos are kept.
type StorageConfig struct {
    MediaDir string
    BaseURL  string
    MaxEdge  int
}

// QueueConfig points at RabbitMQ.  An empty URL disables event publishing
// and the consumer.
type QueueConfig struct {
    URL    string
    LogDir string
}

// Load reads configuration values from environment variables.  Database
// settings are only required for the mysql driver.
func Load() (Config, error) {
    var missing []string
    must := func(key string) string {
        v := os.Getenv(key)
        if v == "" {
            missing = append(missing, key)
        }
        return v
    }

    c := Config{
        Env:         envStr("APP_ENV", "dev"),
        Port:        envStr("APP_PORT", "8080"),
        StoreDriver: strings.ToLower(envStr("STORE_DRIVER", DriverMySQL)),
        DBPass:      os.Getenv("DB_PASS"),
        JWTSecret:   must("JWT_SECRET"),
    }
    switch c.StoreDriver {
    case DriverMySQL:
        c.DBUser = must("DB_USER")
        c.DBHost = must("DB_HOST")
        c.DBPort = must("DB_PORT")
        c.DBName = must("DB_NAME")
    case DriverMemory:
    default:
        return Config{}, fmt.Errorf("invalid STORE_DRIVER %q", c.StoreDriver)
    }
    if len(missing) > 0 {
        return Config{}, fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
    }

    var err error
    if c.AccessTTLMin, err = intVar("ACCESS_TOKEN_TTL_MIN", 15); err != nil {
        return Config{}, err
    }
    if c.RefreshTTLDays, err = intVar("REFRESH_TOKEN_TTL_DAYS", 7); err != nil {
        return Config{}, err
    }
    if c.BcryptCost, err = intVar("BCRYPT_COST", 12); err != nil {
        return Config{}, err
    }
    if c.PersistenceTimeout, err = durVar("PERSISTENCE_TIMEOUT", 5*time.Second); err != nil {
        return Config{}, err
    }

    c.Payment = PaymentConfig{
        SecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
        WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
        Currency:      strings.ToLower(envStr("PAYMENT_CURRENCY", "usd")),
    }
    if c.Payment.Enabled() && c.Payment.WebhookSecret == "" {
        return Config{}, fmt.Errorf("STRIPE_WEBHOOK_SECRET is required when STRIPE_SECRET_KEY is set")
    }

    c.Sweeper.Schedule = envStr("SWEEP_SCHEDULE", "@every 1m")
    if c.Sweeper.PendingTTL, err = durVar("PENDING_PAYMENT_TTL", 30*time.Minute); err != nil {
        return Config{}, err
    }

    c.Notify = NotifyConfig{
        SendGridAPIKey: os.Getenv("SENDGRID_API_KEY"),
        FromEmail:      os.Getenv("SENDGRID_FROM_EMAIL"),
        FromName:       envStr("SENDGRID_FROM_NAME", "ParkSpot"),
        TwilioSID:      os.Getenv("TWILIO_ACCOUNT_SID"),
        TwilioToken:    os.Getenv("TWILIO_AUTH_TOKEN"),
        TwilioFrom:     os.Getenv("TWILIO_FROM_NUMBER"),
    }

    c.Storage = StorageConfig{
        MediaDir: envStr("MEDIA_DIR", "media"),
        BaseURL:  envStr("MEDIA_BASE_URL", "/media"),
    }
    if c.Storage.MaxEdge, err = intVar("MEDIA_MAX_EDGE", 1600); err != nil {
        return Config{}, err
    }

    c.Queue = QueueConfig{
        URL:    envStr("RABBITMQ_URL", os.Getenv("AMQP_URL")),
        LogDir: envStr("EVENT_LOG_DIR", "logs"),
    }
    return c, nil
}

func intVar(key string, def int) (int, error) {
    s := os.Getenv(key)
    if s == "" {
        return def, nil
    }
    n, err := strconv.Atoi(s)
    if err != nil {
        return 0, fmt.Errorf("invalid int for %s: %q", key, s)
    }
    return n, nil
}

func durVar(key string, def time.Duration) (time.Duration, error) {
    s := os.Getenv(key)
    if s == "" {
        return def, nil
    }
    d, err := time.ParseDuration(s)
    if err != nil || d <= 0 {
        return 0, fmt.Errorf("invalid duration for %s: %q", key, s)
    }
    return d, nil
}
