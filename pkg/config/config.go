package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Checkout     CheckoutConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = DriverSQLite
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Checkout.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"FARMLINK_APP_ENV" required:"true"`
	Port         string   `envconfig:"FARMLINK_APP_PORT" default:"8080"`
	LogLevel     string   `envconfig:"FARMLINK_LOG_LEVEL" default:"info"`
	LogFormat    string   `envconfig:"FARMLINK_LOG_FORMAT" default:"json"`
	LogWarnStack bool     `envconfig:"FARMLINK_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"FARMLINK_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"FARMLINK_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"FARMLINK_DB_DSN"`
	Driver string `envconfig:"FARMLINK_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"FARMLINK_DB_HOST"`
	Port     int    `envconfig:"FARMLINK_DB_PORT" default:"5432"`
	User     string `envconfig:"FARMLINK_DB_USER"`
	Password string `envconfig:"FARMLINK_DB_PASSWORD"`
	Name     string `envconfig:"FARMLINK_DB_NAME"`
	SSLMode  string `envconfig:"FARMLINK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FARMLINK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FARMLINK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FARMLINK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FARMLINK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	// SlowQuery logs statements slower than this at warn; zero disables it.
	SlowQuery time.Duration `envconfig:"FARMLINK_DB_SLOW_QUERY" default:"500ms"`
	// TxAttempts bounds retries of transactions aborted by serialization
	// failures or deadlocks.
	TxAttempts int `envconfig:"FARMLINK_DB_TX_ATTEMPTS" default:"3"`
}

// IsSQLite reports whether the connection targets the embedded sqlite driver.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(db.Driver, DriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"FARMLINK_REDIS_URL"`
	Address      string        `envconfig:"FARMLINK_REDIS_ADDR"`
	Password     string        `envconfig:"FARMLINK_REDIS_PASSWORD"`
	DB           int           `envconfig:"FARMLINK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FARMLINK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FARMLINK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FARMLINK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FARMLINK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FARMLINK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"FARMLINK_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"FARMLINK_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"FARMLINK_JWT_EXPIRATION_MINUTES" default:"60"`
	LeewaySeconds     int    `envconfig:"FARMLINK_JWT_LEEWAY_SECONDS" default:"30"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"FARMLINK_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"FARMLINK_AUTO_MIGRATE" default:"false"`
}

// CheckoutConfig holds the shipping policy and the abuse controls for order placement.
type CheckoutConfig struct {
	FreeShippingThreshold string        `envconfig:"FARMLINK_CHECKOUT_FREE_SHIPPING_THRESHOLD" default:"100.00"`
	FlatShippingFee       string        `envconfig:"FARMLINK_CHECKOUT_FLAT_SHIPPING_FEE" default:"15.00"`
	RateLimitWindow       time.Duration `envconfig:"FARMLINK_CHECKOUT_RATE_LIMIT_WINDOW" default:"1m"`
	RateLimitPerUser      int           `envconfig:"FARMLINK_CHECKOUT_RATE_LIMIT_PER_USER" default:"10"`
	IdempotencyTTL        time.Duration `envconfig:"FARMLINK_CHECKOUT_IDEMPOTENCY_TTL" default:"24h"`
}

// Threshold returns the subtotal above which shipping is free.
func (c CheckoutConfig) Threshold() decimal.Decimal {
	return decimal.RequireFromString(c.FreeShippingThreshold)
}

// FlatFee returns the shipping fee charged at or below the threshold.
func (c CheckoutConfig) FlatFee() decimal.Decimal {
	return decimal.RequireFromString(c.FlatShippingFee)
}

func (c CheckoutConfig) validate() error {
	threshold, err := decimal.NewFromString(c.FreeShippingThreshold)
	if err != nil {
		return fmt.Errorf("%s: %w", EnvCheckoutThreshold, err)
	}
	fee, err := decimal.NewFromString(c.FlatShippingFee)
	if err != nil {
		return fmt.Errorf("%s: %w", EnvCheckoutFlatFee, err)
	}
	if threshold.IsNegative() || fee.IsNegative() {
		return fmt.Errorf("shipping threshold and fee must not be negative")
	}
	return nil
}

type GCPConfig struct {
	ProjectID              string `envconfig:"FARMLINK_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"FARMLINK_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"FARMLINK_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic string `envconfig:"FARMLINK_PUBSUB_ORDERS_TOPIC" default:"farmlink-order-events"`
	// EmulatorHost points the client at a local emulator without credentials.
	EmulatorHost string `envconfig:"FARMLINK_PUBSUB_EMULATOR_HOST"`
	CreateTopics bool   `envconfig:"FARMLINK_PUBSUB_CREATE_TOPICS" default:"false"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"FARMLINK_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"FARMLINK_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"FARMLINK_OUTBOX_MAX_ATTEMPTS" default:"10"`
	DeliveryTTL    time.Duration `envconfig:"FARMLINK_OUTBOX_DELIVERY_TTL" default:"72h"`
	MetricsAddr    string        `envconfig:"FARMLINK_OUTBOX_METRICS_ADDR" default:":9091"`
}

type CronConfig struct {
	Interval              time.Duration `envconfig:"FARMLINK_CRON_INTERVAL" default:"24h"`
	NotificationRetention time.Duration `envconfig:"FARMLINK_CRON_NOTIFICATION_RETENTION" default:"720h"`
	OutboxRetention       time.Duration `envconfig:"FARMLINK_CRON_OUTBOX_RETENTION" default:"168h"`
	MetricsAddr           string        `envconfig:"FARMLINK_CRON_METRICS_ADDR" default:":9092"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		return fmt.Errorf("%s is required for the sqlite driver", EnvDBDSN)
	}

	missing := []string{}
	parts := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range dsnPartEnvVars {
		if parts[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
