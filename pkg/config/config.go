package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

const (
	EnvPrefix = "PAYSETTLE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv    = "PAYSETTLE_APP_ENV"
	EnvPort      = "PAYSETTLE_APP_PORT"
	EnvDBDSN     = "PAYSETTLE_DB_DSN"
	EnvDBHost    = "PAYSETTLE_DB_HOST"
	EnvDBUser    = "PAYSETTLE_DB_USER"
	EnvDBName    = "PAYSETTLE_DB_NAME"
	EnvRedisURL  = "PAYSETTLE_REDIS_URL"
	EnvJWTSecret = "PAYSETTLE_JWT_SECRET"
	EnvJWTIssuer = "PAYSETTLE_JWT_ISSUER"

	EnvPaymentsReceiverKey  = "PAYSETTLE_PAYMENTS_RECEIVER_KEY"
	EnvPaymentsMerchantName = "PAYSETTLE_PAYMENTS_MERCHANT_NAME"
	EnvPaymentsExpiryWindow = "PAYSETTLE_PAYMENTS_EXPIRY_WINDOW"
	EnvSettlementFeeRate    = "PAYSETTLE_SETTLEMENT_PLATFORM_FEE_RATE"
	EnvGatewayDriver        = "PAYSETTLE_GATEWAY_DRIVER"
	EnvWebhookSecret        = "PAYSETTLE_WEBHOOK_SECRET"
	EnvGCPProjectID         = "PAYSETTLE_GCP_PROJECT_ID"
	EnvPubSubPaymentsTopic  = "PAYSETTLE_PUBSUB_PAYMENTS_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

const (
	GatewayDriverMidtrans = "midtrans"
	GatewayDriverSquare   = "square"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	Payments     PaymentsConfig
	Settlement   SettlementConfig
	Gateway      GatewayConfig
	Midtrans     MidtransConfig
	Square       SquareConfig
	Webhook      WebhookConfig
	Watcher      WatcherConfig
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
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Gateway.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Settlement.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PAYSETTLE_APP_ENV" required:"true"`
	Port         string `envconfig:"PAYSETTLE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"PAYSETTLE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PAYSETTLE_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"PAYSETTLE_LOG_FORMAT" default:"json"`
	CORSOrigins  string `envconfig:"PAYSETTLE_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"PAYSETTLE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"PAYSETTLE_DB_DSN"`
	Driver string `envconfig:"PAYSETTLE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PAYSETTLE_DB_HOST"`
	LegacyPort     int    `envconfig:"PAYSETTLE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PAYSETTLE_DB_USER"`
	LegacyPassword string `envconfig:"PAYSETTLE_DB_PASSWORD"`
	LegacyName     string `envconfig:"PAYSETTLE_DB_NAME"`
	LegacySSLMode  string `envconfig:"PAYSETTLE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PAYSETTLE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PAYSETTLE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PAYSETTLE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PAYSETTLE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"PAYSETTLE_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PAYSETTLE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"PAYSETTLE_REDIS_ADDR"`
	Password     string        `envconfig:"PAYSETTLE_REDIS_PASSWORD"`
	DB           int           `envconfig:"PAYSETTLE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PAYSETTLE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PAYSETTLE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PAYSETTLE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PAYSETTLE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PAYSETTLE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig covers verification of access tokens minted by the identity service.
type JWTConfig struct {
	Secret            string `envconfig:"PAYSETTLE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"PAYSETTLE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"PAYSETTLE_JWT_EXPIRATION_MINUTES" default:"60"`
}

type RateLimitConfig struct {
	StatusWindow time.Duration `envconfig:"PAYSETTLE_RATE_LIMIT_STATUS_WINDOW" default:"1m"`
	StatusLimit  int           `envconfig:"PAYSETTLE_RATE_LIMIT_STATUS_LIMIT" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"PAYSETTLE_AUTO_MIGRATE" default:"false"`
}

// PaymentsConfig drives intent creation and the manual payload.
type PaymentsConfig struct {
	ReceiverKey        string        `envconfig:"PAYSETTLE_PAYMENTS_RECEIVER_KEY" required:"true"`
	MerchantName       string        `envconfig:"PAYSETTLE_PAYMENTS_MERCHANT_NAME" default:"PaySettle"`
	MerchantCity       string        `envconfig:"PAYSETTLE_PAYMENTS_MERCHANT_CITY" default:"SAO PAULO"`
	DefaultDescription string        `envconfig:"PAYSETTLE_PAYMENTS_DEFAULT_DESCRIPTION" default:"Pagamento"`
	ExpiryWindow       time.Duration `envconfig:"PAYSETTLE_PAYMENTS_EXPIRY_WINDOW" default:"24h"`
	QRSize             int           `envconfig:"PAYSETTLE_PAYMENTS_QR_SIZE" default:"256"`
}

type SettlementConfig struct {
	PlatformFeeRate string        `envconfig:"PAYSETTLE_SETTLEMENT_PLATFORM_FEE_RATE" default:"0.15"`
	PlanDuration    time.Duration `envconfig:"PAYSETTLE_SETTLEMENT_PLAN_DURATION" default:"720h"`
	DefaultPlan     string        `envconfig:"PAYSETTLE_SETTLEMENT_DEFAULT_PLAN" default:"PRO"`
}

// FeeRate returns the parsed platform fee rate.
func (s SettlementConfig) FeeRate() decimal.Decimal {
	rate, err := decimal.NewFromString(strings.TrimSpace(s.PlatformFeeRate))
	if err != nil {
		return decimal.RequireFromString("0.15")
	}
	return rate
}

func (s SettlementConfig) validate() error {
	rate, err := decimal.NewFromString(strings.TrimSpace(s.PlatformFeeRate))
	if err != nil {
		return fmt.Errorf("invalid platform fee rate %q: %w", s.PlatformFeeRate, err)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("platform fee rate must be in [0, 1), got %s", rate.String())
	}
	if s.PlanDuration <= 0 {
		return fmt.Errorf("plan duration must be positive")
	}
	return nil
}

type GatewayConfig struct {
	Driver  string        `envconfig:"PAYSETTLE_GATEWAY_DRIVER" default:"midtrans"`
	Timeout time.Duration `envconfig:"PAYSETTLE_GATEWAY_TIMEOUT" default:"15s"`
}

func (g GatewayConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(g.Driver)) {
	case GatewayDriverMidtrans, GatewayDriverSquare:
		return nil
	default:
		return fmt.Errorf("unsupported gateway driver %q", g.Driver)
	}
}

// NormalizedDriver returns the lowercase driver name.
func (g GatewayConfig) NormalizedDriver() string {
	return strings.ToLower(strings.TrimSpace(g.Driver))
}

type MidtransConfig struct {
	ServerKey string `envconfig:"PAYSETTLE_MIDTRANS_SERVER_KEY"`
	ClientKey string `envconfig:"PAYSETTLE_MIDTRANS_CLIENT_KEY"`
	Env       string `envconfig:"PAYSETTLE_MIDTRANS_ENV" default:"sandbox"`
}

// IsProduction reports whether Snap should target the production environment.
func (m MidtransConfig) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(m.Env), "production")
}

type SquareConfig struct {
	AccessToken     string `envconfig:"PAYSETTLE_SQUARE_ACCESS_TOKEN"`
	Env             string `envconfig:"PAYSETTLE_SQUARE_ENV" default:"sandbox"`
	LocationID      string `envconfig:"PAYSETTLE_SQUARE_LOCATION_ID"`
	Currency        string `envconfig:"PAYSETTLE_SQUARE_CURRENCY" default:"BRL"`
	WebhookSecret   string `envconfig:"PAYSETTLE_SQUARE_WEBHOOK_SECRET"`
	NotificationURL string `envconfig:"PAYSETTLE_SQUARE_NOTIFICATION_URL"`
}

// Environment returns the configured Square environment.
func (s SquareConfig) Environment() string {
	return s.Env
}

type WebhookConfig struct {
	Secret         string        `envconfig:"PAYSETTLE_WEBHOOK_SECRET" required:"true"`
	IdempotencyTTL time.Duration `envconfig:"PAYSETTLE_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`
	MaxBodyBytes   int64         `envconfig:"PAYSETTLE_WEBHOOK_MAX_BODY_BYTES" default:"1048576"`
}

type WatcherConfig struct {
	PollInterval time.Duration `envconfig:"PAYSETTLE_WATCHER_POLL_INTERVAL" default:"5s"`
	Timeout      time.Duration `envconfig:"PAYSETTLE_WATCHER_TIMEOUT" default:"15m"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"PAYSETTLE_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	PaymentsTopic string `envconfig:"PAYSETTLE_PUBSUB_PAYMENTS_TOPIC" default:"paysettle-payment-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"PAYSETTLE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"PAYSETTLE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"PAYSETTLE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Interval              time.Duration `envconfig:"PAYSETTLE_CRON_INTERVAL" default:"1h"`
	LockTTL               time.Duration `envconfig:"PAYSETTLE_CRON_LOCK_TTL" default:"10m"`
	JobTimeout            time.Duration `envconfig:"PAYSETTLE_CRON_JOB_TIMEOUT" default:"5m"`
	OutboxRetention       time.Duration `envconfig:"PAYSETTLE_CRON_OUTBOX_RETENTION" default:"720h"`
	WebhookEventRetention time.Duration `envconfig:"PAYSETTLE_CRON_WEBHOOK_EVENT_RETENTION" default:"2160h"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
