package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "MAILFLOW_DB_DSN"
	EnvDBHost = "MAILFLOW_DB_HOST"
	EnvDBUser = "MAILFLOW_DB_USER"
	EnvDBName = "MAILFLOW_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Stripe        StripeConfig
	Billing       BillingConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MAILFLOW_APP_ENV" required:"true"`
	Port         string `envconfig:"MAILFLOW_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MAILFLOW_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MAILFLOW_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"MAILFLOW_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"MAILFLOW_DB_DSN"`
	Driver string `envconfig:"MAILFLOW_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MAILFLOW_DB_HOST"`
	LegacyPort     int    `envconfig:"MAILFLOW_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MAILFLOW_DB_USER"`
	LegacyPassword string `envconfig:"MAILFLOW_DB_PASSWORD"`
	LegacyName     string `envconfig:"MAILFLOW_DB_NAME"`
	LegacySSLMode  string `envconfig:"MAILFLOW_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MAILFLOW_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MAILFLOW_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MAILFLOW_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MAILFLOW_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MAILFLOW_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MAILFLOW_REDIS_ADDR"`
	Password     string        `envconfig:"MAILFLOW_REDIS_PASSWORD"`
	DB           int           `envconfig:"MAILFLOW_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MAILFLOW_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MAILFLOW_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MAILFLOW_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MAILFLOW_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MAILFLOW_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"MAILFLOW_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"MAILFLOW_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"MAILFLOW_JWT_EXPIRATION_MINUTES" required:"true"`
}

type AuthRateLimitConfig struct {
	Window   time.Duration `envconfig:"MAILFLOW_AUTH_RATE_LIMIT_WINDOW" default:"1m"`
	IPLimit  int           `envconfig:"MAILFLOW_AUTH_RATE_LIMIT_IP_LIMIT" default:"60"`
	Disabled bool          `envconfig:"MAILFLOW_AUTH_RATE_LIMIT_DISABLED" default:"false"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"MAILFLOW_AUTO_MIGRATE" default:"false"`
}

type StripeConfig struct {
	APIKey        string `envconfig:"MAILFLOW_STRIPE_API_KEY"`
	WebhookSecret string `envconfig:"MAILFLOW_STRIPE_WEBHOOK_SECRET"`
	Env           string `envconfig:"MAILFLOW_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// BillingConfig carries the price catalog the reconciler classifies against
// and the redirect URLs used when creating checkout sessions.
type BillingConfig struct {
	AdditionalAccountPriceID string `envconfig:"MAILFLOW_BILLING_ADDON_PRICE_ID"`
	CheckoutSuccessURL       string `envconfig:"MAILFLOW_BILLING_CHECKOUT_SUCCESS_URL"`
	CheckoutCancelURL        string `envconfig:"MAILFLOW_BILLING_CHECKOUT_CANCEL_URL"`
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
