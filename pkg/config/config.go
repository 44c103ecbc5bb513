package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Gateway      GatewayConfig
	Cron         CronConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
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
	Env          string `envconfig:"BAZAARLY_APP_ENV" required:"true"`
	Port         string `envconfig:"BAZAARLY_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"BAZAARLY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"BAZAARLY_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"BAZAARLY_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"BAZAARLY_DB_DSN"`
	Driver string `envconfig:"BAZAARLY_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"BAZAARLY_DB_HOST"`
	LegacyPort     int    `envconfig:"BAZAARLY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"BAZAARLY_DB_USER"`
	LegacyPassword string `envconfig:"BAZAARLY_DB_PASSWORD"`
	LegacyName     string `envconfig:"BAZAARLY_DB_NAME"`
	LegacySSLMode  string `envconfig:"BAZAARLY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BAZAARLY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BAZAARLY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BAZAARLY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BAZAARLY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"BAZAARLY_REDIS_URL" required:"true"`
	Address      string        `envconfig:"BAZAARLY_REDIS_ADDR"`
	Password     string        `envconfig:"BAZAARLY_REDIS_PASSWORD"`
	DB           int           `envconfig:"BAZAARLY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BAZAARLY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BAZAARLY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BAZAARLY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BAZAARLY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BAZAARLY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"BAZAARLY_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"BAZAARLY_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"BAZAARLY_JWT_EXPIRATION_MINUTES" default:"60"`
}

// GatewayConfig holds credentials for the external payment gateway
// that posts signed webhook events.
type GatewayConfig struct {
	WebhookSecret string        `envconfig:"BAZAARLY_GATEWAY_WEBHOOK_SECRET" required:"true"`
	EventTTL      time.Duration `envconfig:"BAZAARLY_GATEWAY_EVENT_TTL" default:"720h"`
}

type CronConfig struct {
	TickInterval     time.Duration `envconfig:"BAZAARLY_CRON_TICK_INTERVAL" default:"1m"`
	LockTTL          time.Duration `envconfig:"BAZAARLY_CRON_LOCK_TTL" default:"5m"`
	SubscriptionHour int           `envconfig:"BAZAARLY_CRON_SUBSCRIPTION_HOUR" default:"6"`
	RetentionDays    int           `envconfig:"BAZAARLY_CRON_OUTBOX_RETENTION_DAYS" default:"14"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"BAZAARLY_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"BAZAARLY_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"BAZAARLY_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"BAZAARLY_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"BAZAARLY_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"BAZAARLY_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	BillingTopic             string `envconfig:"BAZAARLY_PUBSUB_BILLING_TOPIC" required:"true"`
	BillingSubscription      string `envconfig:"BAZAARLY_PUBSUB_BILLING_SUBSCRIPTION" required:"true"`
	NotificationTopic        string `envconfig:"BAZAARLY_PUBSUB_NOTIFICATION_TOPIC" default:"bz-notification-events"`
	NotificationSubscription string `envconfig:"BAZAARLY_PUBSUB_NOTIFICATION_SUBSCRIPTION" required:"true"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"BAZAARLY_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"BAZAARLY_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"BAZAARLY_OUTBOX_MAX_ATTEMPTS" default:"10"`
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
