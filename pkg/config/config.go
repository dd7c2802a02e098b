package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App       AppConfig
	Service   ServiceConfig
	DB        DBConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Features  FeatureFlagsConfig
	Billing   BillingConfig
	Square    SquareConfig
	GCP       GCPConfig
	PubSub    PubSubConfig
	Outbox    OutboxConfig
	Cron      CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Billing.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"ADTOWN_APP_ENV" required:"true"`
	Port         string `envconfig:"ADTOWN_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"ADTOWN_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"ADTOWN_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"ADTOWN_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"ADTOWN_DB_DSN"`
	Driver string `envconfig:"ADTOWN_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"ADTOWN_DB_HOST"`
	LegacyPort     int    `envconfig:"ADTOWN_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ADTOWN_DB_USER"`
	LegacyPassword string `envconfig:"ADTOWN_DB_PASSWORD"`
	LegacyName     string `envconfig:"ADTOWN_DB_NAME"`
	LegacySSLMode  string `envconfig:"ADTOWN_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ADTOWN_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ADTOWN_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ADTOWN_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ADTOWN_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ADTOWN_REDIS_URL" required:"true"`
	Address      string        `envconfig:"ADTOWN_REDIS_ADDR"`
	Password     string        `envconfig:"ADTOWN_REDIS_PASSWORD"`
	DB           int           `envconfig:"ADTOWN_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ADTOWN_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ADTOWN_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ADTOWN_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ADTOWN_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ADTOWN_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"ADTOWN_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"ADTOWN_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"ADTOWN_JWT_EXPIRATION_MINUTES" default:"60"`
}

type RateLimitConfig struct {
	ActionWindow time.Duration `envconfig:"ADTOWN_RATE_LIMIT_ACTION_WINDOW" default:"1m"`
	ActionLimit  int           `envconfig:"ADTOWN_RATE_LIMIT_ACTION_LIMIT" default:"10"`
}

type FeatureFlagsConfig struct {
	UseSQLite      bool          `envconfig:"ADTOWN_USE_SQLITE" default:"false"`
	AutoMigrate    bool          `envconfig:"ADTOWN_AUTO_MIGRATE" default:"false"`
	IdempotencyTTL time.Duration `envconfig:"ADTOWN_HTTP_IDEMPOTENCY_TTL" default:"24h"`
}

// BillingConfig holds the static billing policy. Plan identifiers and prices
// are keyed by "<serviceType>.<billingCycle>", e.g. "advertising.monthly".
type BillingConfig struct {
	WebhookSecret            string            `envconfig:"ADTOWN_BILLING_WEBHOOK_SECRET" required:"true"`
	ServiceAvailabilityStart time.Time         `envconfig:"ADTOWN_BILLING_SERVICE_AVAILABILITY_START" required:"true"`
	TrialPeriod              time.Duration     `envconfig:"ADTOWN_BILLING_TRIAL_PERIOD" default:"0s"`
	GracePeriod              time.Duration     `envconfig:"ADTOWN_BILLING_GRACE_PERIOD" default:"168h"`
	EventKinds               []string          `envconfig:"ADTOWN_BILLING_EVENT_KINDS" default:"checkout_completed,invoice_paid,payment_failed,subscription_canceled,subscription_paused,subscription_resumed,subscription_past_due"`
	PlanIDs                  map[string]string `envconfig:"ADTOWN_BILLING_PLAN_IDS"`
	PlanPrices               map[string]string `envconfig:"ADTOWN_BILLING_PLAN_PRICES"`
	Currency                 string            `envconfig:"ADTOWN_BILLING_CURRENCY" default:"JPY"`
	WebhookIdempotencyTTL    time.Duration     `envconfig:"ADTOWN_BILLING_WEBHOOK_IDEMPOTENCY_TTL" default:"1h"`
	OutboundTimeout          time.Duration     `envconfig:"ADTOWN_BILLING_OUTBOUND_TIMEOUT" default:"10s"`
	OutboundMaxAttempts      int               `envconfig:"ADTOWN_BILLING_OUTBOUND_MAX_ATTEMPTS" default:"4"`
	OutboundBackoffBase      time.Duration     `envconfig:"ADTOWN_BILLING_OUTBOUND_BACKOFF_BASE" default:"200ms"`
	OutboundBackoffMax       time.Duration     `envconfig:"ADTOWN_BILLING_OUTBOUND_BACKOFF_MAX" default:"5s"`
	TrackLockTTL             time.Duration     `envconfig:"ADTOWN_BILLING_TRACK_LOCK_TTL" default:"60s"`
}

// PlanKey builds the lookup key used by PlanIDs and PlanPrices.
func PlanKey(serviceType, cycle string) string {
	return strings.ToLower(strings.TrimSpace(serviceType)) + "." + strings.ToLower(strings.TrimSpace(cycle))
}

// PlanID returns the configured platform plan identifier for the pair.
func (b BillingConfig) PlanID(serviceType, cycle string) (string, bool) {
	id, ok := b.PlanIDs[PlanKey(serviceType, cycle)]
	id = strings.TrimSpace(id)
	return id, ok && id != ""
}

func (b BillingConfig) validate() error {
	if b.OutboundMaxAttempts <= 0 {
		return fmt.Errorf("%s must be positive", EnvBillingOutboundMaxAttempts)
	}
	if b.GracePeriod < 0 || b.TrialPeriod < 0 {
		return fmt.Errorf("billing grace and trial periods must not be negative")
	}
	for key := range b.PlanIDs {
		if !strings.Contains(key, ".") {
			return fmt.Errorf("%s: key %q must look like <service>.<cycle>", EnvBillingPlanIDs, key)
		}
	}
	return nil
}

type SquareConfig struct {
	AccessToken string `envconfig:"ADTOWN_SQUARE_ACCESS_TOKEN"`
	Env         string `envconfig:"ADTOWN_SQUARE_ENV" default:"sandbox"`
	LocationID  string `envconfig:"ADTOWN_SQUARE_LOCATION_ID"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type GCPConfig struct {
	ProjectID              string `envconfig:"ADTOWN_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"ADTOWN_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"ADTOWN_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	AlertsTopic string `envconfig:"ADTOWN_PUBSUB_ALERTS_TOPIC" default:"billing-ops-alerts"`
	EventsTopic string `envconfig:"ADTOWN_PUBSUB_EVENTS_TOPIC" default:"billing-track-events"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"ADTOWN_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"ADTOWN_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"ADTOWN_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"ADTOWN_OUTBOX_RETENTION" default:"720h"`
}

type CronConfig struct {
	Interval          time.Duration `envconfig:"ADTOWN_CRON_INTERVAL" default:"1m"`
	LockTTL           time.Duration `envconfig:"ADTOWN_CRON_LOCK_TTL" default:"5m"`
	BatchLimit        int           `envconfig:"ADTOWN_CRON_BATCH_LIMIT" default:"200"`
	EventRecoveryWait time.Duration `envconfig:"ADTOWN_CRON_EVENT_RECOVERY_WAIT" default:"5m"`
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
