package config

const (
	EnvPrefix = "ADTOWN"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "ADTOWN_APP_ENV"
	EnvPort     = "ADTOWN_APP_PORT"
	EnvLogLevel = "ADTOWN_LOG_LEVEL"

	EnvDBDSN  = "ADTOWN_DB_DSN"
	EnvDBHost = "ADTOWN_DB_HOST"
	EnvDBUser = "ADTOWN_DB_USER"
	EnvDBName = "ADTOWN_DB_NAME"

	EnvRedisURL = "ADTOWN_REDIS_URL"

	EnvJWTSecret = "ADTOWN_JWT_SECRET"
	EnvJWTIssuer = "ADTOWN_JWT_ISSUER"

	EnvBillingWebhookSecret       = "ADTOWN_BILLING_WEBHOOK_SECRET"
	EnvBillingAvailabilityStart   = "ADTOWN_BILLING_SERVICE_AVAILABILITY_START"
	EnvBillingGracePeriod         = "ADTOWN_BILLING_GRACE_PERIOD"
	EnvBillingEventKinds          = "ADTOWN_BILLING_EVENT_KINDS"
	EnvBillingPlanIDs             = "ADTOWN_BILLING_PLAN_IDS"
	EnvBillingPlanPrices          = "ADTOWN_BILLING_PLAN_PRICES"
	EnvBillingOutboundMaxAttempts = "ADTOWN_BILLING_OUTBOUND_MAX_ATTEMPTS"

	EnvSquareAccessToken = "ADTOWN_SQUARE_ACCESS_TOKEN"
	EnvSquareLocationID  = "ADTOWN_SQUARE_LOCATION_ID"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
