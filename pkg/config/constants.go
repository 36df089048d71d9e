package config

const (
	EnvPrefix = "FARMLINK"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const (
	EnvAppEnv            = "FARMLINK_APP_ENV"
	EnvPort              = "FARMLINK_APP_PORT"
	EnvDBDSN             = "FARMLINK_DB_DSN"
	EnvDBDriver          = "FARMLINK_DB_DRIVER"
	EnvDBHost            = "FARMLINK_DB_HOST"
	EnvDBUser            = "FARMLINK_DB_USER"
	EnvDBName            = "FARMLINK_DB_NAME"
	EnvDBPassword        = "FARMLINK_DB_PASSWORD"
	EnvRedisURL          = "FARMLINK_REDIS_URL"
	EnvJWTSecret         = "FARMLINK_JWT_SECRET"
	EnvJWTIssuer         = "FARMLINK_JWT_ISSUER"
	EnvUseSQLite         = "FARMLINK_USE_SQLITE"
	EnvCheckoutThreshold = "FARMLINK_CHECKOUT_FREE_SHIPPING_THRESHOLD"
	EnvCheckoutFlatFee   = "FARMLINK_CHECKOUT_FLAT_SHIPPING_FEE"
	EnvGCPProjectID      = "FARMLINK_GCP_PROJECT_ID"
	EnvPubSubOrdersTopic = "FARMLINK_PUBSUB_ORDERS_TOPIC"
)

var dsnPartEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
