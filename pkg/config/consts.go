package config

const (
	// EnvPrefix is applied by envconfig to struct fields without an
	// explicit envconfig tag. All variables below carry the prefix
	// inline so grepping for a variable name finds the real string.
	EnvPrefix = "BAZAARLY"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "BAZAARLY_DB_DSN"
	EnvDBHost = "BAZAARLY_DB_HOST"
	EnvDBUser = "BAZAARLY_DB_USER"
	EnvDBName = "BAZAARLY_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
