// pkg/config/database.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/snowflakedb/gosnowflake"
)

// PoolConfig holds database/sql connection pool settings
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// SnowflakeConfig holds the warehouse source connection parameters
type SnowflakeConfig struct {
	PoolConfig

	User          string
	Password      string
	Account       string
	Warehouse     string
	Database      string // Default: MEDTRACK
	Role          string
	Authenticator gosnowflake.AuthType
	Schemas       []string // Schemas the warehouse source is expected to read from

	QueryTimeout time.Duration
}

// PostgresConfig holds the canonical store connection parameters when the
// store driver is postgres
type PostgresConfig struct {
	PoolConfig

	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	StatementTimeout time.Duration
}

var authenticators = map[string]gosnowflake.AuthType{
	"snowflake":             gosnowflake.AuthTypeSnowflake,
	"oauth":                 gosnowflake.AuthTypeOAuth,
	"externalbrowser":       gosnowflake.AuthTypeExternalBrowser,
	"username_password_mfa": gosnowflake.AuthTypeUsernamePasswordMFA,
	"jwt":                   gosnowflake.AuthTypeJwt,
	"token":                 gosnowflake.AuthTypeTokenAccessor,
	"okta":                  gosnowflake.AuthTypeOkta,
}

// requireEnv returns the values of keys, failing with every missing key at once
func requireEnv(keys ...string) (map[string]string, error) {
	values := make(map[string]string, len(keys))
	var missing []string
	for _, k := range keys {
		v := os.Getenv(k)
		if v == "" {
			missing = append(missing, k)
			continue
		}
		values[k] = v
	}
	if len(missing) > 0 {
		return nil, errors.WithHint(
			errors.Newf("missing required environment variables: %s", strings.Join(missing, ", ")),
			"set them in the environment or in a .env file")
	}
	return values, nil
}

// loadPool reads PREFIX_MAX_OPEN_CONNS and friends, falling back to def
func loadPool(prefix string, def PoolConfig) PoolConfig {
	seconds := func(key string, d time.Duration) time.Duration {
		return time.Duration(getEnvAsInt(prefix+key, int(d.Seconds()))) * time.Second
	}
	return PoolConfig{
		MaxOpenConns:    getEnvAsInt(prefix+"MAX_OPEN_CONNS", def.MaxOpenConns),
		MaxIdleConns:    getEnvAsInt(prefix+"MAX_IDLE_CONNS", def.MaxIdleConns),
		ConnMaxLifetime: seconds("CONN_MAX_LIFETIME_SECONDS", def.ConnMaxLifetime),
		ConnMaxIdleTime: seconds("CONN_MAX_IDLE_TIME_SECONDS", def.ConnMaxIdleTime),
	}
}

// LoadSnowflakeConfig loads the warehouse configuration from environment variables
func LoadSnowflakeConfig() (*SnowflakeConfig, error) {
	env, err := requireEnv("SNOWFLAKE_USER", "SNOWFLAKE_PASSWORD", "SNOWFLAKE_ACCOUNT", "SNOWFLAKE_WAREHOUSE")
	if err != nil {
		return nil, err
	}

	auth := strings.ToLower(getEnv("SNOWFLAKE_AUTHENTICATOR", "snowflake"))
	authenticator, ok := authenticators[auth]
	if !ok {
		return nil, errors.Newf("unsupported SNOWFLAKE_AUTHENTICATOR %q", auth)
	}

	return &SnowflakeConfig{
		PoolConfig: loadPool("SNOWFLAKE_", PoolConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 10 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		}),
		User:          env["SNOWFLAKE_USER"],
		Password:      env["SNOWFLAKE_PASSWORD"],
		Account:       env["SNOWFLAKE_ACCOUNT"],
		Warehouse:     env["SNOWFLAKE_WAREHOUSE"],
		Database:      getEnv("SNOWFLAKE_DATABASE", "MEDTRACK"),
		Role:          getEnv("SNOWFLAKE_ROLE", ""),
		Authenticator: authenticator,
		Schemas:       getEnvAsStringSlice("SNOWFLAKE_SCHEMAS", []string{"PUBLIC"}),
		QueryTimeout:  time.Duration(getEnvAsInt("SNOWFLAKE_QUERY_TIMEOUT_SECONDS", 300)) * time.Second,
	}, nil
}

// LoadPostgresConfig loads the store configuration from environment variables
func LoadPostgresConfig() (*PostgresConfig, error) {
	env, err := requireEnv("POSTGRES_USER", "POSTGRES_PASSWORD")
	if err != nil {
		return nil, err
	}

	return &PostgresConfig{
		PoolConfig: loadPool("POSTGRES_", PoolConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    10,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 10 * time.Minute,
		}),
		Host:             getEnv("POSTGRES_HOST", "localhost"),
		Port:             getEnvAsInt("POSTGRES_PORT", 5432),
		User:             env["POSTGRES_USER"],
		Password:         env["POSTGRES_PASSWORD"],
		Database:         getEnv("POSTGRES_DB", "medtrack"),
		SSLMode:          getEnv("POSTGRES_SSLMODE", "disable"),
		StatementTimeout: time.Duration(getEnvAsInt("POSTGRES_STATEMENT_TIMEOUT_SECONDS", 300)) * time.Second,
	}, nil
}

// DSN builds the gosnowflake DSN. The query timeout is applied as a session
// parameter so it holds on every pooled connection.
func (c *SnowflakeConfig) DSN() (string, error) {
	sc := &gosnowflake.Config{
		Account:       c.Account,
		User:          c.User,
		Password:      c.Password,
		Database:      c.Database,
		Warehouse:     c.Warehouse,
		Role:          c.Role,
		Authenticator: c.Authenticator,
	}
	if c.QueryTimeout > 0 {
		timeout := strconv.Itoa(int(c.QueryTimeout.Seconds()))
		sc.Params = map[string]*string{"STATEMENT_TIMEOUT_IN_SECONDS": &timeout}
	}
	dsn, err := gosnowflake.DSN(sc)
	if err != nil {
		return "", errors.Wrap(err, "failed to build Snowflake DSN")
	}
	return dsn, nil
}

// ConnectionString returns a key/value PostgreSQL connection string. The
// statement timeout is passed as a runtime parameter of every connection.
func (c *PostgresConfig) ConnectionString() string {
	parts := []string{
		"host=" + quoteConnValue(c.Host),
		fmt.Sprintf("port=%d", c.Port),
		"user=" + quoteConnValue(c.User),
		"password=" + quoteConnValue(c.Password),
		"dbname=" + quoteConnValue(c.Database),
		"sslmode=" + quoteConnValue(c.SSLMode),
	}
	if c.StatementTimeout > 0 {
		parts = append(parts, fmt.Sprintf("statement_timeout=%d", c.StatementTimeout.Milliseconds()))
	}
	return strings.Join(parts, " ")
}

// quoteConnValue quotes a libpq key/value setting when it is empty or
// contains spaces, quotes or backslashes
func quoteConnValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

func getEnvAsStringSlice(key string, defaultValue []string) []string {
	var result []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.Trim(strings.TrimSpace(v), `"`); v != "" {
			result = append(result, v)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
