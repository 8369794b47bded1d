package config

import (
	"testing"
	"time"

	"github.com/snowflakedb/gosnowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSnowflakeConfigReportsAllMissing(t *testing.T) {
	t.Setenv("SNOWFLAKE_USER", "etl")
	t.Setenv("SNOWFLAKE_PASSWORD", "")
	t.Setenv("SNOWFLAKE_ACCOUNT", "")
	t.Setenv("SNOWFLAKE_WAREHOUSE", "")

	_, err := LoadSnowflakeConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SNOWFLAKE_PASSWORD, SNOWFLAKE_ACCOUNT, SNOWFLAKE_WAREHOUSE")
}

func TestLoadSnowflakeConfig(t *testing.T) {
	t.Setenv("SNOWFLAKE_USER", "etl")
	t.Setenv("SNOWFLAKE_PASSWORD", "secret")
	t.Setenv("SNOWFLAKE_ACCOUNT", "acme-xy123")
	t.Setenv("SNOWFLAKE_WAREHOUSE", "COMPUTE_WH")
	t.Setenv("SNOWFLAKE_AUTHENTICATOR", "")
	t.Setenv("SNOWFLAKE_SCHEMAS", `"RAW", STAGING ,`)
	t.Setenv("SNOWFLAKE_MAX_OPEN_CONNS", "3")
	t.Setenv("SNOWFLAKE_QUERY_TIMEOUT_SECONDS", "60")

	cfg, err := LoadSnowflakeConfig()
	require.NoError(t, err)
	assert.Equal(t, "MEDTRACK", cfg.Database)
	assert.Equal(t, gosnowflake.AuthTypeSnowflake, cfg.Authenticator)
	assert.Equal(t, []string{"RAW", "STAGING"}, cfg.Schemas)
	assert.Equal(t, 3, cfg.MaxOpenConns)
	assert.Equal(t, 5, cfg.MaxIdleConns)
	assert.Equal(t, 10*time.Minute, cfg.ConnMaxLifetime)
	assert.Equal(t, time.Minute, cfg.QueryTimeout)

	dsn, err := cfg.DSN()
	require.NoError(t, err)
	assert.Contains(t, dsn, "acme-xy123")
	assert.Contains(t, dsn, "warehouse=COMPUTE_WH")
	assert.Contains(t, dsn, "STATEMENT_TIMEOUT_IN_SECONDS=60")
}

func TestLoadSnowflakeConfigRejectsUnknownAuthenticator(t *testing.T) {
	t.Setenv("SNOWFLAKE_USER", "etl")
	t.Setenv("SNOWFLAKE_PASSWORD", "secret")
	t.Setenv("SNOWFLAKE_ACCOUNT", "acme")
	t.Setenv("SNOWFLAKE_WAREHOUSE", "WH")
	t.Setenv("SNOWFLAKE_AUTHENTICATOR", "kerberos")

	_, err := LoadSnowflakeConfig()
	assert.ErrorContains(t, err, "kerberos")
}

func TestPostgresConnectionString(t *testing.T) {
	t.Setenv("POSTGRES_USER", "medtrack")
	t.Setenv("POSTGRES_PASSWORD", "it's a secret")
	t.Setenv("POSTGRES_HOST", "")
	t.Setenv("POSTGRES_STATEMENT_TIMEOUT_SECONDS", "30")

	cfg, err := LoadPostgresConfig()
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.MaxOpenConns)
	assert.Equal(t,
		`host=localhost port=5432 user=medtrack password='it\'s a secret' dbname=medtrack sslmode=disable statement_timeout=30000`,
		cfg.ConnectionString())
}
