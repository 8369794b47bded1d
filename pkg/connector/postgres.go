// pkg/connector/postgres.go
package connector

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	_ "github.com/jackc/pgx/v4/stdlib"
	"go.uber.org/zap"

	"github.com/medtrack/data-ingress/pkg/config"
	"github.com/medtrack/data-ingress/pkg/converter"
)

// PostgresConnector implements the DatabaseConnector interface for PostgreSQL
type PostgresConnector struct {
	db     *sql.DB
	logger *zap.Logger
	cfg    *config.PostgresConfig
}

// NewPostgresConnector creates and initializes a new PostgreSQL connector
func NewPostgresConnector(ctx context.Context, cfg *config.PostgresConfig) (*PostgresConnector, error) {
	logger := zap.L().Named("postgres-connector")

	logger.Info("Connecting to PostgreSQL",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.Database),
		zap.String("user", cfg.User))

	db, err := sql.Open("pgx", cfg.ConnectionString())
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize PostgreSQL connection")
	}

	ApplyPool(db, cfg.PoolConfig)

	if err := PingWithTimeout(ctx, db, 5*time.Second); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to connect to PostgreSQL")
	}

	connector := &PostgresConnector{
		db:     db,
		logger: logger,
		cfg:    cfg,
	}

	LogConnectionStats(logger, cfg.Database, db)
	return connector, nil
}

// DB returns the underlying database connection
func (c *PostgresConnector) DB() *sql.DB {
	return c.db
}

// DriverName returns the database/sql driver name
func (c *PostgresConnector) DriverName() string {
	return "pgx"
}

// Dialect returns the postgres dialect
func (c *PostgresConnector) Dialect() converter.Dialect {
	return converter.DialectPostgres
}

// Validate verifies the connection and that the store may create its
// canonical tables in the current schema
func (c *PostgresConnector) Validate(ctx context.Context) error {
	var (
		version, schema string
		canCreate       bool
	)
	err := c.db.QueryRowContext(ctx,
		"SELECT version(), current_schema(), has_schema_privilege(current_schema(), 'CREATE')").
		Scan(&version, &schema, &canCreate)
	if err != nil {
		return errors.Wrap(err, "failed to query PostgreSQL version")
	}
	if !canCreate {
		return errors.Newf("user %s cannot create tables in schema %s", c.cfg.User, schema)
	}

	c.logger.Info("PostgreSQL connection validated",
		zap.String("version", version),
		zap.String("database", c.cfg.Database),
		zap.String("schema", schema))
	return nil
}

// Close closes the database connection
func (c *PostgresConnector) Close() error {
	c.logger.Info("Closing PostgreSQL connection")
	LogConnectionStats(c.logger, c.cfg.Database, c.db)
	return c.db.Close()
}

