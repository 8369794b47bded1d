// pkg/connector/snowflake.go
package connector

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	_ "github.com/snowflakedb/gosnowflake"
	"go.uber.org/zap"

	"github.com/medtrack/data-ingress/pkg/config"
	"github.com/medtrack/data-ingress/pkg/converter"
	"github.com/medtrack/data-ingress/pkg/model"
)

var warehouseTableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*(\.[A-Za-z_][A-Za-z0-9_$]*){0,2}$`)

// SnowflakeConnector implements the DatabaseConnector interface for Snowflake
type SnowflakeConnector struct {
	db     *sql.DB
	logger *zap.Logger
	cfg    *config.SnowflakeConfig
	conv   *converter.TypeConverter
}

// NewSnowflakeConnector creates a new Snowflake connection
func NewSnowflakeConnector(ctx context.Context, cfg *config.SnowflakeConfig) (*SnowflakeConnector, error) {
	logger := zap.L().Named("snowflake-connector")

	logger.Info("Connecting to Snowflake",
		zap.String("account", cfg.Account),
		zap.String("user", cfg.User),
		zap.String("database", cfg.Database),
		zap.String("warehouse", cfg.Warehouse),
		zap.String("role", cfg.Role))

	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize Snowflake connection")
	}
	ApplyPool(db, cfg.PoolConfig)

	// Verify connection
	if err := PingWithTimeout(ctx, db, 10*time.Second); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to connect to Snowflake")
	}

	connector := &SnowflakeConnector{
		db:     db,
		logger: logger,
		cfg:    cfg,
		conv:   converter.NewTypeConverter(logger),
	}

	LogConnectionStats(logger, cfg.Database, db)
	return connector, nil
}

// DB returns the underlying database connection
func (c *SnowflakeConnector) DB() *sql.DB {
	return c.db
}

// DriverName returns the database/sql driver name
func (c *SnowflakeConnector) DriverName() string {
	return "snowflake"
}

// Dialect returns the snowflake dialect
func (c *SnowflakeConnector) Dialect() converter.Dialect {
	return converter.DialectSnowflake
}

// Validate verifies the Snowflake connection and access rights
func (c *SnowflakeConnector) Validate(ctx context.Context) error {
	var role, database, warehouse string
	err := c.db.QueryRowContext(ctx, "SELECT CURRENT_ROLE(), CURRENT_DATABASE(), CURRENT_WAREHOUSE()").Scan(
		&role, &database, &warehouse)
	if err != nil {
		return errors.Wrap(err, "failed to verify Snowflake access")
	}

	c.logger.Info("Connected to Snowflake",
		zap.String("role", role),
		zap.String("database", database),
		zap.String("warehouse", warehouse))

	// Verify we're connected to the correct database
	if database != c.cfg.Database {
		return errors.Newf("connected to wrong database: %s (expected: %s)",
			database, c.cfg.Database)
	}

	// Verify schemas exist
	missingSchemas, err := c.verifySchemas(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to verify schemas")
	}

	if len(missingSchemas) > 0 {
		c.logger.Warn("Some required schemas not found",
			zap.Strings("missing_schemas", missingSchemas))
	}

	return nil
}

// Close closes the database connection
func (c *SnowflakeConnector) Close() error {
	c.logger.Info("Closing Snowflake connection")
	LogConnectionStats(c.logger, c.cfg.Database, c.db)
	return c.db.Close()
}

// verifySchemas returns the configured schemas missing from the database
func (c *SnowflakeConnector) verifySchemas(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx,
		"SELECT SCHEMA_NAME FROM INFORMATION_SCHEMA.SCHEMATA WHERE CATALOG_NAME = ?", strings.ToUpper(c.cfg.Database))
	if err != nil {
		return nil, errors.Wrap(err, "failed to query schemas")
	}
	defer rows.Close()

	present := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, "failed to scan schema row")
		}
		present[strings.ToUpper(name)] = true
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating schemas")
	}

	var missing []string
	for _, schema := range c.cfg.Schemas {
		if s := strings.ToUpper(schema); !present[s] {
			missing = append(missing, s)
		}
	}
	return missing, nil
}


// BatchQuery fetches data in batches to handle large result sets
func (c *SnowflakeConnector) BatchQuery(
	ctx context.Context,
	query string,
	batchSize int,
	processor func(*sql.Rows) error,
) error {
	if batchSize <= 0 {
		batchSize = 10000
	}

	offset := 0
	for {
		batchQuery := fmt.Sprintf("%s LIMIT %d OFFSET %d", query, batchSize, offset)
		rowCount, err := c.queryBatch(ctx, batchQuery, processor)
		if err != nil {
			return errors.Wrapf(err, "batch query failed at offset %d", offset)
		}

		// If fewer rows than batch size were returned, we're done
		if rowCount < batchSize {
			break
		}
		offset += batchSize
	}

	return nil
}

func (c *SnowflakeConnector) queryBatch(ctx context.Context, query string, processor func(*sql.Rows) error) (int, error) {
	queryCtx, cancel := context.WithTimeout(ctx, c.queryTimeout())
	defer cancel()

	rows, err := c.db.QueryContext(queryCtx, query)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	rowCount := 0
	for rows.Next() {
		rowCount++
		if err := processor(rows); err != nil {
			return rowCount, errors.Wrap(err, "row processing failed")
		}
	}
	return rowCount, rows.Err()
}

func (c *SnowflakeConnector) queryTimeout() time.Duration {
	if c.cfg.QueryTimeout > 0 {
		return c.cfg.QueryTimeout
	}
	return 5 * time.Minute
}

// ReadTable reads a whole warehouse table ("TABLE", "SCHEMA.TABLE" or
// "DB.SCHEMA.TABLE") into a record set, coercing values by column type
func (c *SnowflakeConnector) ReadTable(ctx context.Context, name string, batchSize int) (*model.RecordSet, error) {
	if !warehouseTableName.MatchString(name) {
		return nil, errors.Newf("invalid warehouse table name %q", name)
	}

	var (
		rs    *model.RecordSet
		names []string
		kinds []model.ColumnKind
	)
	err := c.BatchQuery(ctx, "SELECT * FROM "+strings.ToUpper(name)+" ORDER BY 1", batchSize, func(rows *sql.Rows) error {
		if rs == nil {
			types, err := rows.ColumnTypes()
			if err != nil {
				return errors.Wrap(err, "failed to read column types")
			}
			for _, t := range types {
				names = append(names, t.Name())
				kinds = append(kinds, c.conv.KindForWarehouseType(t.DatabaseTypeName()))
			}
			rs = model.NewRecordSet(names...)
		}

		values := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return errors.Wrap(err, "failed to scan warehouse row")
		}

		row := make(model.Row, len(names))
		for i, n := range names {
			row[n] = c.conv.FromSQLValue(values[i], kinds[i])
		}
		rs.Append(row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if rs == nil {
		rs = model.NewRecordSet()
	}

	c.logger.Info("Read warehouse table", zap.String("table", name), zap.Int("rows", rs.Len()))
	return rs, nil
}
