package connector

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/medtrack/data-ingress/pkg/config"
	"github.com/medtrack/data-ingress/pkg/converter"
)

// SQLiteConnector implements the DatabaseConnector interface for an embedded SQLite file
type SQLiteConnector struct {
	db     *sql.DB
	logger *zap.Logger
	path   string
}

// NewSQLiteConnector opens (and creates if needed) the database at path.
// ":memory:" opens a private in-memory database.
func NewSQLiteConnector(ctx context.Context, path string) (*SQLiteConnector, error) {
	logger := zap.L().Named("sqlite-connector")
	logger.Info("Opening SQLite database", zap.String("path", path))

	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, errors.Wrapf(err, "failed to create directory for %s", path)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize SQLite connection")
	}

	// A single connection serializes writers and keeps :memory: databases shared
	ApplyPool(db, config.PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1})

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			logger.Warn("Failed to apply pragma", zap.String("pragma", pragma), zap.Error(err))
		}
	}

	if err := PingWithTimeout(ctx, db, 5*time.Second); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to open SQLite database")
	}

	return &SQLiteConnector{db: db, logger: logger, path: path}, nil
}

// DB returns the underlying database connection
func (c *SQLiteConnector) DB() *sql.DB {
	return c.db
}

// DriverName returns the database/sql driver name
func (c *SQLiteConnector) DriverName() string {
	return "sqlite"
}

// Dialect returns the sqlite dialect
func (c *SQLiteConnector) Dialect() converter.Dialect {
	return converter.DialectSQLite
}

// Validate checks that the database answers queries
func (c *SQLiteConnector) Validate(ctx context.Context) error {
	var version string
	if err := c.db.QueryRowContext(ctx, "SELECT sqlite_version()").Scan(&version); err != nil {
		return errors.Wrap(err, "failed to query SQLite version")
	}
	c.logger.Info("Connected to SQLite", zap.String("version", version), zap.String("path", c.path))
	return nil
}

// Close closes the database connection
func (c *SQLiteConnector) Close() error {
	LogConnectionStats(c.logger, c.path, c.db)
	return c.db.Close()
}

