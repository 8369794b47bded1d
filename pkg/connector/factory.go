// pkg/connector/factory.go
package connector

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/medtrack/data-ingress/pkg/config"
)

// ErrWarehouseNotConfigured is returned when the warehouse source is used without credentials
var ErrWarehouseNotConfigured = errors.New("snowflake warehouse is not configured")

// ConnectorFactory creates database connectors
type ConnectorFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewConnectorFactory creates a new connector factory
func NewConnectorFactory(cfg *config.Config, logger *zap.Logger) *ConnectorFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConnectorFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateStoreConnector opens and validates the canonical store selected by
// configuration
func (f *ConnectorFactory) CreateStoreConnector(ctx context.Context) (DatabaseConnector, error) {
	conn, err := f.openStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := conn.Validate(ctx); err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "%s store failed validation", f.cfg.Store.Driver)
	}
	return conn, nil
}

func (f *ConnectorFactory) openStore(ctx context.Context) (DatabaseConnector, error) {
	switch f.cfg.Store.Driver {
	case "postgres":
		f.logger.Info("Creating PostgreSQL connector")
		conn, err := NewPostgresConnector(ctx, f.cfg.Postgres)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create PostgreSQL connector")
		}
		return conn, nil
	case "sqlite":
		f.logger.Info("Creating SQLite connector", zap.String("path", f.cfg.Store.DSN))
		conn, err := NewSQLiteConnector(ctx, f.cfg.Store.DSN)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create SQLite connector")
		}
		return conn, nil
	default:
		return nil, errors.Newf("unsupported store driver %q", f.cfg.Store.Driver)
	}
}

// CreateSnowflakeConnector creates a new Snowflake connector for the warehouse source
func (f *ConnectorFactory) CreateSnowflakeConnector(ctx context.Context) (*SnowflakeConnector, error) {
	if f.cfg.Snowflake == nil {
		return nil, ErrWarehouseNotConfigured
	}
	f.logger.Info("Creating Snowflake connector")

	connector, err := NewSnowflakeConnector(ctx, f.cfg.Snowflake)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Snowflake connector")
	}
	if err := connector.Validate(ctx); err != nil {
		connector.Close()
		return nil, errors.Wrap(err, "snowflake warehouse failed validation")
	}

	return connector, nil
}
