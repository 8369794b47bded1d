package converter

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/medtrack/data-ingress/pkg/model"
)

// Dialect names the SQL flavor of a store or source
type Dialect string

const (
	DialectPostgres  Dialect = "postgres"
	DialectSQLite    Dialect = "sqlite"
	DialectSnowflake Dialect = "snowflake"
)

// SQLType returns the column type used to persist a kind in the given dialect
func SQLType(kind model.ColumnKind, dialect Dialect) string {
	switch dialect {
	case DialectPostgres:
		switch kind {
		case model.KindInteger:
			return "BIGINT"
		case model.KindFloat:
			return "DOUBLE PRECISION"
		case model.KindDate:
			return "DATE"
		case model.KindBool:
			return "BOOLEAN"
		default:
			return "TEXT"
		}
	default:
		switch kind {
		case model.KindInteger, model.KindBool:
			return "INTEGER"
		case model.KindFloat:
			return "REAL"
		default:
			// Dates are stored as ISO text so lexical order matches calendar order
			return "TEXT"
		}
	}
}

// KindForWarehouseType maps a Snowflake column type onto a canonical kind
func (c *TypeConverter) KindForWarehouseType(snowType string) model.ColumnKind {
	snowType = strings.ToUpper(strings.TrimSpace(snowType))
	baseType := getBaseType(snowType)

	switch baseType {
	case "VARCHAR", "TEXT", "STRING", "CHAR", "CHARACTER":
		return model.KindString
	case "NUMBER", "DECIMAL", "NUMERIC":
		if strings.HasSuffix(snowType, ",0)") || !strings.Contains(snowType, ",") {
			return model.KindInteger
		}
		return model.KindFloat
	case "INT", "INTEGER", "BIGINT", "SMALLINT", "TINYINT", "BYTEINT":
		return model.KindInteger
	case "FLOAT", "FLOAT4", "FLOAT8", "DOUBLE", "REAL", "FIXED", "REAL PRECISION":
		return model.KindFloat
	case "DATE", "TIMESTAMP", "TIMESTAMP_NTZ", "TIMESTAMP_TZ", "TIMESTAMP_LTZ", "DATETIME":
		return model.KindDate
	case "BOOLEAN":
		return model.KindBool
	default:
		c.logger.Warn("Unknown warehouse type encountered, reading as text",
			zap.String("warehouseType", snowType))
		return model.KindString
	}
}

// getBaseType extracts the base type from a complex type definition
func getBaseType(fullType string) string {
	parts := strings.Split(fullType, "(")
	return strings.TrimSpace(parts[0])
}

// DetectTimeFormat analyzes a value to determine its timestamp format
func DetectTimeFormat(value string) string {
	// Common formats to check
	formats := []string{
		"2006-01-02",                       // Date only
		"2006-01-02T15:04:05Z",             // ISO8601 UTC
		"2006-01-02T15:04:05-07:00",        // ISO8601 with timezone
		"2006-01-02 15:04:05",              // SQL timestamp
		"20060102T150405Z",                 // Compact ISO8601
		"2006-01-02T15:04:05.999999Z",      // ISO8601 with microseconds
		"2006-01-02T15:04:05.999999-07:00", // ISO8601 with microseconds and TZ
	}

	for _, format := range formats {
		_, err := time.Parse(format, value)
		if err == nil {
			return format
		}
	}

	return ""
}
