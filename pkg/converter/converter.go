package converter

import (
	"time"

	"go.uber.org/zap"

	"github.com/medtrack/data-ingress/pkg/model"
)

// TypeConverter coerces loosely typed source values into canonical scalars
type TypeConverter struct {
	logger *zap.Logger
	// Configuration options
	config TypeConverterConfig
}

// TypeConverterConfig provides configuration options for type conversion
type TypeConverterConfig struct {
	// Whether to treat blank strings as NULL
	EmptyStringAsNull bool
	// Tokens (case-insensitive) that represent NULL in text sources
	NullTokens []string
	// Layouts tried in order when parsing dates
	DateLayouts []string
}

// DefaultConfig returns the default configuration
func DefaultConfig() TypeConverterConfig {
	return TypeConverterConfig{
		EmptyStringAsNull: true,
		NullTokens:        []string{"null", "nil", "nan", "n/a", "na", "none"},
		DateLayouts: []string{
			time.RFC3339,
			"2006-01-02T15:04:05",
			"2006-01-02 15:04:05",
			"2006-01-02",
			"01/02/2006",
			"01-02-2006",
			"2006/01/02",
			"02-Jan-2006",
			"Jan 2, 2006",
		},
	}
}

// NewTypeConverter creates a new TypeConverter with default configuration
func NewTypeConverter(logger *zap.Logger) *TypeConverter {
	return NewTypeConverterWithConfig(logger, DefaultConfig())
}

// NewTypeConverterWithConfig creates a TypeConverter with custom configuration
func NewTypeConverterWithConfig(logger *zap.Logger, config TypeConverterConfig) *TypeConverter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TypeConverter{
		logger: logger,
		config: config,
	}
}

// Coerce converts value to the given kind. Unparseable input becomes nil;
// ok is false when a non-null input had to be nulled.
func (c *TypeConverter) Coerce(value any, kind model.ColumnKind) (out any, ok bool) {
	if c.IsNull(value) {
		return nil, true
	}

	var err error
	switch kind {
	case model.KindInteger:
		out, err = ToInteger(value)
	case model.KindFloat:
		out, err = ToFloat(value)
	case model.KindDate:
		out, err = c.ToDate(value)
	case model.KindBool:
		out, err = ToBool(value)
	default:
		return ToString(value), true
	}

	if err != nil {
		c.logger.Debug("Coerced unparseable value to null",
			zap.String("kind", kind.String()),
			zap.Any("value", value),
			zap.Error(err))
		return nil, false
	}
	return out, true
}
