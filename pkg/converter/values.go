package converter

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cast"

	"github.com/medtrack/data-ingress/pkg/model"
)

// IsNull determines if a value should be treated as NULL
func (c *TypeConverter) IsNull(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case float64:
		return math.IsNaN(v)
	case []byte:
		return c.isNullString(string(v))
	case string:
		return c.isNullString(v)
	}
	return false
}

func (c *TypeConverter) isNullString(s string) bool {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return c.config.EmptyStringAsNull
	}
	for _, tok := range c.config.NullTokens {
		if strings.EqualFold(trimmed, tok) {
			return true
		}
	}
	return false
}

// ToString converts a value to its text form. Dates use the canonical layout.
func ToString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case []byte:
		return strings.TrimSpace(string(val))
	case time.Time:
		return val.Format(model.DateLayout)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return cast.ToString(val)
	}
}

// ToFloat converts a value to float64
func ToFloat(v any) (float64, error) {
	switch val := v.(type) {
	case string:
		return parseFloat(val)
	case []byte:
		return parseFloat(string(val))
	case time.Time:
		return 0, errors.New("cannot convert time to float")
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, errors.Wrapf(err, "cannot convert %T to float", v)
	}
	return f, nil
}

// ToInteger converts a value to int64. Fractional numbers are truncated toward
// zero; NaN and infinities are rejected.
func ToInteger(v any) (int64, error) {
	switch val := v.(type) {
	case int64:
		return val, nil
	case float64, float32, string, []byte:
		f, err := ToFloat(val)
		if err != nil {
			return 0, err
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, errors.Newf("%v is not a finite number", v)
		}
		f = math.Trunc(f)
		if f >= math.MaxInt64 || f < math.MinInt64 {
			return 0, errors.Newf("%v overflows int64", v)
		}
		return int64(f), nil
	case time.Time:
		return 0, errors.New("cannot convert time to integer")
	}
	i, err := cast.ToInt64E(v)
	if err != nil {
		return 0, errors.Wrapf(err, "cannot convert %T to integer", v)
	}
	return i, nil
}

// ToBool converts a value to bool
func ToBool(v any) (bool, error) {
	if s, ok := v.(string); ok {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "t", "yes", "y", "1":
			return true, nil
		case "false", "f", "no", "n", "0":
			return false, nil
		default:
			return false, errors.Newf("cannot parse %q as boolean", s)
		}
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return false, errors.Wrapf(err, "cannot convert %T to bool", v)
	}
	return b, nil
}

// ToDate converts a value to a calendar date
func (c *TypeConverter) ToDate(v any) (time.Time, error) {
	switch val := v.(type) {
	case time.Time:
		return model.Date(val), nil
	case []byte:
		return c.parseDate(string(val))
	case string:
		return c.parseDate(val)
	default:
		return time.Time{}, errors.Newf("cannot convert %T to date", v)
	}
}

func (c *TypeConverter) parseDate(s string) (time.Time, error) {
	cleaned := strings.TrimSpace(s)
	if cleaned == "" {
		return time.Time{}, errors.New("empty string")
	}

	if layout := DetectTimeFormat(cleaned); layout != "" {
		if t, err := time.Parse(layout, cleaned); err == nil {
			return model.Date(t), nil
		}
	}
	for _, layout := range c.config.DateLayouts {
		if t, err := time.Parse(layout, cleaned); err == nil {
			return model.Date(t), nil
		}
	}
	return time.Time{}, errors.Newf("cannot parse date from %q", cleaned)
}

func parseFloat(s string) (float64, error) {
	cleaned := strings.TrimSpace(s)
	if cleaned == "" {
		return 0, errors.New("empty string")
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "cannot convert %q to float", cleaned)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.Newf("%q is not a finite number", cleaned)
	}
	return f, nil
}

// ToSQLValue converts a canonical scalar into a value every supported driver
// accepts. Dates are written in the canonical text layout.
func ToSQLValue(v any) any {
	switch val := v.(type) {
	case time.Time:
		return val.Format(model.DateLayout)
	case []byte:
		return string(val)
	default:
		return val
	}
}

// FromSQLValue converts a scanned database value back into a canonical scalar
func (c *TypeConverter) FromSQLValue(v any, kind model.ColumnKind) any {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		v = string(val)
	case int32:
		v = int64(val)
	case int:
		v = int64(val)
	case float32:
		v = float64(val)
	}
	out, _ := c.Coerce(v, kind)
	return out
}

// Describe renders a value for audit logs
func Describe(v any) string {
	if v == nil {
		return ""
	}
	if t, ok := v.(time.Time); ok {
		return t.Format(model.DateLayout)
	}
	return fmt.Sprint(v)
}
