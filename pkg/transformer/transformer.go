// Package transformer normalizes extracted record sets into canonical rows
// for one entity type.
package transformer

import (
	"math"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medtrack/data-ingress/pkg/converter"
	"github.com/medtrack/data-ingress/pkg/extractor"
	"github.com/medtrack/data-ingress/pkg/logging"
	"github.com/medtrack/data-ingress/pkg/model"
)

// Drug defaults injected when the source does not carry the column
const (
	DefaultCategory      = "Prescription"
	DefaultMinStockLevel = int64(10)
	DefaultMaxStockLevel = int64(1000)
)

// Transformer applies the per-entity normalization rules. Transform never
// mutates its input.
type Transformer struct {
	conv    *converter.TypeConverter
	now     func() time.Time
	newCode func() string
	logger  *zap.Logger
}

// Option configures a Transformer
type Option func(*Transformer)

// WithClock sets the clock used for "today" in derived fields
func WithClock(now func() time.Time) Option {
	return func(t *Transformer) { t.now = now }
}

// WithCodeGenerator sets the generator for synthesized patient codes
func WithCodeGenerator(gen func() string) Option {
	return func(t *Transformer) { t.newCode = gen }
}

// New creates a transformer
func New(logger *zap.Logger, opts ...Option) *Transformer {
	logger = logging.OrNop(logger).Named("transformer")
	t := &Transformer{
		conv:    converter.NewTypeConverter(logger),
		now:     time.Now,
		newCode: NewPatientCode,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewPatientCode returns a random patient code such as "PAT-1A2B3C4D"
func NewPatientCode() string {
	return "PAT-" + strings.ToUpper(uuid.NewString()[:8])
}

// plan describes how input columns map onto the output set
type plan struct {
	// canonical column -> raw input columns feeding it, in input order
	sources map[model.Column][]string
	// unknown input columns passed through as-is
	extras  []string
	columns []string
}

func newPlan(schema *model.EntitySchema, input []string) *plan {
	p := &plan{sources: make(map[model.Column][]string)}
	for _, raw := range input {
		if col, ok := schema.Resolve(raw); ok {
			p.sources[col] = append(p.sources[col], raw)
			continue
		}
		p.extras = append(p.extras, raw)
	}

	present := make(map[model.Column]bool, len(p.sources))
	for col := range p.sources {
		present[col] = true
	}
	for _, col := range derivedColumns(schema.Entity, present) {
		present[col] = true
	}

	if present[model.ColID] {
		p.columns = append(p.columns, string(model.ColID))
	}
	for _, col := range schema.Columns {
		if present[col] {
			p.columns = append(p.columns, string(col))
		}
	}
	p.columns = append(p.columns, p.extras...)
	return p
}

// derivedColumns lists the columns an entity adds to its output
func derivedColumns(e model.EntityType, present map[model.Column]bool) []model.Column {
	switch e {
	case model.EntityDrug:
		return []model.Column{
			model.ColCategory, model.ColMinStockLevel, model.ColMaxStockLevel,
			model.ColStockValue, model.ColDaysToExpiry,
		}
	case model.EntitySale:
		cols := []model.Column{model.ColYear, model.ColMonth, model.ColDay, model.ColDayOfWeek}
		if present[model.ColUnitPrice] && present[model.ColQuantity] {
			cols = append(cols, model.ColTotalAmount)
		}
		return cols
	case model.EntityPatient:
		return []model.Column{model.ColPatientCode, model.ColAge, model.ColCreatedAt}
	}
	return nil
}

// Transform normalizes in according to the rules of entity. Rows missing a
// required field are dropped before any derived field is computed.
func (t *Transformer) Transform(in *model.RecordSet, entity model.EntityType) (*model.RecordSet, error) {
	schema, err := model.SchemaFor(entity)
	if err != nil {
		return nil, err
	}
	if in == nil || len(in.Columns()) == 0 {
		return nil, errors.Wrapf(extractor.ErrStructuralRead, "%s input has no columns", entity)
	}

	p := newPlan(schema, in.Columns())
	today := model.Date(t.now())
	out := model.NewRecordSet(p.columns...)

	var missing, filtered, nulled int
	for _, raw := range in.Rows() {
		row := make(model.Row, len(p.columns))
		for col, names := range p.sources {
			v, ok := t.conv.Coerce(firstValue(t.conv, raw, names), schema.Kinds[col])
			if !ok {
				nulled++
			}
			row[string(col)] = v
		}
		for _, name := range p.extras {
			row[name] = raw[name]
		}

		if !hasRequired(schema, row) {
			missing++
			continue
		}
		if !t.derive(entity, p, row, today) {
			filtered++
			continue
		}
		out.Append(row)
	}

	t.logger.Info("Transformed records",
		zap.String(logging.FieldEntity, entity.String()),
		zap.Int("input", in.Len()),
		zap.Int(logging.FieldRows, out.Len()),
		zap.Int("missing_required", missing),
		zap.Int("filtered", filtered),
		zap.Int("coerced_to_null", nulled))
	return out, nil
}

// firstValue returns the first non-null value among raw columns that map to
// the same canonical column
func firstValue(conv *converter.TypeConverter, raw model.Row, names []string) any {
	for _, n := range names {
		if v := raw[n]; !conv.IsNull(v) {
			return v
		}
	}
	return nil
}

func hasRequired(schema *model.EntitySchema, row model.Row) bool {
	for _, col := range schema.Required {
		if row[string(col)] == nil {
			return false
		}
	}
	return true
}

// derive fills entity specific defaults and derived fields. It returns false
// when the row must be filtered out.
func (t *Transformer) derive(e model.EntityType, p *plan, row model.Row, today time.Time) bool {
	switch e {
	case model.EntityDrug:
		deriveDrug(p, row, today)
	case model.EntitySale:
		return deriveSale(p, row)
	case model.EntityPatient:
		t.derivePatient(p, row, today)
	}
	return true
}

func deriveDrug(p *plan, row model.Row, today time.Time) {
	if _, ok := p.sources[model.ColCategory]; !ok {
		row[string(model.ColCategory)] = DefaultCategory
	}
	if _, ok := p.sources[model.ColMinStockLevel]; !ok {
		row[string(model.ColMinStockLevel)] = DefaultMinStockLevel
	}
	if _, ok := p.sources[model.ColMaxStockLevel]; !ok {
		row[string(model.ColMaxStockLevel)] = DefaultMaxStockLevel
	}

	stock, hasStock := row[string(model.ColStockQuantity)].(int64)
	if _, ok := p.sources[model.ColStockQuantity]; ok && !hasStock {
		stock, hasStock = 0, true
		row[string(model.ColStockQuantity)] = stock
	}

	row[string(model.ColStockValue)] = nil
	if price, ok := row[string(model.ColUnitPrice)].(float64); ok && hasStock {
		row[string(model.ColStockValue)] = price * float64(stock)
	}

	row[string(model.ColDaysToExpiry)] = nil
	if expiry, ok := row[string(model.ColExpiryDate)].(time.Time); ok {
		row[string(model.ColDaysToExpiry)] = daysBetween(today, expiry)
	}
}

func deriveSale(p *plan, row model.Row) bool {
	if qty, ok := row[string(model.ColQuantity)].(int64); !ok || qty <= 0 {
		return false
	}

	sold := row[string(model.ColSaleDate)].(time.Time)
	row[string(model.ColYear)] = int64(sold.Year())
	row[string(model.ColMonth)] = int64(sold.Month())
	row[string(model.ColDay)] = int64(sold.Day())
	row[string(model.ColDayOfWeek)] = sold.Weekday().String()

	if !p.hasColumn(model.ColTotalAmount) {
		return true
	}
	if row[string(model.ColTotalAmount)] == nil {
		if price, ok := row[string(model.ColUnitPrice)].(float64); ok {
			row[string(model.ColTotalAmount)] = price * float64(row[string(model.ColQuantity)].(int64))
		}
	}
	return true
}

func (t *Transformer) derivePatient(p *plan, row model.Row, today time.Time) {
	dob := row[string(model.ColDateOfBirth)].(time.Time)
	row[string(model.ColAge)] = int64(math.Floor(float64(daysBetween(dob, today)) / 365.25))

	if g, ok := row[string(model.ColGender)].(string); ok {
		row[string(model.ColGender)] = normalizeGender(g)
	}
	if email, ok := row[string(model.ColEmail)].(string); ok && !strings.Contains(email, "@") {
		row[string(model.ColEmail)] = nil
	}
	if row[string(model.ColPatientCode)] == nil {
		row[string(model.ColPatientCode)] = t.newCode()
	}
	if row[string(model.ColCreatedAt)] == nil {
		row[string(model.ColCreatedAt)] = today
	}
}

func (p *plan) hasColumn(col model.Column) bool {
	for _, c := range p.columns {
		if c == string(col) {
			return true
		}
	}
	return false
}

var genders = map[string]string{
	"M":      "Male",
	"MALE":   "Male",
	"F":      "Female",
	"FEMALE": "Female",
	"O":      "Other",
	"OTHER":  "Other",
}

// normalizeGender maps gender spellings case-insensitively; unknown values
// become nil
func normalizeGender(g string) any {
	if v, ok := genders[strings.ToUpper(strings.TrimSpace(g))]; ok {
		return v
	}
	return nil
}

// daysBetween returns the whole days from a to b; both are calendar dates
func daysBetween(a, b time.Time) int64 {
	return int64(math.Floor(b.Sub(a).Hours() / 24))
}
