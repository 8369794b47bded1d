// Package quality audits the canonical store for completeness, consistency,
// accuracy and timeliness, and repairs a fixed set of known defects.
package quality

import (
	"context"
	"math"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medtrack/data-ingress/pkg/config"
	"github.com/medtrack/data-ingress/pkg/converter"
	"github.com/medtrack/data-ingress/pkg/logging"
	"github.com/medtrack/data-ingress/pkg/model"
	"github.com/medtrack/data-ingress/pkg/report"
	"github.com/medtrack/data-ingress/pkg/store"
)

// Monitor runs quality audits against a canonical store. It does not
// synchronize with concurrent loads; callers serialize audits and runs.
type Monitor struct {
	store   store.CanonicalStore
	sink    report.Sink
	scoring config.ScoringConfig
	conv    *converter.TypeConverter
	metrics *Metrics
	now     func() time.Time
	logger  *zap.Logger
}

// Option configures a Monitor
type Option func(*Monitor)

// WithClock sets the clock that defines "today"
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithSink persists every audit report
func WithSink(s report.Sink) Option {
	return func(m *Monitor) { m.sink = s }
}

// WithMetrics enables Prometheus gauges for audit scores
func WithMetrics(metrics *Metrics) Option {
	return func(m *Monitor) { m.metrics = metrics }
}

// NewMonitor creates a monitor over st using the given score coefficients
func NewMonitor(st store.CanonicalStore, scoring config.ScoringConfig, logger *zap.Logger, opts ...Option) *Monitor {
	logger = logging.OrNop(logger).Named("quality")
	m := &Monitor{
		store:   st,
		scoring: scoring,
		conv:    converter.NewTypeConverter(logger),
		now:     time.Now,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Monitor) today() time.Time {
	return model.Date(m.now())
}

// snapshot holds the three canonical tables as read for one audit
type snapshot struct {
	drugs, sales, patients *model.RecordSet
}

func (m *Monitor) read(ctx context.Context, table string) (*model.RecordSet, error) {
	rs, err := m.store.ReadAll(ctx, table)
	if store.IsNotFound(err) {
		return model.NewRecordSet(), nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", table)
	}
	return rs, nil
}

func (m *Monitor) load(ctx context.Context) (*snapshot, error) {
	var (
		s   snapshot
		err error
	)
	if s.drugs, err = m.read(ctx, model.EntityDrug.Table()); err != nil {
		return nil, err
	}
	if s.sales, err = m.read(ctx, model.EntitySale.Table()); err != nil {
		return nil, err
	}
	if s.patients, err = m.read(ctx, model.EntityPatient.Table()); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *snapshot) table(name string) *model.RecordSet {
	switch name {
	case model.EntityDrug.Table():
		return s.drugs
	case model.EntitySale.Table():
		return s.sales
	default:
		return s.patients
	}
}

// CheckCompleteness returns the share of rows of table whose required fields
// are all present. An empty table scores 0.
func (m *Monitor) CheckCompleteness(ctx context.Context, table string) (model.CompletenessReport, error) {
	schema, ok := model.SchemaForTable(table)
	if !ok {
		return model.CompletenessReport{}, errors.Wrapf(model.ErrUnknownEntityType, "table %q", table)
	}
	rs, err := m.read(ctx, table)
	if err != nil {
		return model.CompletenessReport{}, err
	}
	return m.completeness(schema, table, rs), nil
}

func (m *Monitor) completeness(schema *model.EntitySchema, table string, rs *model.RecordSet) model.CompletenessReport {
	r := model.CompletenessReport{Table: table, TotalRecords: rs.Len(), Timestamp: m.now()}
	for _, row := range rs.Rows() {
		complete := true
		for _, col := range schema.Required {
			if m.conv.IsNull(row[string(col)]) {
				complete = false
				break
			}
		}
		if complete {
			r.CompleteRecords++
		}
	}
	if r.TotalRecords > 0 {
		r.CompletenessRate = round2(float64(r.CompleteRecords) / float64(r.TotalRecords) * 100)
	}
	return r
}

// CheckConsistency counts cross-table defects
func (m *Monitor) CheckConsistency(ctx context.Context) (model.ConsistencyReport, error) {
	s, err := m.load(ctx)
	if err != nil {
		return model.ConsistencyReport{}, err
	}
	return m.consistency(s), nil
}

func (m *Monitor) consistency(s *snapshot) model.ConsistencyReport {
	today := m.today()
	r := model.ConsistencyReport{Timestamp: m.now()}
	refs := drugRefs(s.drugs)

	for _, row := range s.sales.Rows() {
		if m.isOrphan(refs, row) {
			r.OrphanedSales++
		}
		if d, ok := m.date(row, model.ColSaleDate); ok && d.After(today) {
			r.FutureSales++
		}
	}
	for _, row := range s.drugs.Rows() {
		stock, hasStock := m.number(row, model.ColStockQuantity)
		if hasStock && stock < 0 {
			r.NegativeStock++
		}
		if d, ok := m.date(row, model.ColExpiryDate); ok && d.Before(today) && hasStock && stock > 0 {
			r.ExpiredDrugsInStock++
		}
	}
	return r
}

// CheckAccuracy evaluates the business rules. TotalIssues counts violated
// rules, not violating rows.
func (m *Monitor) CheckAccuracy(ctx context.Context) (model.AccuracyReport, error) {
	s, err := m.load(ctx)
	if err != nil {
		return model.AccuracyReport{}, err
	}
	return m.accuracy(s), nil
}

type rule struct {
	name    string
	entity  model.EntityType
	label   string
	violate func(m *Monitor, row model.Row) bool
}

var rules = []rule{
	{
		name:   "Unit price must be positive",
		entity: model.EntityDrug,
		label:  "Drug ID",
		violate: func(m *Monitor, row model.Row) bool {
			p, ok := m.number(row, model.ColUnitPrice)
			return ok && p <= 0
		},
	},
	{
		name:   "Sale quantity must be positive",
		entity: model.EntitySale,
		label:  "Sale ID",
		violate: func(m *Monitor, row model.Row) bool {
			q, ok := m.number(row, model.ColQuantity)
			return ok && q <= 0
		},
	},
	{
		name:   "Patient age must be between 0 and 120",
		entity: model.EntityPatient,
		label:  "Patient ID",
		violate: func(m *Monitor, row model.Row) bool {
			a, ok := m.number(row, model.ColAge)
			return ok && (a < 0 || a > 120)
		},
	},
	{
		name:   "Discount cannot exceed sale amount",
		entity: model.EntitySale,
		label:  "Sale ID",
		violate: func(m *Monitor, row model.Row) bool {
			d, ok1 := m.number(row, model.ColDiscount)
			p, ok2 := m.number(row, model.ColUnitPrice)
			q, ok3 := m.number(row, model.ColQuantity)
			return ok1 && ok2 && ok3 && d > p*q
		},
	},
}

func (m *Monitor) accuracy(s *snapshot) model.AccuracyReport {
	r := model.AccuracyReport{Issues: []model.AccuracyIssue{}, Timestamp: m.now()}
	for _, rl := range rules {
		var (
			count   int
			example string
		)
		for _, row := range s.table(rl.entity.Table()).Rows() {
			if !rl.violate(m, row) {
				continue
			}
			if count == 0 {
				example = rl.label + ": " + converter.Describe(row[string(model.ColID)])
			}
			count++
		}
		if count > 0 {
			r.Issues = append(r.Issues, model.AccuracyIssue{Rule: rl.name, Violations: count, Example: example})
		}
	}
	r.TotalIssues = len(r.Issues)
	return r
}

// CheckTimeliness reports how recent sales and patient registrations are
func (m *Monitor) CheckTimeliness(ctx context.Context) (model.TimelinessReport, error) {
	s, err := m.load(ctx)
	if err != nil {
		return model.TimelinessReport{}, err
	}
	return m.timeliness(s), nil
}

func (m *Monitor) timeliness(s *snapshot) model.TimelinessReport {
	today := m.today()
	weekAgo := today.AddDate(0, 0, -7)
	r := model.TimelinessReport{Timestamp: m.now()}

	for _, row := range s.sales.Rows() {
		d, ok := m.date(row, model.ColSaleDate)
		if !ok {
			continue
		}
		if r.LastSaleDate == nil || d.After(*r.LastSaleDate) {
			last := d
			r.LastSaleDate = &last
		}
		if !d.Before(weekAgo) {
			r.RecentSales7Days++
		}
	}
	if r.LastSaleDate != nil {
		days := int(today.Sub(*r.LastSaleDate).Hours() / 24)
		r.DaysSinceLastSale = &days
	}

	for _, row := range s.patients.Rows() {
		if d, ok := m.date(row, model.ColCreatedAt); ok && !d.Before(weekAgo) {
			r.RecentPatients7Days++
		}
	}
	return r
}

// RunQualityCheck runs all four audits on one snapshot of the store and
// aggregates the weighted score
func (m *Monitor) RunQualityCheck(ctx context.Context) (*model.QualityAuditReport, error) {
	m.logger.Info("Running comprehensive data quality check")
	s, err := m.load(ctx)
	if err != nil {
		return nil, err
	}

	r := &model.QualityAuditReport{
		ID:            uuid.NewString(),
		ExecutionTime: m.now(),
	}
	for _, e := range model.AllEntityTypes() {
		schema, _ := model.SchemaFor(e)
		r.Completeness = append(r.Completeness, m.completeness(schema, e.Table(), s.table(e.Table())))
	}
	r.Consistency = m.consistency(s)
	r.Accuracy = m.accuracy(s)
	r.Timeliness = m.timeliness(s)
	r.Score = Score(m.scoring, r.Completeness, r.Consistency, r.Accuracy, r.Timeliness)

	m.metrics.observeAudit(r)
	m.logger.Info("Quality check completed",
		zap.String("audit_id", r.ID),
		zap.Float64(logging.FieldScore, r.Score.Overall),
		zap.String("grade", r.Score.Grade),
		zap.Int("consistency_issues", r.Consistency.TotalIssues()),
		zap.Int("accuracy_issues", r.Accuracy.TotalIssues))

	if m.sink != nil {
		if _, err := m.sink.SaveQualityAudit(*r); err != nil {
			m.logger.Error("Failed to save quality report", zap.Error(err))
		}
	}
	return r, nil
}

// drugRefs collects every value a sale may use to reference a drug: the
// surrogate id and the drug code
func drugRefs(drugs *model.RecordSet) map[string]struct{} {
	refs := make(map[string]struct{}, drugs.Len()*2)
	for _, row := range drugs.Rows() {
		if id, ok := store.RowID(row); ok {
			refs[converter.Describe(id)] = struct{}{}
		}
		if code := converter.ToString(row[string(model.ColDrugCode)]); code != "" {
			refs[code] = struct{}{}
		}
	}
	return refs
}

// isOrphan reports whether a sale references a drug that does not exist.
// Sales without a drug reference are incomplete, not orphaned.
func (m *Monitor) isOrphan(refs map[string]struct{}, row model.Row) bool {
	v := row[string(model.ColDrugID)]
	if m.conv.IsNull(v) {
		return false
	}
	ref := converter.ToString(v)
	if f, err := converter.ToFloat(v); err == nil && f == math.Trunc(f) {
		ref = converter.Describe(int64(f))
	}
	_, ok := refs[ref]
	return !ok
}

func (m *Monitor) number(row model.Row, col model.Column) (float64, bool) {
	v := row[string(col)]
	if m.conv.IsNull(v) {
		return 0, false
	}
	f, err := converter.ToFloat(v)
	return f, err == nil
}

func (m *Monitor) date(row model.Row, col model.Column) (time.Time, bool) {
	v := row[string(col)]
	if m.conv.IsNull(v) {
		return time.Time{}, false
	}
	d, err := m.conv.ToDate(v)
	return d, err == nil
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
