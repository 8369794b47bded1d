// Package sample generates synthetic raw record sets for drugs, sales and
// patients. The output uses canonical column names and text dates so it can
// be fed straight back through the transformer.
package sample

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/medtrack/data-ingress/pkg/converter"
	"github.com/medtrack/data-ingress/pkg/logging"
	"github.com/medtrack/data-ingress/pkg/model"
	"github.com/medtrack/data-ingress/pkg/store"
)

const (
	salesWindowDays = 90
	taxRate         = 0.08
	maxDrugRefs     = 20
)

var (
	manufacturers = []string{"Pfizer", "GSK", "Merck", "AstraZeneca", "Johnson & Johnson", "Novartis", "Roche"}
	categories    = []string{"Prescription", "OTC", "Controlled", "Herbal"}
	drugClasses   = []string{"Antibiotic", "Analgesic", "Antihypertensive", "Antidiabetic", "NSAID", "Antidepressant"}
	storage       = []string{"Room Temperature", "Refrigerated", "Frozen", "Protected from Light"}
	pharmacies    = []string{"City Pharmacy", "Health Plus", "MediCare", "Wellness Center", "QuickCare"}
	payments      = []string{"Cash", "Credit Card", "Insurance", "Digital"}
	genders       = []string{"Male", "Female", "Other"}
	conditions    = []string{
		"Hypertension", "Type 2 Diabetes", "Asthma", "Arthritis", "Migraine",
		"Depression", "High Cholesterol", "COPD", "Osteoporosis", "GERD",
	}
	cities = []string{
		"New York", "Los Angeles", "Chicago", "Houston", "Phoenix",
		"Philadelphia", "San Antonio", "San Diego", "Dallas", "San Jose",
	}
)

// drugRef is a drug a generated sale may point at
type drugRef struct {
	id    int64
	price float64
}

// Generator produces synthetic record sets
type Generator struct {
	faker  *gofakeit.Faker
	store  store.Store
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Generator
type Option func(*Generator)

// WithStore lets generated sales reference drugs already in the store
func WithStore(st store.Store) Option {
	return func(g *Generator) { g.store = st }
}

// WithClock sets the clock used for relative dates
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// New creates a generator. A zero seed picks a random one.
func New(seed int64, logger *zap.Logger, opts ...Option) *Generator {
	g := &Generator{
		faker:  gofakeit.New(seed),
		now:    time.Now,
		logger: logging.OrNop(logger).Named("sample"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns count synthetic records of the given entity type
func (g *Generator) Generate(ctx context.Context, entity model.EntityType, count int) (*model.RecordSet, error) {
	if count < 0 {
		return nil, errors.Newf("record count must not be negative, got %d", count)
	}
	g.logger.Info("Generating sample records",
		zap.String(logging.FieldEntity, entity.String()),
		zap.Int(logging.FieldRows, count))

	switch entity {
	case model.EntityDrug:
		return g.drugs(count), nil
	case model.EntitySale:
		return g.sales(ctx, count), nil
	case model.EntityPatient:
		return g.patients(count), nil
	default:
		return nil, errors.Wrapf(model.ErrUnknownEntityType, "%q", string(entity))
	}
}

func (g *Generator) today() time.Time {
	return model.Date(g.now())
}

func (g *Generator) drugs(count int) *model.RecordSet {
	f := g.faker
	rs := model.NewRecordSet()
	for i := 0; i < count; i++ {
		rs.Append(model.Row{
			"drug_code":          fmt.Sprintf("DRG%04d", 1000+i),
			"drug_name":          capitalize(f.Word()) + " " + capitalize(f.Word()),
			"generic_name":       fmt.Sprintf("Generic %d", i+1),
			"manufacturer":       f.RandomString(manufacturers),
			"drug_class":         f.RandomString(drugClasses),
			"category":           f.RandomString(categories),
			"unit_price":         round2(f.Float64Range(5, 150)),
			"cost_price":         round2(f.Float64Range(3, 100)),
			"stock_quantity":     int64(f.IntRange(0, 999)),
			"min_stock_level":    int64(f.IntRange(10, 49)),
			"max_stock_level":    int64(f.IntRange(500, 1999)),
			"expiry_date":        g.today().AddDate(0, 0, f.IntRange(30, 1094)).Format(model.DateLayout),
			"storage_conditions": f.RandomString(storage),
		})
	}
	return rs
}

// drugRefs reads up to maxDrugRefs drugs from the store, falling back to
// ids 1..20 with random prices when none are available
func (g *Generator) drugRefs(ctx context.Context) []drugRef {
	if g.store != nil {
		rs, err := g.store.ReadAll(ctx, model.EntityDrug.Table())
		switch {
		case err == nil && rs.Len() > 0:
			refs := make([]drugRef, 0, maxDrugRefs)
			for _, row := range rs.Rows() {
				id, ok := store.RowID(row)
				if !ok {
					continue
				}
				price, err := converter.ToFloat(row[string(model.ColUnitPrice)])
				if err != nil {
					price = g.faker.Float64Range(10, 100)
				}
				refs = append(refs, drugRef{id: id, price: price})
				if len(refs) == maxDrugRefs {
					break
				}
			}
			if len(refs) > 0 {
				return refs
			}
		case err != nil && !store.IsNotFound(err):
			g.logger.Warn("Could not read drugs for sample sales", zap.Error(err))
		}
	}

	refs := make([]drugRef, maxDrugRefs)
	for i := range refs {
		refs[i] = drugRef{id: int64(i + 1), price: g.faker.Float64Range(10, 100)}
	}
	return refs
}

func (g *Generator) sales(ctx context.Context, count int) *model.RecordSet {
	f := g.faker
	refs := g.drugRefs(ctx)
	start := g.today().AddDate(0, 0, -salesWindowDays)

	rs := model.NewRecordSet()
	for i := 0; i < count; i++ {
		ref := refs[f.IntRange(0, len(refs)-1)]
		quantity := f.IntRange(1, 19)
		discount := 0.0
		if f.Float64() > 0.7 {
			discount = round2(f.Float64Range(0, ref.price*0.2))
		}
		subtotal := ref.price * float64(quantity)
		tax := (subtotal - discount) * taxRate

		rs.Append(model.Row{
			"transaction_id": fmt.Sprintf("SALE-%05d", 10000+i),
			"drug_id":        converter.Describe(ref.id),
			"sale_date":      start.AddDate(0, 0, f.IntRange(0, salesWindowDays-1)).Format(model.DateLayout),
			"quantity":       int64(quantity),
			"unit_price":     round2(ref.price),
			"discount":       discount,
			"tax_amount":     round2(tax),
			"total_amount":   round2(subtotal - discount + tax),
			"pharmacy_id":    int64(f.IntRange(100, 109)),
			"pharmacy_name":  f.RandomString(pharmacies),
			"payment_method": f.RandomString(payments),
		})
	}
	return rs
}

func (g *Generator) patients(count int) *model.RecordSet {
	f := g.faker
	today := g.today()

	rs := model.NewRecordSet()
	for i := 0; i < count; i++ {
		dob := f.DateRange(today.AddDate(-90, 0, 0), today.AddDate(-18, 0, 0))
		dob = model.Date(dob)
		addr := f.Address()

		rs.Append(model.Row{
			"patient_code":      fmt.Sprintf("PAT%04d", 1000+i),
			"first_name":        f.FirstName(),
			"last_name":         f.LastName(),
			"date_of_birth":     dob.Format(model.DateLayout),
			"age":               int64(today.Sub(dob).Hours() / 24 / 365),
			"gender":            f.RandomString(genders),
			"email":             f.Email(),
			"phone":             f.Phone(),
			"address":           addr.Street,
			"city":              f.RandomString(cities),
			"state":             f.StateAbr(),
			"zip_code":          addr.Zip,
			"primary_condition": f.RandomString(conditions),
			"insurance_id":      fmt.Sprintf("INS%d", f.IntRange(10000, 99998)),
		})
	}
	return rs
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	return string(b)
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
