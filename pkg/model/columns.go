package model

import "github.com/cockroachdb/errors"

// Column is a canonical column name
type Column string

// Surrogate key assigned by the canonical store
const ColID Column = "id"

// Drug columns
const (
	ColDrugCode      Column = "drug_code"
	ColDrugName      Column = "drug_name"
	ColGenericName   Column = "generic_name"
	ColManufacturer  Column = "manufacturer"
	ColCategory      Column = "category"
	ColUnitPrice     Column = "unit_price"
	ColStockQuantity Column = "stock_quantity"
	ColMinStockLevel Column = "min_stock_level"
	ColMaxStockLevel Column = "max_stock_level"
	ColExpiryDate    Column = "expiry_date"
	ColStockValue    Column = "stock_value"
	ColDaysToExpiry  Column = "days_to_expiry"
)

// Sale columns
const (
	ColTransactionID Column = "transaction_id"
	ColSaleDate      Column = "sale_date"
	ColDrugID        Column = "drug_id"
	ColQuantity      Column = "quantity"
	ColTotalAmount   Column = "total_amount"
	ColDiscount      Column = "discount"
	ColTaxAmount     Column = "tax_amount"
	ColPharmacyName  Column = "pharmacy_name"
	ColPaymentMethod Column = "payment_method"
	ColYear          Column = "year"
	ColMonth         Column = "month"
	ColDay           Column = "day"
	ColDayOfWeek     Column = "day_of_week"
)

// Patient columns
const (
	ColPatientCode      Column = "patient_code"
	ColFirstName        Column = "first_name"
	ColLastName         Column = "last_name"
	ColDateOfBirth      Column = "date_of_birth"
	ColGender           Column = "gender"
	ColEmail            Column = "email"
	ColPhone            Column = "phone"
	ColPrimaryCondition Column = "primary_condition"
	ColInsuranceID      Column = "insurance_id"
	ColAge              Column = "age"
	ColCreatedAt        Column = "created_at"
)

func (c Column) String() string { return string(c) }

// ColumnKind is the scalar type a canonical column is coerced to
type ColumnKind int

const (
	KindString ColumnKind = iota
	KindInteger
	KindFloat
	KindDate
	KindBool
)

func (k ColumnKind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindDate:
		return "date"
	case KindBool:
		return "bool"
	default:
		return "string"
	}
}

// EntitySchema is the rule set for one entity type: how raw columns are
// renamed, what each canonical column holds, and which fields the
// validator and the quality monitor look at.
type EntitySchema struct {
	Entity EntityType
	// Columns lists canonical and derived columns in output order
	Columns  []Column
	Aliases  map[string]Column
	Kinds    map[Column]ColumnKind
	Required []Column
	Numeric  []Column
	Dates    []Column
}

// Resolve maps a raw column name to its canonical column. Canonical names
// resolve to themselves so that already normalized input is stable.
func (s *EntitySchema) Resolve(raw string) (Column, bool) {
	if c, ok := s.Aliases[raw]; ok {
		return c, true
	}
	if _, ok := s.Kinds[Column(raw)]; ok {
		return Column(raw), true
	}
	return "", false
}

// KindOf returns the kind of a canonical column
func (s *EntitySchema) KindOf(col string) (ColumnKind, bool) {
	k, ok := s.Kinds[Column(col)]
	return k, ok
}

// IsRequired reports whether col must be non-null
func (s *EntitySchema) IsRequired(col Column) bool {
	for _, r := range s.Required {
		if r == col {
			return true
		}
	}
	return false
}

// RequiredNames returns the required columns as strings
func (s *EntitySchema) RequiredNames() []string {
	out := make([]string, len(s.Required))
	for i, c := range s.Required {
		out[i] = string(c)
	}
	return out
}

var schemas = map[EntityType]*EntitySchema{
	EntityDrug: {
		Entity: EntityDrug,
		Columns: []Column{
			ColDrugCode, ColDrugName, ColGenericName, ColManufacturer, ColCategory,
			ColUnitPrice, ColStockQuantity, ColMinStockLevel, ColMaxStockLevel,
			ColExpiryDate, ColStockValue, ColDaysToExpiry,
		},
		Aliases: map[string]Column{
			"DrugCode":     ColDrugCode,
			"Drug_ID":      ColDrugCode,
			"DrugName":     ColDrugName,
			"Product_Name": ColDrugName,
			"GenericName":  ColGenericName,
			"Manufacturer": ColManufacturer,
			"MFR":          ColManufacturer,
			"Category":     ColCategory,
			"UnitPrice":    ColUnitPrice,
			"Stock":        ColStockQuantity,
			"ExpiryDate":   ColExpiryDate,
		},
		Kinds: map[Column]ColumnKind{
			ColID:            KindInteger,
			ColDrugCode:      KindString,
			ColDrugName:      KindString,
			ColGenericName:   KindString,
			ColManufacturer:  KindString,
			ColCategory:      KindString,
			ColUnitPrice:     KindFloat,
			ColStockQuantity: KindInteger,
			ColMinStockLevel: KindInteger,
			ColMaxStockLevel: KindInteger,
			ColExpiryDate:    KindDate,
			ColStockValue:    KindFloat,
			ColDaysToExpiry:  KindInteger,
		},
		Required: []Column{ColDrugCode, ColDrugName, ColManufacturer, ColUnitPrice},
		Numeric:  []Column{ColUnitPrice, ColStockQuantity},
		Dates:    []Column{ColExpiryDate},
	},
	EntitySale: {
		Entity: EntitySale,
		Columns: []Column{
			ColTransactionID, ColSaleDate, ColDrugID, ColQuantity, ColUnitPrice,
			ColTotalAmount, ColDiscount, ColTaxAmount, ColPharmacyName, ColPaymentMethod,
			ColYear, ColMonth, ColDay, ColDayOfWeek,
		},
		Aliases: map[string]Column{
			"TransactionID": ColTransactionID,
			"SaleDate":      ColSaleDate,
			"DrugID":        ColDrugID,
			"Quantity":      ColQuantity,
			"Price":         ColUnitPrice,
			"Total":         ColTotalAmount,
			"Discount":      ColDiscount,
			"Pharmacy":      ColPharmacyName,
			"PaymentMethod": ColPaymentMethod,
		},
		Kinds: map[Column]ColumnKind{
			ColID:            KindInteger,
			ColTransactionID: KindString,
			ColSaleDate:      KindDate,
			ColDrugID:        KindString,
			ColQuantity:      KindInteger,
			ColUnitPrice:     KindFloat,
			ColTotalAmount:   KindFloat,
			ColDiscount:      KindFloat,
			ColTaxAmount:     KindFloat,
			ColPharmacyName:  KindString,
			ColPaymentMethod: KindString,
			ColYear:          KindInteger,
			ColMonth:         KindInteger,
			ColDay:           KindInteger,
			ColDayOfWeek:     KindString,
		},
		Required: []Column{ColTransactionID, ColDrugID, ColSaleDate, ColQuantity},
		Numeric:  []Column{ColQuantity, ColUnitPrice, ColTotalAmount},
		Dates:    []Column{ColSaleDate},
	},
	EntityPatient: {
		Entity: EntityPatient,
		Columns: []Column{
			ColPatientCode, ColFirstName, ColLastName, ColDateOfBirth, ColGender,
			ColEmail, ColPhone, ColPrimaryCondition, ColInsuranceID, ColAge, ColCreatedAt,
		},
		Aliases: map[string]Column{
			"PatientID": ColPatientCode,
			"FirstName": ColFirstName,
			"LastName":  ColLastName,
			"DOB":       ColDateOfBirth,
			"Gender":    ColGender,
			"Email":     ColEmail,
			"Phone":     ColPhone,
			"Condition": ColPrimaryCondition,
			"Insurance": ColInsuranceID,
		},
		Kinds: map[Column]ColumnKind{
			ColID:               KindInteger,
			ColPatientCode:      KindString,
			ColFirstName:        KindString,
			ColLastName:         KindString,
			ColDateOfBirth:      KindDate,
			ColGender:           KindString,
			ColEmail:            KindString,
			ColPhone:            KindString,
			ColPrimaryCondition: KindString,
			ColInsuranceID:      KindString,
			ColAge:              KindInteger,
			ColCreatedAt:        KindDate,
		},
		Required: []Column{ColFirstName, ColLastName, ColDateOfBirth},
		Numeric:  []Column{ColAge},
		Dates:    []Column{ColDateOfBirth},
	},
}

// SchemaFor returns the rule set for an entity type
func SchemaFor(e EntityType) (*EntitySchema, error) {
	s, ok := schemas[e]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownEntityType, "%q", string(e))
	}
	return s, nil
}

// SchemaForTable returns the rule set whose canonical table is name
func SchemaForTable(name string) (*EntitySchema, bool) {
	for e, s := range schemas {
		if e.Table() == name {
			return s, true
		}
	}
	return nil, false
}
