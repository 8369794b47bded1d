package model

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrUnknownEntityType is returned when a name does not map to a known entity type
var ErrUnknownEntityType = errors.New("unknown entity type")

// EntityType selects the rule set applied to a batch
type EntityType string

const (
	EntityDrug    EntityType = "drug"
	EntitySale    EntityType = "sale"
	EntityPatient EntityType = "patient"
)

// AllEntityTypes returns the entity types in daily batch order
func AllEntityTypes() []EntityType {
	return []EntityType{EntityDrug, EntitySale, EntityPatient}
}

// ParseEntityType accepts both the singular and the table name ("drug", "drugs")
func ParseEntityType(s string) (EntityType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "drug", "drugs":
		return EntityDrug, nil
	case "sale", "sales":
		return EntitySale, nil
	case "patient", "patients":
		return EntityPatient, nil
	default:
		return "", errors.Wrapf(ErrUnknownEntityType, "%q", s)
	}
}

// Table returns the canonical store table for the entity
func (e EntityType) Table() string {
	switch e {
	case EntityDrug:
		return "drugs"
	case EntitySale:
		return "sales"
	case EntityPatient:
		return "patients"
	default:
		return ""
	}
}

// Valid reports whether e is one of the known entity types
func (e EntityType) Valid() bool {
	return e.Table() != ""
}

func (e EntityType) String() string {
	return string(e)
}
