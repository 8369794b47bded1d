package model

import "time"

// FixType names an auto-remediation pattern
type FixType string

const (
	FixNegativeToZero FixType = "Negative to zero"
	FixRemoveOrphan   FixType = "Remove orphaned record"
	FixFutureDate     FixType = "Future date correction"
)

// Field and values recorded for row deletions
const (
	FixFieldAll     = "all"
	FixValueExists  = "Exists"
	FixValueDeleted = "Deleted"
)

// FixRecord is a single repair recorded before it is applied.
// A FixRemoveOrphan record deletes the whole row; every other type
// sets Field to NewValue.
type FixRecord struct {
	Table     string    `json:"table" yaml:"table"`
	RowID     int64     `json:"id" yaml:"id"`
	Field     string    `json:"field" yaml:"field"`
	OldValue  any       `json:"old_value" yaml:"old_value"`
	NewValue  any       `json:"new_value" yaml:"new_value"`
	FixType   FixType   `json:"fix_type" yaml:"fix_type"`
	AppliedAt time.Time `json:"applied_at" yaml:"applied_at"`
}

// IsDelete reports whether the fix removes the row
func (f FixRecord) IsDelete() bool {
	return f.FixType == FixRemoveOrphan
}

// FixResult is returned by an auto-remediation pass
type FixResult struct {
	Success      bool        `json:"success" yaml:"success"`
	FixesApplied int         `json:"fixes_applied" yaml:"fixes_applied"`
	Details      []FixRecord `json:"details" yaml:"details"`
	Timestamp    time.Time   `json:"timestamp" yaml:"timestamp"`
	Error        string      `json:"error,omitempty" yaml:"error,omitempty"`
}
