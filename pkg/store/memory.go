package store

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/medtrack/data-ingress/pkg/model"
)

// MemoryStore keeps canonical tables in memory. It is used by tests and by
// dry runs of the CLI.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[string]*model.RecordSet
	nextID map[string]int64
	fixes  []model.FixRecord
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables: make(map[string]*model.RecordSet),
		nextID: make(map[string]int64),
	}
}

// ReadAll returns a copy of the table
func (m *MemoryStore) ReadAll(_ context.Context, table string) (*model.RecordSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rs, ok := m.tables[table]
	if !ok {
		return nil, errors.Wrapf(ErrTableNotFound, "%s", table)
	}
	return rs.Clone(), nil
}

// WriteChunk appends or replaces rows
func (m *MemoryStore) WriteChunk(_ context.Context, table string, rs *model.RecordSet, mode WriteMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	target, ok := m.tables[table]
	if mode == ModeReplace || !ok {
		target = model.NewRecordSet(append([]string{string(model.ColID)}, rs.Columns()...)...)
		m.tables[table] = target
		if mode == ModeReplace {
			m.nextID[table] = 0
		}
	}

	for _, row := range rs.Rows() {
		cp := make(model.Row, len(row)+1)
		for k, v := range row {
			cp[k] = v
		}
		if id, ok := RowID(cp); ok {
			if id > m.nextID[table] {
				m.nextID[table] = id
			}
			cp[string(model.ColID)] = id
		} else {
			m.nextID[table]++
			cp[string(model.ColID)] = m.nextID[table]
		}
		target.Append(cp)
	}
	return nil
}

// ApplyFixes applies all fixes or none
func (m *MemoryStore) ApplyFixes(_ context.Context, fixes []model.FixRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	staged := make(map[string]*model.RecordSet, len(m.tables))
	for name, rs := range m.tables {
		staged[name] = rs.Clone()
	}

	for _, fix := range fixes {
		rs, ok := staged[fix.Table]
		if !ok {
			return errors.Wrapf(ErrTableNotFound, "%s", fix.Table)
		}
		idx := indexOfID(rs, fix.RowID)
		if idx < 0 {
			return errors.Wrapf(ErrRowNotFound, "%s id=%d", fix.Table, fix.RowID)
		}
		if fix.IsDelete() {
			staged[fix.Table] = without(rs, idx)
			continue
		}
		if !rs.HasColumn(fix.Field) {
			return errors.Newf("table %s has no column %q", fix.Table, fix.Field)
		}
		rs.Row(idx)[fix.Field] = fix.NewValue
	}

	m.tables = staged
	m.fixes = append(m.fixes, fixes...)
	return nil
}

// AppliedFixes returns the fixes committed so far
func (m *MemoryStore) AppliedFixes() []model.FixRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.FixRecord, len(m.fixes))
	copy(out, m.fixes)
	return out
}

func indexOfID(rs *model.RecordSet, id int64) int {
	for i, row := range rs.Rows() {
		if rid, ok := RowID(row); ok && rid == id {
			return i
		}
	}
	return -1
}

func without(rs *model.RecordSet, idx int) *model.RecordSet {
	out := model.NewRecordSet(rs.Columns()...)
	for i, row := range rs.Rows() {
		if i != idx {
			out.Append(row)
		}
	}
	return out
}
