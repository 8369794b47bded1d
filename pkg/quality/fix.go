package quality

import (
	"context"

	"go.uber.org/zap"

	"github.com/medtrack/data-ingress/pkg/model"
	"github.com/medtrack/data-ingress/pkg/store"
)

// FixDataIssues repairs negative stock, orphaned sales and future-dated
// sales. Every fix is recorded before it is applied and all fixes are
// committed as one unit. On failure the store is unchanged and the result
// reports zero fixes.
func (m *Monitor) FixDataIssues(ctx context.Context) model.FixResult {
	m.logger.Info("Attempting to fix data issues")
	res := model.FixResult{Details: []model.FixRecord{}, Timestamp: m.now()}

	s, err := m.load(ctx)
	if err != nil {
		res.Error = err.Error()
		m.logger.Error("Failed to read tables for auto-fix", zap.Error(err))
		return res
	}

	fixes := m.planFixes(s)
	if len(fixes) > 0 {
		if err := m.store.ApplyFixes(ctx, fixes); err != nil {
			res.Error = err.Error()
			m.metrics.observeFixFailure()
			m.logger.Error("Auto-fix rolled back", zap.Int("planned", len(fixes)), zap.Error(err))
			return res
		}
	}

	res.Success = true
	res.FixesApplied = len(fixes)
	res.Details = fixes
	m.metrics.observeFixes(fixes)
	m.logger.Info("Applied fixes", zap.Int("fixes_applied", len(fixes)))
	return res
}

// planFixes builds the fix records without touching the store. Rows without
// a surrogate id cannot be addressed and are left alone.
func (m *Monitor) planFixes(s *snapshot) []model.FixRecord {
	now := m.now()
	today := m.today()
	var fixes []model.FixRecord

	for _, row := range s.drugs.Rows() {
		stock, ok := m.number(row, model.ColStockQuantity)
		if !ok || stock >= 0 {
			continue
		}
		id, ok := store.RowID(row)
		if !ok {
			continue
		}
		fixes = append(fixes, model.FixRecord{
			Table:     model.EntityDrug.Table(),
			RowID:     id,
			Field:     string(model.ColStockQuantity),
			OldValue:  row[string(model.ColStockQuantity)],
			NewValue:  int64(0),
			FixType:   model.FixNegativeToZero,
			AppliedAt: now,
		})
	}

	refs := drugRefs(s.drugs)
	deleted := make(map[int64]bool)
	for _, row := range s.sales.Rows() {
		id, ok := store.RowID(row)
		if !ok || !m.isOrphan(refs, row) {
			continue
		}
		deleted[id] = true
		fixes = append(fixes, model.FixRecord{
			Table:     model.EntitySale.Table(),
			RowID:     id,
			Field:     model.FixFieldAll,
			OldValue:  model.FixValueExists,
			NewValue:  model.FixValueDeleted,
			FixType:   model.FixRemoveOrphan,
			AppliedAt: now,
		})
	}

	for _, row := range s.sales.Rows() {
		d, ok := m.date(row, model.ColSaleDate)
		if !ok || !d.After(today) {
			continue
		}
		id, ok := store.RowID(row)
		if !ok || deleted[id] {
			continue
		}
		fixes = append(fixes, model.FixRecord{
			Table:     model.EntitySale.Table(),
			RowID:     id,
			Field:     string(model.ColSaleDate),
			OldValue:  d,
			NewValue:  today,
			FixType:   model.FixFutureDate,
			AppliedAt: now,
		})
	}
	return fixes
}
