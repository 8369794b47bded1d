package pipeline

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"

	"github.com/medtrack/data-ingress/pkg/extractor"
	"github.com/medtrack/data-ingress/pkg/loader"
	"github.com/medtrack/data-ingress/pkg/model"
)

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		err      error
		category ErrorCategory
		outcome  model.EntityOutcome
	}{
		{nil, ErrorCategoryNone, model.OutcomeSuccess},
		{errors.Wrap(extractor.ErrSourceNotFound, "drugs.csv"), ErrorCategorySourceMissing, model.OutcomeSkipped},
		{errors.Wrap(extractor.ErrStructuralRead, "no columns"), ErrorCategorySourceUnreadable, model.OutcomeSkipped},
		{extractor.ErrUnsupportedSource, ErrorCategoryUnsupportedSource, model.OutcomeFailed},
		{errors.Wrap(model.ErrUnknownEntityType, "x"), ErrorCategoryUnknownEntity, model.OutcomeFailed},
		{&loader.ChunkError{Table: "sales", Index: 2, Err: errors.New("boom")}, ErrorCategoryPartialLoad, model.OutcomeFailed},
		{context.Canceled, ErrorCategoryCanceled, model.OutcomeFailed},
		{errors.New("disk I/O error"), ErrorCategoryStore, model.OutcomeFailed},
	}
	for _, tt := range tests {
		t.Run(tt.category.String(), func(t *testing.T) {
			cat := CategorizeError(tt.err)
			assert.Equal(t, tt.category, cat)
			assert.Equal(t, tt.outcome, cat.Outcome())
		})
	}
}

func TestStateTransitions(t *testing.T) {
	assert.True(t, StateIdle.CanTransition(StateExtracting))
	assert.True(t, StateTransforming.CanTransition(StateLoading))
	assert.True(t, StateLoading.CanTransition(StateDone))
	assert.True(t, StateValidating.CanTransition(StateFailed))
	assert.False(t, StateIdle.CanTransition(StateLoading))
	assert.False(t, StateDone.CanTransition(StateFailed))
	assert.False(t, StateFailed.CanTransition(StateExtracting))

	sm := newStateMachine()
	assert.NoError(t, sm.to(StateExtracting))
	assert.Error(t, sm.to(StateArchiving))
	assert.Equal(t, StateExtracting, sm.current)
}
