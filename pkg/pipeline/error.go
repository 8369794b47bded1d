package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/medtrack/data-ingress/pkg/extractor"
	"github.com/medtrack/data-ingress/pkg/loader"
	"github.com/medtrack/data-ingress/pkg/model"
)

// ErrorCategory classifies stage failures of an entity run
type ErrorCategory int

const (
	ErrorCategoryNone ErrorCategory = iota
	ErrorCategorySourceMissing
	ErrorCategorySourceUnreadable
	ErrorCategoryUnsupportedSource
	ErrorCategoryUnknownEntity
	ErrorCategoryPartialLoad
	ErrorCategoryCanceled
	ErrorCategoryStore
)

// String returns a string representation of the error category
func (ec ErrorCategory) String() string {
	switch ec {
	case ErrorCategoryNone:
		return "None"
	case ErrorCategorySourceMissing:
		return "SourceMissing"
	case ErrorCategorySourceUnreadable:
		return "SourceUnreadable"
	case ErrorCategoryUnsupportedSource:
		return "UnsupportedSource"
	case ErrorCategoryUnknownEntity:
		return "UnknownEntity"
	case ErrorCategoryPartialLoad:
		return "PartialLoad"
	case ErrorCategoryCanceled:
		return "Canceled"
	case ErrorCategoryStore:
		return "Store"
	default:
		return fmt.Sprintf("Unknown(%d)", ec)
	}
}

// Outcome maps the category onto a daily batch outcome. A missing or
// unreadable source skips the entity; everything else fails it.
func (ec ErrorCategory) Outcome() model.EntityOutcome {
	switch ec {
	case ErrorCategoryNone:
		return model.OutcomeSuccess
	case ErrorCategorySourceMissing, ErrorCategorySourceUnreadable:
		return model.OutcomeSkipped
	default:
		return model.OutcomeFailed
	}
}

// CategorizeError determines the category of a stage error
func CategorizeError(err error) ErrorCategory {
	switch {
	case err == nil:
		return ErrorCategoryNone
	case errors.Is(err, extractor.ErrSourceNotFound):
		return ErrorCategorySourceMissing
	case errors.Is(err, extractor.ErrStructuralRead):
		return ErrorCategorySourceUnreadable
	case errors.Is(err, extractor.ErrUnsupportedSource):
		return ErrorCategoryUnsupportedSource
	case errors.Is(err, model.ErrUnknownEntityType):
		return ErrorCategoryUnknownEntity
	case errors.Is(err, loader.ErrLoadChunk):
		return ErrorCategoryPartialLoad
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrorCategoryCanceled
	default:
		return ErrorCategoryStore
	}
}

// ErrorRecord represents the failure of one entity run
type ErrorRecord struct {
	Category  ErrorCategory
	Entity    model.EntityType
	Stage     State
	Error     error
	Message   string // Derived from Error but stored for serialization
	Timestamp time.Time
}

// NewErrorRecord categorizes err and stamps it
func NewErrorRecord(err error, entity model.EntityType, stage State, now time.Time) ErrorRecord {
	r := ErrorRecord{
		Category:  CategorizeError(err),
		Entity:    entity,
		Stage:     stage,
		Error:     err,
		Timestamp: now,
	}
	if err != nil {
		r.Message = err.Error()
	}
	return r
}

// String returns a formatted error message
func (r ErrorRecord) String() string {
	return fmt.Sprintf("[%s] Entity: %s Stage: %s Error: %s", r.Category, r.Entity, r.Stage, r.Message)
}
