// Package loader writes transformed record sets into the canonical store and
// keeps raw copies for audit.
package loader

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/medtrack/data-ingress/pkg/logging"
	"github.com/medtrack/data-ingress/pkg/model"
	"github.com/medtrack/data-ingress/pkg/store"
)

// DefaultChunkSize is used when no positive chunk size is configured
const DefaultChunkSize = 1000

// ErrLoadChunk marks a load that stopped at a failing chunk
var ErrLoadChunk = errors.New("chunk write failed")

// ChunkError reports the failing chunk of a partial load. Chunks before
// Index are persisted and are not rolled back.
type ChunkError struct {
	Table   string
	Index   int // 1-based index of the failing chunk
	Written int // rows persisted by earlier chunks
	Err     error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("load of %s failed at chunk %d after %d rows: %v", e.Table, e.Index, e.Written, e.Err)
}

// Unwrap returns the store error
func (e *ChunkError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrLoadChunk) match
func (e *ChunkError) Is(target error) bool { return target == ErrLoadChunk }

// Result summarizes a load
type Result struct {
	Table        string
	RowsWritten  int
	ChunksIssued int
}

// ChunkObserver is notified after every successful chunk write
type ChunkObserver func(table string, index, rows int)

// Loader writes record sets in fixed-size chunks
type Loader struct {
	store     store.Store
	chunkSize int
	observer  ChunkObserver
	logger    *zap.Logger
}

// New creates a loader writing to st
func New(st store.Store, chunkSize int, logger *zap.Logger) *Loader {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Loader{
		store:     st,
		chunkSize: chunkSize,
		logger:    logging.OrNop(logger).Named("loader"),
	}
}

// OnChunk registers an observer for written chunks
func (l *Loader) OnChunk(fn ChunkObserver) {
	l.observer = fn
}

// ChunkSize returns the configured chunk size
func (l *Loader) ChunkSize() int {
	return l.chunkSize
}

// Load writes rs to table in ceil(N/chunkSize) chunk writes. With
// ModeReplace the first chunk replaces the table and later chunks append;
// an empty replace load empties the table without issuing a chunk.
// A failing chunk stops the load with a *ChunkError.
func (l *Loader) Load(ctx context.Context, rs *model.RecordSet, table string, mode store.WriteMode) (Result, error) {
	res := Result{Table: table}
	total := rs.Len()
	l.logger.Info("Loading records",
		zap.String(logging.FieldTable, table),
		zap.Int(logging.FieldRows, total),
		zap.String("mode", string(mode)))

	if total == 0 && mode == store.ModeReplace {
		if err := l.store.WriteChunk(ctx, table, rs, store.ModeReplace); err != nil {
			return res, errors.Wrapf(err, "failed to empty table %s", table)
		}
		l.logger.Warn("No records to load, table emptied", zap.String(logging.FieldTable, table))
		return res, nil
	}

	for start, index := 0, 1; start < total; start, index = start+l.chunkSize, index+1 {
		end := start + l.chunkSize
		if end > total {
			end = total
		}
		chunkMode := store.ModeAppend
		if index == 1 {
			chunkMode = mode
		}

		res.ChunksIssued++
		if err := l.store.WriteChunk(ctx, table, rs.Slice(start, end), chunkMode); err != nil {
			l.logger.Error("Chunk write failed",
				zap.String(logging.FieldTable, table),
				zap.Int(logging.FieldChunk, index),
				zap.Int("rows_written", res.RowsWritten),
				zap.Error(err))
			return res, &ChunkError{Table: table, Index: index, Written: res.RowsWritten, Err: err}
		}
		res.RowsWritten += end - start
		l.logger.Info(fmt.Sprintf("Loaded chunk %d", index),
			zap.String(logging.FieldTable, table),
			zap.Int(logging.FieldChunk, index),
			zap.Int(logging.FieldRows, end-start))
		if l.observer != nil {
			l.observer(table, index, end-start)
		}
	}

	l.logger.Info("Successfully loaded records",
		zap.String(logging.FieldTable, table),
		zap.Int(logging.FieldRows, res.RowsWritten),
		zap.Int("chunks", res.ChunksIssued))
	return res, nil
}
