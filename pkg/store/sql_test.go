package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medtrack/data-ingress/pkg/connector"
	"github.com/medtrack/data-ingress/pkg/converter"
	"github.com/medtrack/data-ingress/pkg/model"
)

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLStore(sqlx.NewDb(db, "sqlmock"), converter.DialectSQLite, nil), mock
}

func TestSQLStoreWriteChunkReplace(t *testing.T) {
	s, mock := newMockStore(t)

	rs := model.NewRecordSet("drug_code", "unit_price")
	rs.Append(model.Row{"drug_code": "D1", "unit_price": 1.5})
	rs.Append(model.Row{"drug_code": "D2"})

	mock.ExpectBegin()
	mock.ExpectExec(`DROP TABLE IF EXISTS "drugs"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "drugs"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO "drugs" \("drug_code", "unit_price"\) VALUES \(\?, \?\), \(\?, \?\)`).
		WithArgs("D1", 1.5, "D2", nil).
		WillReturnResult(sqlmock.NewResult(2, 2))
	mock.ExpectCommit()

	require.NoError(t, s.WriteChunk(context.Background(), "drugs", rs, ModeReplace))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreWriteChunkRollsBack(t *testing.T) {
	s, mock := newMockStore(t)

	rs := model.NewRecordSet("drug_code")
	rs.Append(model.Row{"drug_code": "D1"})

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "drugs"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO "drugs"`).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := s.WriteChunk(context.Background(), "drugs", rs, ModeAppend)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreApplyFixesRollsBack(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "data_fixes"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectPrepare(`INSERT INTO "data_fixes"`)
	mock.ExpectExec(`UPDATE "drugs" SET "stock_quantity" = \? WHERE "id" = \?`).
		WithArgs(int64(0), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO "data_fixes"`).
		WithArgs("drugs", int64(1), "stock_quantity", "-5", "0", "Negative to zero", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`DELETE FROM "sales" WHERE "id" = \?`).
		WithArgs(int64(9)).
		WillReturnError(errors.New("locked"))
	mock.ExpectRollback()

	err := s.ApplyFixes(context.Background(), []model.FixRecord{
		{Table: "drugs", RowID: 1, Field: "stock_quantity", OldValue: int64(-5), NewValue: int64(0), FixType: model.FixNegativeToZero},
		{Table: "sales", RowID: 9, Field: model.FixFieldAll, OldValue: model.FixValueExists, NewValue: model.FixValueDeleted, FixType: model.FixRemoveOrphan},
	})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreReadAllMissingTable(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM sqlite_master`).
		WithArgs("drugs").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	_, err := s.ReadAll(context.Background(), "drugs")
	assert.True(t, IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	conn, err := connector.NewSQLiteConnector(ctx, ":memory:")
	require.NoError(t, err)
	defer conn.Close()

	s := NewSQLStoreFromConnector(conn, nil)

	expiry := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)
	rs := model.NewRecordSet("drug_code", "unit_price", "stock_quantity", "expiry_date", "shelf")
	rs.Append(model.Row{"drug_code": "D1", "unit_price": 2.5, "stock_quantity": int64(-5), "expiry_date": expiry, "shelf": "A1"})
	rs.Append(model.Row{"drug_code": "D2", "unit_price": 4.0, "stock_quantity": int64(7), "expiry_date": nil, "shelf": nil})

	require.NoError(t, s.WriteChunk(ctx, "drugs", rs.Slice(0, 1), ModeReplace))
	require.NoError(t, s.WriteChunk(ctx, "drugs", rs.Slice(1, 2), ModeAppend))

	got, err := s.ReadAll(ctx, "drugs")
	require.NoError(t, err)
	require.Equal(t, 2, got.Len())
	assert.Equal(t, int64(1), got.Value(0, "id"))
	assert.Equal(t, expiry, got.Value(0, "expiry_date"))
	assert.Equal(t, int64(-5), got.Value(0, "stock_quantity"))
	assert.Equal(t, "A1", got.Value(0, "shelf"))
	assert.Nil(t, got.Value(1, "expiry_date"))

	// second fix targets a missing row so nothing may change
	err = s.ApplyFixes(ctx, []model.FixRecord{
		{Table: "drugs", RowID: 1, Field: "stock_quantity", OldValue: int64(-5), NewValue: int64(0), FixType: model.FixNegativeToZero},
		{Table: "drugs", RowID: 99, Field: model.FixFieldAll, FixType: model.FixRemoveOrphan},
	})
	assert.ErrorIs(t, err, ErrRowNotFound)
	got, err = s.ReadAll(ctx, "drugs")
	require.NoError(t, err)
	assert.Equal(t, int64(-5), got.Value(0, "stock_quantity"))

	require.NoError(t, s.ApplyFixes(ctx, []model.FixRecord{
		{Table: "drugs", RowID: 1, Field: "stock_quantity", OldValue: int64(-5), NewValue: int64(0), FixType: model.FixNegativeToZero},
		{Table: "drugs", RowID: 2, Field: model.FixFieldAll, OldValue: model.FixValueExists, NewValue: model.FixValueDeleted, FixType: model.FixRemoveOrphan},
	}))

	got, err = s.ReadAll(ctx, "drugs")
	require.NoError(t, err)
	require.Equal(t, 1, got.Len())
	assert.Equal(t, int64(0), got.Value(0, "stock_quantity"))

	audit, err := s.ReadAll(ctx, FixTable)
	require.NoError(t, err)
	assert.Equal(t, 2, audit.Len())
	assert.Equal(t, "Negative to zero", audit.Value(0, "fix_type"))
}
