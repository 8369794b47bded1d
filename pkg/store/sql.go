package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/medtrack/data-ingress/pkg/connector"
	"github.com/medtrack/data-ingress/pkg/converter"
	"github.com/medtrack/data-ingress/pkg/model"
)

// maxParams bounds the number of bind parameters in one INSERT statement
const maxParams = 30000

// SQLStore implements CanonicalStore on a relational database
type SQLStore struct {
	db      *sqlx.DB
	dialect converter.Dialect
	conv    *converter.TypeConverter
	logger  *zap.Logger
	timeout time.Duration
}

// NewSQLStore wraps db. driverName must be the database/sql driver the
// handle was opened with.
func NewSQLStore(db *sqlx.DB, dialect converter.Dialect, logger *zap.Logger) *SQLStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dialect == converter.DialectSQLite {
		sqlx.BindDriver(db.DriverName(), sqlx.QUESTION)
	}
	return &SQLStore{
		db:      db,
		dialect: dialect,
		conv:    converter.NewTypeConverter(logger),
		logger:  logger.Named("sql-store"),
		timeout: 60 * time.Second,
	}
}

// NewSQLStoreFromConnector builds a store over an open connector
func NewSQLStoreFromConnector(conn connector.DatabaseConnector, logger *zap.Logger) *SQLStore {
	return NewSQLStore(sqlx.NewDb(conn.DB(), conn.DriverName()), conn.Dialect(), logger)
}

// DB exposes the underlying handle
func (s *SQLStore) DB() *sqlx.DB {
	return s.db
}

func quote(name string) string {
	return pq.QuoteIdentifier(name)
}

// TableExists reports whether table is present in the current schema
func (s *SQLStore) TableExists(ctx context.Context, table string) (bool, error) {
	var query string
	switch s.dialect {
	case converter.DialectPostgres:
		query = `SELECT COUNT(*) FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_name = ?`
	default:
		query = `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`
	}

	var n int
	if err := s.db.GetContext(ctx, &n, s.db.Rebind(query), table); err != nil {
		return false, errors.Wrapf(err, "failed to check if table %s exists", table)
	}
	return n > 0, nil
}

// ReadAll reads a full table
func (s *SQLStore) ReadAll(ctx context.Context, table string) (*model.RecordSet, error) {
	exists, err := s.TableExists(ctx, table)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errors.Wrapf(ErrTableNotFound, "%s", table)
	}

	rows, err := s.db.QueryxContext(ctx, "SELECT * FROM "+quote(table))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read table %s", table)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read columns")
	}

	schema, _ := model.SchemaForTable(table)
	rs := model.NewRecordSet(columns...)
	for rows.Next() {
		raw := make(map[string]any, len(columns))
		if err := rows.MapScan(raw); err != nil {
			return nil, errors.Wrapf(err, "failed to scan row of %s", table)
		}
		row := make(model.Row, len(columns))
		for _, c := range columns {
			row[c] = s.fromSQL(schema, c, raw[c])
		}
		rs.Append(row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "error iterating %s", table)
	}

	if rs.HasColumn(string(model.ColID)) {
		all := rs.Rows()
		sort.SliceStable(all, func(i, j int) bool {
			a, _ := RowID(all[i])
			b, _ := RowID(all[j])
			return a < b
		})
	}

	s.logger.Debug("Read table", zap.String("table", table), zap.Int("rows", rs.Len()))
	return rs, nil
}

func (s *SQLStore) fromSQL(schema *model.EntitySchema, col string, v any) any {
	if schema != nil {
		if kind, ok := schema.KindOf(col); ok {
			return s.conv.FromSQLValue(v, kind)
		}
	}
	switch val := v.(type) {
	case []byte:
		return string(val)
	case int32:
		return int64(val)
	case int:
		return int64(val)
	case float32:
		return float64(val)
	case time.Time:
		return model.Date(val)
	default:
		return val
	}
}

// WriteChunk writes one chunk inside a transaction
func (s *SQLStore) WriteChunk(ctx context.Context, table string, rs *model.RecordSet, mode WriteMode) (err error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	md := model.MetadataFor(table, rs)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Error("Failed to rollback transaction",
					zap.String("table", table),
					zap.Error(rbErr),
					zap.NamedError("cause", err))
			}
		}
	}()

	if mode == ModeReplace {
		if _, err = tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quote(table)); err != nil {
			return errors.Wrapf(err, "failed to drop table %s", table)
		}
	}
	if _, err = tx.ExecContext(ctx, s.createTableSQL(md)); err != nil {
		return errors.Wrapf(err, "failed to create table %s", table)
	}

	if err = s.insertRows(ctx, tx, table, rs); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

// createTableSQL builds a CREATE TABLE IF NOT EXISTS statement with a surrogate id
func (s *SQLStore) createTableSQL(md *model.TableMetadata) string {
	defs := make([]string, 0, len(md.Columns))
	for _, col := range md.Columns {
		if col.IsPrimaryKey {
			if s.dialect == converter.DialectPostgres {
				defs = append(defs, quote(col.Name)+" BIGSERIAL PRIMARY KEY")
			} else {
				defs = append(defs, quote(col.Name)+" INTEGER PRIMARY KEY AUTOINCREMENT")
			}
			continue
		}
		nullability := "NULL"
		if !col.Nullable {
			nullability = "NOT NULL"
		}
		defs = append(defs, fmt.Sprintf("%s %s %s", quote(col.Name), converter.SQLType(col.Kind, s.dialect), nullability))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", quote(md.Table), strings.Join(defs, ",\n\t"))
}

// insertRows inserts rs in multi-row statements bounded by maxParams
func (s *SQLStore) insertRows(ctx context.Context, tx *sqlx.Tx, table string, rs *model.RecordSet) error {
	if rs.Len() == 0 || len(rs.Columns()) == 0 {
		return nil
	}

	columns := rs.Columns()
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quote(c)
	}
	rowPlaceholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"

	batchSize := maxParams / len(columns)
	if batchSize < 1 {
		batchSize = 1
	}

	for start := 0; start < rs.Len(); start += batchSize {
		end := start + batchSize
		if end > rs.Len() {
			end = rs.Len()
		}

		placeholders := make([]string, 0, end-start)
		args := make([]any, 0, (end-start)*len(columns))
		for i := start; i < end; i++ {
			placeholders = append(placeholders, rowPlaceholder)
			for _, v := range rs.Values(i) {
				args = append(args, converter.ToSQLValue(v))
			}
		}

		query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
			quote(table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
		if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
			return errors.Wrapf(err, "batch insert into %s failed", table)
		}
	}
	return nil
}

// ApplyFixes applies every fix and records it in the audit table within one transaction
func (s *SQLStore) ApplyFixes(ctx context.Context, fixes []model.FixRecord) (err error) {
	if len(fixes) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Error("Failed to rollback fixes",
					zap.Error(rbErr),
					zap.NamedError("cause", err))
			}
		}
	}()

	if _, err = tx.ExecContext(ctx, s.fixTableSQL()); err != nil {
		return errors.Wrap(err, "failed to create fix audit table")
	}

	audit, err := tx.PreparexContext(ctx, tx.Rebind(fmt.Sprintf(`
		INSERT INTO %s
		(table_name, row_id, field, old_value, new_value, fix_type, applied_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, quote(FixTable))))
	if err != nil {
		return errors.Wrap(err, "failed to prepare audit statement")
	}
	defer audit.Close()

	for _, fix := range fixes {
		var query string
		var args []any
		if fix.IsDelete() {
			query = fmt.Sprintf("DELETE FROM %s WHERE %s = ?", quote(fix.Table), quote(string(model.ColID)))
			args = []any{fix.RowID}
		} else {
			query = fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s = ?", quote(fix.Table), quote(fix.Field), quote(string(model.ColID)))
			args = []any{converter.ToSQLValue(fix.NewValue), fix.RowID}
		}

		res, execErr := tx.ExecContext(ctx, tx.Rebind(query), args...)
		if execErr != nil {
			err = errors.Wrapf(execErr, "failed to apply %q to %s id=%d", fix.FixType, fix.Table, fix.RowID)
			return err
		}
		if n, raErr := res.RowsAffected(); raErr == nil && n == 0 {
			err = errors.Wrapf(ErrRowNotFound, "%s id=%d", fix.Table, fix.RowID)
			return err
		}

		appliedAt := fix.AppliedAt
		if appliedAt.IsZero() {
			appliedAt = time.Now()
		}
		if _, err = audit.ExecContext(ctx,
			fix.Table,
			fix.RowID,
			fix.Field,
			converter.Describe(fix.OldValue),
			converter.Describe(fix.NewValue),
			string(fix.FixType),
			appliedAt.UTC().Format(time.RFC3339),
		); err != nil {
			return errors.Wrap(err, "failed to record fix")
		}
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit fixes")
	}

	s.logger.Info("Applied fixes", zap.Int("count", len(fixes)))
	return nil
}

func (s *SQLStore) fixTableSQL() string {
	id := "id INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.dialect == converter.DialectPostgres {
		id = "id BIGSERIAL PRIMARY KEY"
	}
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		%s,
		table_name TEXT NOT NULL,
		row_id BIGINT NOT NULL,
		field TEXT NOT NULL,
		old_value TEXT,
		new_value TEXT,
		fix_type TEXT NOT NULL,
		applied_at TEXT NOT NULL
	)`, quote(FixTable), id)
}
