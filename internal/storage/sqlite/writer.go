package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/weblog-normalizer/internal/weblog"
)

// PartialSuffix marks an output file that is still being written.
const PartialSuffix = ".partial"

// IndexedColumns are indexed on finalize when present in the output.
var IndexedColumns = []string{"is_bot", "browser", weblog.ColumnDate}

// Writer builds the normalized store in <path>.partial and renames it over
// path on Finalize, so readers only ever see a complete output.
type Writer struct {
	path    string
	partial string
	table   string
	logger  *zap.Logger

	db     *sql.DB
	schema weblog.OutputSchema
	insert string
	rows   int64
}

// NewWriter prepares a writer for the output file at path.
func NewWriter(path, table string, logger *zap.Logger) (*Writer, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("output path is required")
	}
	if !weblog.ValidTableName(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		path:    path,
		partial: path + PartialSuffix,
		table:   table,
		logger:  logger,
	}, nil
}

// Path is the final output location.
func (w *Writer) Path() string { return w.path }

// Write appends batch. When first is true the partial file is recreated from
// scratch with the batch's schema, discarding anything a previous run left.
func (w *Writer) Write(ctx context.Context, batch weblog.NormalizedBatch, first bool) error {
	if first {
		if err := w.reset(ctx, batch.Schema); err != nil {
			return err
		}
	}
	if w.db == nil {
		return errors.New("write before the first batch")
	}
	if len(batch.Records) == 0 {
		return nil
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch at %d: %w", batch.Offset, err)
	}
	stmt, err := tx.PrepareContext(ctx, w.insert)
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("prepare insert: %w", err)
	}
	for i, rec := range batch.Records {
		if _, err := stmt.ExecContext(ctx, rec.Values()...); err != nil {
			stmt.Close()  //nolint:errcheck
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("insert row %d of batch at %d: %w", i, batch.Offset, err)
		}
	}
	if err := stmt.Close(); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("close insert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch at %d: %w", batch.Offset, err)
	}
	w.rows += int64(len(batch.Records))
	return nil
}

func (w *Writer) reset(ctx context.Context, schema weblog.OutputSchema) error {
	if len(schema.Columns) == 0 {
		return errors.New("output schema has no columns")
	}
	if w.db != nil {
		if err := w.db.Close(); err != nil {
			w.logger.Warn("closing previous partial output", zap.Error(err))
		}
		w.db = nil
	}
	for _, p := range []string{w.partial, w.partial + "-journal"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove stale %s: %w", p, err)
		}
	}

	db, err := sql.Open(DriverName, fileDSN(w.partial, false))
	if err != nil {
		return fmt.Errorf("create output %s: %w", w.partial, err)
	}
	db.SetMaxOpenConns(1)

	defs := make([]string, len(schema.Columns))
	marks := make([]string, len(schema.Columns))
	for i, c := range schema.Columns {
		defs[i] = strings.TrimSpace(quoteIdent(c.Name) + " " + c.DeclType)
		marks[i] = "?"
	}
	ddl := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(w.table), strings.Join(defs, ", "))
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		db.Close() //nolint:errcheck
		return fmt.Errorf("create output table: %w", err)
	}

	w.db = db
	w.schema = schema
	w.rows = 0
	w.insert = fmt.Sprintf("INSERT INTO %s VALUES (%s)", quoteIdent(w.table), strings.Join(marks, ", "))
	w.logger.Debug("output created", zap.String("path", w.partial), zap.Int("columns", len(schema.Columns)))
	return nil
}

// Finalize indexes the output, checks the row count and atomically replaces
// the previous output. It returns the number of rows written.
func (w *Writer) Finalize(ctx context.Context) (int64, error) {
	if w.db == nil {
		return 0, errors.New("finalize before the first batch")
	}
	present := make(map[string]struct{}, len(w.schema.Columns))
	for _, c := range w.schema.Columns {
		present[c.Name] = struct{}{}
	}
	for _, col := range IndexedColumns {
		if _, ok := present[col]; !ok {
			continue
		}
		idx := fmt.Sprintf("CREATE INDEX %s ON %s (%s)",
			quoteIdent("idx_"+w.table+"_"+col), quoteIdent(w.table), quoteIdent(col))
		if _, err := w.db.ExecContext(ctx, idx); err != nil {
			return 0, fmt.Errorf("index %s: %w", col, err)
		}
	}

	var n int64
	if err := w.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(w.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count output: %w", err)
	}
	if n != w.rows {
		return 0, fmt.Errorf("output holds %d rows, wrote %d", n, w.rows)
	}

	if err := w.db.Close(); err != nil {
		return 0, fmt.Errorf("close output: %w", err)
	}
	w.db = nil
	if err := os.Rename(w.partial, w.path); err != nil {
		return 0, fmt.Errorf("publish output: %w", err)
	}
	w.logger.Info("output published", zap.String("path", w.path), zap.Int64("rows", n))
	return n, nil
}

// Close releases the partial output without publishing it.
func (w *Writer) Close() error {
	if w.db == nil {
		return nil
	}
	err := w.db.Close()
	w.db = nil
	if err != nil {
		return fmt.Errorf("close partial output: %w", err)
	}
	return nil
}
