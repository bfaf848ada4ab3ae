package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/JakeFAU/weblog-normalizer/internal/weblog"
)

// Source reads an input store read-only.
type Source struct {
	db     *sql.DB
	path   string
	schema weblog.Schema
	query  string
}

// OpenSource opens the table at path read-only and validates its schema.
func OpenSource(ctx context.Context, path, table string) (*Source, error) {
	if !weblog.ValidTableName(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	db, err := sql.Open(DriverName, fileDSN(path, true))
	if err != nil {
		return nil, fmt.Errorf("open input %s: %w", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("open input %s: %w", path, err)
	}
	cols, err := tableColumns(ctx, db, table)
	if err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}
	schema, err := weblog.NewSchema(table, cols)
	if err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("input %s: %w", path, err)
	}

	exprs := make([]string, len(cols))
	for i, c := range cols {
		exprs[i] = selectExpr(c)
	}
	return &Source{
		db:     db,
		path:   path,
		schema: schema,
		query: fmt.Sprintf("SELECT %s FROM %s ORDER BY rowid LIMIT ? OFFSET ?",
			strings.Join(exprs, ", "), quoteIdent(table)),
	}, nil
}

// Path is the file the source reads.
func (s *Source) Path() string { return s.path }

// Schema is the validated input schema.
func (s *Source) Schema() weblog.Schema { return s.schema }

// Count returns the number of input rows.
func (s *Source) Count(ctx context.Context) (int64, error) {
	var n int64
	q := "SELECT COUNT(*) FROM " + quoteIdent(s.schema.Table)
	if err := s.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", s.path, err)
	}
	return n, nil
}

// ReadBatch reads up to limit rows starting at offset in storage order and
// returns them sorted by timestamp. Rows with an unparseable date or time fail
// the whole batch.
func (s *Source) ReadBatch(ctx context.Context, offset, limit int64) (weblog.Batch, error) {
	rows, err := s.db.QueryContext(ctx, s.query, limit, offset)
	if err != nil {
		return weblog.Batch{}, fmt.Errorf("read batch at %d: %w", offset, err)
	}
	defer rows.Close() //nolint:errcheck

	values, err := scanRows(rows, len(s.schema.Columns), int(min(limit, maxPrealloc)))
	if err != nil {
		return weblog.Batch{}, fmt.Errorf("read batch at %d: %w", offset, err)
	}
	records := make([]weblog.RawLogRecord, len(values))
	for i, v := range values {
		rec, err := s.schema.Record(v)
		if err != nil {
			return weblog.Batch{}, fmt.Errorf("row %d: %w", offset+int64(i), err)
		}
		records[i] = rec
	}
	return weblog.Batch{
		Offset:  offset,
		Schema:  s.schema,
		Records: weblog.SortByTimestamp(records),
	}, nil
}

// Close releases the connection pool.
func (s *Source) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close input %s: %w", s.path, err)
	}
	return nil
}
