package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JakeFAU/weblog-normalizer/internal/query"
	"github.com/JakeFAU/weblog-normalizer/internal/weblog"
)

// ErrUnknownColumn is returned when a projection or predicate names a column
// the table does not have.
var ErrUnknownColumn = errors.New("unknown column")

// Reader serves projection and predicate reads over the normalized store.
// Identifiers are checked against the table schema before they reach SQL and
// values are always bound as parameters.
type Reader struct {
	db      *sql.DB
	path    string
	table   string
	columns []weblog.Column
	byName  map[string]weblog.Column
}

// OpenReader opens the normalized store at path read-only.
func OpenReader(ctx context.Context, path, table string) (*Reader, error) {
	if !weblog.ValidTableName(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	db, err := sql.Open(DriverName, fileDSN(path, true))
	if err != nil {
		return nil, fmt.Errorf("open output %s: %w", path, err)
	}
	// A finalize renames a new file over path; recycling connections lets the
	// reader pick it up.
	db.SetConnMaxLifetime(time.Minute)
	cols, err := tableColumns(ctx, db, table)
	if err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}
	byName := make(map[string]weblog.Column, len(cols))
	for _, c := range cols {
		byName[c.Name] = c
	}
	return &Reader{db: db, path: path, table: table, columns: cols, byName: byName}, nil
}

// Columns returns the table's columns in order.
func (r *Reader) Columns() []weblog.Column {
	return append([]weblog.Column(nil), r.columns...)
}

// Ping checks the store is still readable.
func (r *Reader) Ping(ctx context.Context) error {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT 1 FROM "+quoteIdent(r.table)+" LIMIT 1").Scan(&n); err != nil &&
		!errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("ping %s: %w", r.path, err)
	}
	return nil
}

// Count returns the number of rows matching where.
func (r *Reader) Count(ctx context.Context, where []query.Predicate) (int64, error) {
	clause, args, err := r.where(where)
	if err != nil {
		return 0, err
	}
	var n int64
	q := "SELECT COUNT(*) FROM " + quoteIdent(r.table) + clause
	if err := r.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// ReadChunk returns up to limit rows matching where, starting at offset in
// storage order. An empty projection selects every column.
func (r *Reader) ReadChunk(
	ctx context.Context,
	projection []string,
	where []query.Predicate,
	offset, limit int64,
) ([][]any, error) {
	cols, err := r.project(projection)
	if err != nil {
		return nil, err
	}
	clause, args, err := r.where(where)
	if err != nil {
		return nil, err
	}
	exprs := make([]string, len(cols))
	for i, c := range cols {
		exprs[i] = selectExpr(c)
	}
	q := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY rowid LIMIT ? OFFSET ?",
		strings.Join(exprs, ", "), quoteIdent(r.table), clause)
	rows, err := r.db.QueryContext(ctx, q, append(args, limit, offset)...)
	if err != nil {
		return nil, fmt.Errorf("read chunk at %d: %w", offset, err)
	}
	defer rows.Close() //nolint:errcheck
	return scanRows(rows, len(cols), int(min(limit, maxPrealloc)))
}

func (r *Reader) project(names []string) ([]weblog.Column, error) {
	if len(names) == 0 {
		return r.Columns(), nil
	}
	out := make([]weblog.Column, len(names))
	for i, n := range names {
		c, ok := r.byName[n]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, n)
		}
		out[i] = c
	}
	return out, nil
}

func (r *Reader) where(preds []query.Predicate) (string, []any, error) {
	if len(preds) == 0 {
		return "", nil, nil
	}
	terms := make([]string, len(preds))
	args := make([]any, len(preds))
	for i, p := range preds {
		c, ok := r.byName[p.Column]
		if !ok {
			return "", nil, fmt.Errorf("%w: %q", ErrUnknownColumn, p.Column)
		}
		switch p.Op {
		case query.OpEq, query.OpNe, query.OpLt, query.OpLe, query.OpGt, query.OpGe:
		default:
			return "", nil, fmt.Errorf("%w: operator %q", query.ErrInvalidPredicate, p.Op)
		}
		terms[i] = fmt.Sprintf("%s %s ?", selectExpr(c), p.Op)
		args[i] = p.Value
	}
	return " WHERE " + strings.Join(terms, " AND "), args, nil
}

// Close releases the connection pool.
func (r *Reader) Close() error {
	if err := r.db.Close(); err != nil {
		return fmt.Errorf("close output reader: %w", err)
	}
	return nil
}
