package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/weblog-normalizer/internal/weblog"
)

// StagingSuffix names the table a run writes into before it is swapped in.
const StagingSuffix = "_staging"

// IndexedColumns are indexed after the swap when present.
var IndexedColumns = []string{"is_bot", "browser", weblog.ColumnDate}

// Writer loads the normalized store into <table>_staging with COPY and swaps
// it over <table> in a single transaction on Finalize.
type Writer struct {
	pool    Pool
	table   string
	staging string
	logger  *zap.Logger

	schema  weblog.OutputSchema
	columns []string
	started bool
	rows    int64
}

// NewWriter constructs a Writer over an existing pool.
func NewWriter(pool Pool, table string, logger *zap.Logger) (*Writer, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "logs"
	}
	if !weblog.ValidTableName(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{pool: pool, table: table, staging: table + StagingSuffix, logger: logger}, nil
}

// Path names the published table.
func (w *Writer) Path() string { return "postgres:" + w.table }

// pgType maps an output column onto a Postgres type. Pass-through columns are
// stored as text regardless of their input type.
func pgType(col weblog.Column, passThrough bool) string {
	if passThrough {
		return "TEXT"
	}
	switch strings.ToUpper(col.DeclType) {
	case "INTEGER":
		return "SMALLINT"
	case "REAL":
		return "DOUBLE PRECISION"
	default:
		return "TEXT"
	}
}

// Write copies batch into the staging table, recreating it when first is true.
func (w *Writer) Write(ctx context.Context, batch weblog.NormalizedBatch, first bool) error {
	if first {
		if err := w.reset(ctx, batch.Schema); err != nil {
			return err
		}
	}
	if !w.started {
		return errors.New("write before the first batch")
	}
	if len(batch.Records) == 0 {
		return nil
	}
	width := w.schema.InputWidth
	src := pgx.CopyFromSlice(len(batch.Records), func(i int) ([]any, error) {
		values := batch.Records[i].Values()
		for j := 0; j < width; j++ {
			if values[j] != nil {
				values[j] = weblog.Text(values[j])
			}
		}
		return values, nil
	})
	n, err := w.pool.CopyFrom(ctx, pgx.Identifier{w.staging}, w.columns, src)
	if err != nil {
		return fmt.Errorf("copy batch at %d: %w", batch.Offset, err)
	}
	if n != int64(len(batch.Records)) {
		return fmt.Errorf("copy batch at %d: copied %d of %d rows", batch.Offset, n, len(batch.Records))
	}
	w.rows += n
	return nil
}

func (w *Writer) reset(ctx context.Context, schema weblog.OutputSchema) error {
	if len(schema.Columns) == 0 {
		return errors.New("output schema has no columns")
	}
	defs := make([]string, len(schema.Columns))
	names := make([]string, len(schema.Columns))
	for i, c := range schema.Columns {
		defs[i] = ident(c.Name) + " " + pgType(c, i < schema.InputWidth)
		names[i] = c.Name
	}
	if _, err := w.pool.Exec(ctx, "DROP TABLE IF EXISTS "+ident(w.staging)); err != nil {
		return fmt.Errorf("drop staging table: %w", err)
	}
	ddl := fmt.Sprintf("CREATE TABLE %s (%s)", ident(w.staging), strings.Join(defs, ", "))
	if _, err := w.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create staging table: %w", err)
	}
	w.schema = schema
	w.columns = names
	w.started = true
	w.rows = 0
	return nil
}

// Finalize swaps the staging table in, indexes it and returns its row count.
func (w *Writer) Finalize(ctx context.Context) (n int64, err error) {
	if !w.started {
		return 0, errors.New("finalize before the first batch")
	}
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin swap: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				w.logger.Warn("rollback swap", zap.Error(rbErr))
			}
		}
	}()

	stmts := []string{
		"DROP TABLE IF EXISTS " + ident(w.table),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", ident(w.staging), ident(w.table)),
	}
	present := make(map[string]struct{}, len(w.columns))
	for _, c := range w.columns {
		present[c] = struct{}{}
	}
	for _, col := range IndexedColumns {
		if _, ok := present[col]; ok {
			stmts = append(stmts, fmt.Sprintf("CREATE INDEX %s ON %s (%s)",
				ident("idx_"+w.table+"_"+col), ident(w.table), ident(col)))
		}
	}
	for _, stmt := range stmts {
		if _, err = tx.Exec(ctx, stmt); err != nil {
			return 0, fmt.Errorf("swap output: %w", err)
		}
	}
	if err = tx.QueryRow(ctx, "SELECT COUNT(*) FROM "+ident(w.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count output: %w", err)
	}
	if n != w.rows {
		err = fmt.Errorf("output holds %d rows, copied %d", n, w.rows)
		return 0, err
	}
	if err = tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit swap: %w", err)
	}
	w.started = false
	w.logger.Info("output published", zap.String("table", w.table), zap.Int64("rows", n))
	return n, nil
}

// Close releases the pool. An unfinished staging table is left in place.
func (w *Writer) Close() error {
	w.pool.Close()
	return nil
}
