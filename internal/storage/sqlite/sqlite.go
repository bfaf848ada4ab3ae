// Package sqlite reads access-log input stores and writes the normalized store
// as SQLite database files through the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/weblog-normalizer/internal/weblog"
)

// DriverName is the database/sql driver registered by modernc.org/sqlite.
const DriverName = "sqlite"

// ErrTableNotFound is returned when the requested table does not exist.
var ErrTableNotFound = errors.New("table not found")

// timeDeclTypes are the declared types the driver converts to time.Time on
// scan. Those columns are read back as text so pass-through values survive
// byte for byte.
var timeDeclTypes = map[string]struct{}{"DATE": {}, "DATETIME": {}, "TIMESTAMP": {}}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// selectExpr is the projection used to read col verbatim.
func selectExpr(col weblog.Column) string {
	q := quoteIdent(col.Name)
	if _, ok := timeDeclTypes[strings.ToUpper(strings.TrimSpace(col.DeclType))]; ok {
		return "CAST(" + q + " AS TEXT)"
	}
	return q
}

func fileDSN(path string, readOnly bool) string {
	escaped := strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23").Replace(path)
	dsn := "file:" + escaped + "?_pragma=busy_timeout(5000)"
	if readOnly {
		dsn += "&mode=ro"
	}
	return dsn
}

func tableColumns(ctx context.Context, db *sql.DB, table string) ([]weblog.Column, error) {
	rows, err := db.QueryContext(ctx, "PRAGMA table_info("+quoteIdent(table)+")")
	if err != nil {
		return nil, fmt.Errorf("table info %s: %w", table, err)
	}
	defer rows.Close() //nolint:errcheck

	var cols []weblog.Column
	for rows.Next() {
		var (
			cid     int
			name    string
			decl    sql.NullString
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &decl, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scan table info: %w", err)
		}
		cols = append(cols, weblog.Column{Name: name, DeclType: decl.String})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table info: %w", err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}
	return cols, nil
}

// scanRows reads every row of rows into a fresh []any of width n.
func scanRows(rows *sql.Rows, n int, hint int) ([][]any, error) {
	out := make([][]any, 0, hint)
	for rows.Next() {
		values := make([]any, n)
		ptrs := make([]any, n)
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// maxPrealloc caps the row slice capacity reserved before a read.
const maxPrealloc = 1 << 16
