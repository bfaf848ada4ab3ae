package api

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/weblog-normalizer/internal/query"
	"github.com/JakeFAU/weblog-normalizer/internal/storage/sqlite"
	"github.com/JakeFAU/weblog-normalizer/internal/weblog"
)

// tableReader is an in-memory RowReader supporting equality predicates.
type tableReader struct {
	mu      sync.Mutex
	columns []weblog.Column
	rows    [][]any
	pingErr error
	readErr error
}

func newTableReader(names []string, rows ...[]any) *tableReader {
	cols := make([]weblog.Column, len(names))
	for i, n := range names {
		cols[i] = weblog.Column{Name: n, DeclType: "TEXT"}
	}
	return &tableReader{columns: cols, rows: rows}
}

func (t *tableReader) Columns() []weblog.Column { return t.columns }

func (t *tableReader) Ping(context.Context) error { return t.pingErr }

func (t *tableReader) index(name string) (int, error) {
	for i, c := range t.columns {
		if c.Name == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", sqlite.ErrUnknownColumn, name)
}

func (t *tableReader) match(where []query.Predicate) ([][]any, error) {
	out := make([][]any, 0, len(t.rows))
	for _, row := range t.rows {
		keep := true
		for _, p := range where {
			i, err := t.index(p.Column)
			if err != nil {
				return nil, err
			}
			if p.Op != query.OpEq {
				return nil, fmt.Errorf("%w: operator %q", query.ErrInvalidPredicate, p.Op)
			}
			if weblog.Text(row[i]) != p.Value {
				keep = false
			}
		}
		if keep {
			out = append(out, row)
		}
	}
	return out, nil
}

func (t *tableReader) Count(_ context.Context, where []query.Predicate) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rows, err := t.match(where)
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

func (t *tableReader) ReadChunk(
	_ context.Context,
	projection []string,
	where []query.Predicate,
	offset, limit int64,
) ([][]any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.readErr != nil {
		return nil, t.readErr
	}
	rows, err := t.match(where)
	if err != nil {
		return nil, err
	}
	idx := make([]int, len(projection))
	for i, name := range projection {
		if idx[i], err = t.index(name); err != nil {
			return nil, err
		}
	}
	out := [][]any{}
	for n := offset; n < int64(len(rows)) && n < offset+limit; n++ {
		proj := make([]any, len(idx))
		for i, j := range idx {
			proj[i] = rows[n][j]
		}
		out = append(out, proj)
	}
	return out, nil
}
