package weblog

import (
	"errors"
	"fmt"
)

// Input column names the pipeline interprets.
const (
	ColumnDate      = "date"
	ColumnTime      = "time"
	ColumnClientIP  = "c-ip"
	ColumnUserAgent = "cs(User-Agent)"
)

var (
	// ErrMissingColumn reports an input table without one of the interpreted columns.
	ErrMissingColumn = errors.New("required column missing")
	// ErrColumnCollision reports an input column that shadows a derived output column.
	ErrColumnCollision = errors.New("input column collides with derived column")
)

// Column describes one table column.
type Column struct {
	Name     string
	DeclType string
}

// ClassificationColumns are appended to every output row, in Classification field order.
var ClassificationColumns = []Column{
	{Name: "browser", DeclType: "TEXT"},
	{Name: "browser_version", DeclType: "TEXT"},
	{Name: "os", DeclType: "TEXT"},
	{Name: "os_version", DeclType: "TEXT"},
	{Name: "device", DeclType: "TEXT"},
	{Name: "is_mobile", DeclType: "INTEGER"},
	{Name: "is_pc", DeclType: "INTEGER"},
	{Name: "is_bot", DeclType: "INTEGER"},
}

// GeoColumns follow the classification columns in every output row.
var GeoColumns = []Column{
	{Name: "lat", DeclType: "REAL"},
	{Name: "lon", DeclType: "REAL"},
	{Name: "city", DeclType: "TEXT"},
	{Name: "country", DeclType: "TEXT"},
}

// Schema is the shape of the input table.
type Schema struct {
	Table   string
	Columns []Column

	dateIdx, timeIdx, ipIdx, uaIdx int
}

// NewSchema validates the column list and locates the interpreted columns.
func NewSchema(table string, cols []Column) (Schema, error) {
	s := Schema{Table: table, Columns: append([]Column(nil), cols...)}
	derived := make(map[string]struct{}, len(ClassificationColumns)+len(GeoColumns))
	for _, c := range ClassificationColumns {
		derived[c.Name] = struct{}{}
	}
	for _, c := range GeoColumns {
		derived[c.Name] = struct{}{}
	}
	idx := map[string]int{}
	for i, c := range s.Columns {
		if _, ok := derived[c.Name]; ok {
			return Schema{}, fmt.Errorf("%w: %q", ErrColumnCollision, c.Name)
		}
		if _, seen := idx[c.Name]; !seen {
			idx[c.Name] = i
		}
	}
	for _, name := range []string{ColumnDate, ColumnTime, ColumnClientIP, ColumnUserAgent} {
		if _, ok := idx[name]; !ok {
			return Schema{}, fmt.Errorf("%w: %q in table %q", ErrMissingColumn, name, table)
		}
	}
	s.dateIdx = idx[ColumnDate]
	s.timeIdx = idx[ColumnTime]
	s.ipIdx = idx[ColumnClientIP]
	s.uaIdx = idx[ColumnUserAgent]
	return s, nil
}

// Names returns the column names in table order.
func (s Schema) Names() []string {
	out := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = c.Name
	}
	return out
}

// Record builds a RawLogRecord from a row of values aligned with the schema.
func (s Schema) Record(values []any) (RawLogRecord, error) {
	if len(values) != len(s.Columns) {
		return RawLogRecord{}, fmt.Errorf("row has %d values, schema has %d columns", len(values), len(s.Columns))
	}
	ts, err := ParseTimestamp(values[s.dateIdx], values[s.timeIdx])
	if err != nil {
		return RawLogRecord{}, err
	}
	return RawLogRecord{
		Values:    values,
		Date:      ts.DateText,
		Time:      ts.TimeText,
		ClientIP:  Text(values[s.ipIdx]),
		UserAgent: Text(values[s.uaIdx]),
		Timestamp: ts,
	}, nil
}

// Output derives the output schema: input columns, classification, then geo.
func (s Schema) Output() OutputSchema {
	cols := make([]Column, 0, len(s.Columns)+len(ClassificationColumns)+len(GeoColumns))
	cols = append(cols, s.Columns...)
	cols = append(cols, ClassificationColumns...)
	cols = append(cols, GeoColumns...)
	return OutputSchema{Columns: cols, InputWidth: len(s.Columns)}
}

// OutputSchema is the column layout of the normalized store.
type OutputSchema struct {
	Columns []Column
	// InputWidth is the number of leading pass-through columns.
	InputWidth int
}

// Names returns the output column names in order.
func (o OutputSchema) Names() []string {
	out := make([]string, len(o.Columns))
	for i, c := range o.Columns {
		out[i] = c.Name
	}
	return out
}
