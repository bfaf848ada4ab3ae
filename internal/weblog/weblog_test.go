package weblog

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func accessLogColumns() []Column {
	return []Column{
		{Name: "date", DeclType: "TEXT"},
		{Name: "time", DeclType: "TEXT"},
		{Name: "c-ip", DeclType: "TEXT"},
		{Name: "cs(User-Agent)", DeclType: "TEXT"},
		{Name: "cs-uri-stem", DeclType: "TEXT"},
		{Name: "sc-status", DeclType: "INTEGER"},
	}
}

func TestNewSchemaLocatesColumns(t *testing.T) {
	t.Parallel()

	s, err := NewSchema("logs", accessLogColumns())
	require.NoError(t, err)

	rec, err := s.Record([]any{"2024-01-01", "00:00:01", "1.2.3.4", nil, "/", int64(200)})
	require.NoError(t, err)
	assert.Equal(t, "1.2.3.4", rec.ClientIP)
	assert.Equal(t, "", rec.UserAgent)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 1, 0, time.UTC), rec.Timestamp.Time)
	assert.Equal(t, int64(200), rec.Values[5])
}

func TestNewSchemaRejectsMissingAndCollidingColumns(t *testing.T) {
	t.Parallel()

	_, err := NewSchema("logs", accessLogColumns()[:3])
	require.True(t, errors.Is(err, ErrMissingColumn))

	cols := append(accessLogColumns(), Column{Name: "browser"})
	_, err = NewSchema("logs", cols)
	require.True(t, errors.Is(err, ErrColumnCollision))
}

func TestParseTimestampAcceptsDriverTypes(t *testing.T) {
	t.Parallel()

	day := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)
	ts, err := ParseTimestamp(day, []byte("13:45:10"))
	require.NoError(t, err)
	assert.Equal(t, "2024-03-09", ts.DateText)
	assert.Equal(t, time.Date(2024, 3, 9, 13, 45, 10, 0, time.UTC), ts.Time)

	ts, err = ParseTimestamp("2024-03-09", "")
	require.NoError(t, err)
	assert.Equal(t, day, ts.Time)

	ts, err = ParseTimestamp("2024-03-09 00:00:00", "13:45:10")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-09 00:00:00", ts.DateText)
	assert.Equal(t, time.Date(2024, 3, 9, 13, 45, 10, 0, time.UTC), ts.Time)

	_, err = ParseTimestamp("09/03/2024", "13:45:10")
	require.Error(t, err)
	_, err = ParseTimestamp(nil, "13:45:10")
	require.Error(t, err)
}

func TestSortByTimestampIsStableAndCopies(t *testing.T) {
	t.Parallel()

	s, err := NewSchema("logs", accessLogColumns())
	require.NoError(t, err)
	rows := [][]any{
		{"2024-01-02", "00:00:00", "a", "", "/", int64(200)},
		{"2024-01-01", "00:00:00", "b", "", "/", int64(200)},
		{"2024-01-02", "00:00:00", "c", "", "/", int64(200)},
	}
	var recs []RawLogRecord
	for _, r := range rows {
		rec, err := s.Record(r)
		require.NoError(t, err)
		recs = append(recs, rec)
	}

	sorted := SortByTimestamp(recs)
	got := []string{sorted[0].ClientIP, sorted[1].ClientIP, sorted[2].ClientIP}
	assert.Equal(t, []string{"b", "a", "c"}, got)
	assert.Equal(t, "a", recs[0].ClientIP, "input must not be reordered")
}

func TestNormalizedRecordValuesAlignWithOutputSchema(t *testing.T) {
	t.Parallel()

	s, err := NewSchema("logs", accessLogColumns())
	require.NoError(t, err)
	out := s.Output()
	rec, err := s.Record([]any{"2024-01-01", "00:00:01", "1.2.3.4", "ua", "/", int64(200)})
	require.NoError(t, err)

	bare := NormalizedRecord{Raw: rec, Classification: Classification{Browser: "Chrome", IsBot: true}}
	vals := bare.Values()
	require.Len(t, vals, len(out.Columns))
	assert.Equal(t, "Chrome", vals[out.InputWidth])
	assert.Equal(t, int64(1), vals[out.InputWidth+7])
	assert.Equal(t, []any{nil, nil, nil, nil}, vals[len(vals)-4:])

	enriched := bare
	enriched.Geo = &GeoLocation{Lat: 10, Lon: 20, City: "X", Country: "Y"}
	assert.Equal(t, []any{10.0, 20.0, "X", "Y"}, enriched.Values()[len(vals)-4:])
}

func TestValidTableName(t *testing.T) {
	t.Parallel()

	for _, ok := range []string{"logs", "_staging", "Logs_2024"} {
		assert.True(t, ValidTableName(ok), ok)
	}
	for _, bad := range []string{"", "1logs", "logs;drop", "my-table", `"logs"`} {
		assert.False(t, ValidTableName(bad), bad)
	}
}
