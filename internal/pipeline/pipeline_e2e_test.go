package pipeline_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/weblog-normalizer/internal/pipeline"
	"github.com/JakeFAU/weblog-normalizer/internal/planner"
	"github.com/JakeFAU/weblog-normalizer/internal/storage/local"
	"github.com/JakeFAU/weblog-normalizer/internal/storage/sqlite"
	"github.com/JakeFAU/weblog-normalizer/internal/useragent"
)

const (
	chromeUA    = "Mozilla/5.0 (Windows NT 10.0) Chrome/100 Safari/537.36"
	googlebotUA = "Googlebot/2.1 (+http://www.google.com/bot.html)"
)

func writeInput(t *testing.T, path string) {
	t.Helper()
	db, err := sql.Open(sqlite.DriverName, path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE logs (
		"date" TEXT, "time" TEXT, "c-ip" TEXT, "cs(User-Agent)" TEXT, "cs-uri-stem" TEXT, "sc-status" INTEGER)`)
	require.NoError(t, err)
	rows := [][]any{
		{"2024-01-01", "00:00:01", "1.2.3.4", chromeUA, "/", 200},
		{"2024-01-01", "00:00:02", "5.6.7.8", googlebotUA, "/", 200},
		{"2024-01-01", "00:00:03", "1.2.3.4", "curl/7.0", "/", 200},
	}
	for _, r := range rows {
		_, err = db.Exec(`INSERT INTO logs VALUES (?, ?, ?, ?, ?, ?)`, r...)
		require.NoError(t, err)
	}
}

func newOrchestrator(t *testing.T, dir, output string) *pipeline.Orchestrator {
	t.Helper()
	locator, err := local.NewDir(local.DirConfig{Root: dir, Extension: ".db", Exclude: []string{output}})
	require.NoError(t, err)
	o, err := pipeline.New(pipeline.Config{
		Locator: locator,
		OpenSource: func(ctx context.Context, path string) (pipeline.Source, error) {
			return sqlite.OpenSource(ctx, path, "logs")
		},
		OpenWriter: func(context.Context) (pipeline.Writer, error) {
			return sqlite.NewWriter(output, "logs", nil)
		},
		Classifier:     useragent.New(nil),
		GeoOpener:      local.Opener{BaseDir: dir},
		GeoName:        "ip_locations.csv",
		Prober:         planner.StaticProber{LogicalCPUs: 2},
		Policy:         planner.Policy{MemoryFraction: 0.9, CPUFraction: 0.9, EstimatedRowSizeBytes: 2048, MinBatchSize: 2},
		DeleteConsumed: true,
	})
	require.NoError(t, err)
	return o
}

func TestPipelineEndToEnd(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	output := filepath.Join(dir, "normalized_logs.db")
	input := filepath.Join(dir, "access.db")
	writeInput(t, input)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ip_locations.csv"),
		[]byte("ip,lat,lon,city,country\n1.2.3.4,10,20,X,Y\n"), 0o600))

	o := newOrchestrator(t, dir, output)
	res, err := o.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusSuccess, res.Status)
	assert.Equal(t, int64(3), res.Rows)
	assert.Equal(t, 2, res.Batches)
	assert.Equal(t, []string{input}, res.Deleted)
	_, err = os.Stat(input)
	assert.True(t, os.IsNotExist(err), "consumed input is deleted")

	r, err := sqlite.OpenReader(ctx, output, "logs")
	require.NoError(t, err)
	defer r.Close()

	rows, err := r.ReadChunk(ctx,
		[]string{"time", "cs-uri-stem", "browser", "is_bot", "lat", "lon", "city", "country"}, nil, 0, 10)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	chrome := rows[0]
	assert.Equal(t, "00:00:01", chrome[0])
	assert.Equal(t, "/", chrome[1])
	assert.Equal(t, "Chrome", chrome[2])
	assert.Equal(t, int64(0), chrome[3])
	assert.Equal(t, []any{10.0, 20.0, "X", "Y"}, chrome[4:])

	bot := rows[1]
	assert.Equal(t, int64(1), bot[3])
	assert.Equal(t, []any{nil, nil, nil, nil}, bot[4:])

	curl := rows[2]
	assert.Equal(t, "Other Browser", curl[2])
	for _, row := range rows {
		if row[3] == int64(1) {
			assert.Equal(t, []any{nil, nil, nil, nil}, row[4:], "bots carry no geo")
		}
	}
}

func TestPipelineReplacesOutput(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	output := filepath.Join(dir, "normalized_logs.db")
	o := newOrchestrator(t, dir, output)

	var counts []int64
	var columns [][]string
	for range 2 {
		writeInput(t, filepath.Join(dir, "access.db"))
		res, err := o.Run(ctx)
		require.NoError(t, err)
		require.Equal(t, pipeline.StatusSuccess, res.Status)

		r, err := sqlite.OpenReader(ctx, output, "logs")
		require.NoError(t, err)
		n, err := r.Count(ctx, nil)
		require.NoError(t, err)
		counts = append(counts, n)
		var names []string
		for _, c := range r.Columns() {
			names = append(names, c.Name+" "+c.DeclType)
		}
		columns = append(columns, names)
		require.NoError(t, r.Close())
	}
	assert.Equal(t, []int64{3, 3}, counts)
	assert.Equal(t, columns[0], columns[1])

	res, err := o.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusEmpty, res.Status)
}
