package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/weblog-normalizer/internal/app"
	"github.com/JakeFAU/weblog-normalizer/internal/config"
	"github.com/JakeFAU/weblog-normalizer/internal/planner"
)

// isolateApp builds Apps against a private registry for the duration of t.
func isolateApp(t *testing.T) {
	t.Helper()
	prev := newApp
	newApp = func(ctx context.Context, cfg config.Config) (*app.App, error) {
		return app.New(ctx, cfg, app.Options{
			Logger:     zap.NewNop(),
			Registerer: prometheus.NewRegistry(),
			Prober:     planner.StaticProber{LogicalCPUs: 1},
		})
	}
	t.Cleanup(func() { newApp = prev })
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "lognorm.yaml")
	body := "input:\n  dir: " + dir + "\noutput:\n  path: " + filepath.Join(dir, "out.db") +
		"\nreference:\n  geo_path: " + filepath.Join(dir, "ip_locations.csv") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestInputsListsNewestFirst(t *testing.T) {
	isolateApp(t)
	dir := t.TempDir()
	older := filepath.Join(dir, "logs_old.db")
	newer := filepath.Join(dir, "logs_new.db")
	require.NoError(t, os.WriteFile(older, []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(newer, []byte("xy"), 0o600))
	now := time.Now()
	require.NoError(t, os.Chtimes(older, now.Add(-time.Hour), now.Add(-time.Hour)))
	require.NoError(t, os.Chtimes(newer, now, now))

	var out, errOut bytes.Buffer
	err := execute(context.Background(), []string{"--config", writeConfig(t, dir), "inputs"}, &out, &errOut)
	require.NoError(t, err, errOut.String())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	require.Contains(t, lines[0], "PATH")
	require.Contains(t, lines[1], "logs_new.db")
	require.Contains(t, lines[2], "logs_old.db")
}

func TestRunWithoutInputSucceeds(t *testing.T) {
	isolateApp(t)
	dir := t.TempDir()

	var out, errOut bytes.Buffer
	err := execute(context.Background(), []string{"--config", writeConfig(t, dir), "run"}, &out, &errOut)
	require.NoError(t, err, errOut.String())
	require.Contains(t, out.String(), "no input store found")
}

func TestRunFailsOnUnreadableInput(t *testing.T) {
	isolateApp(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "logs.db"), []byte("not a database"), 0o600))

	var out, errOut bytes.Buffer
	err := execute(context.Background(), []string{"--config", writeConfig(t, dir), "run"}, &out, &errOut)
	require.Error(t, err)
	require.Contains(t, err.Error(), "open")
}

func TestInvalidConfigFails(t *testing.T) {
	isolateApp(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("output:\n  driver: mysql\n"), 0o600))

	var out, errOut bytes.Buffer
	err := execute(context.Background(), []string{"--config", path, "inputs"}, &out, &errOut)
	require.Error(t, err)
	require.Contains(t, err.Error(), "output.driver")
}
