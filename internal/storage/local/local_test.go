package local_test

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/weblog-normalizer/internal/storage/local"
)

func touch(t *testing.T, path string, mod time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func TestNewDir(t *testing.T) {
	t.Run("MissingRoot", func(t *testing.T) {
		_, err := local.NewDir(local.DirConfig{})
		assert.Error(t, err)
	})
	t.Run("RootIsFile", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "f.db")
		touch(t, file, time.Now())
		_, err := local.NewDir(local.DirConfig{Root: file})
		assert.Error(t, err)
	})
	t.Run("ExtensionWithoutDot", func(t *testing.T) {
		root := t.TempDir()
		touch(t, filepath.Join(root, "a.db"), time.Now())
		d, err := local.NewDir(local.DirConfig{Root: root, Extension: "db"})
		require.NoError(t, err)
		c, err := d.Candidates(context.Background())
		require.NoError(t, err)
		assert.Len(t, c, 1)
	})
}

func TestCandidatesNewestFirst(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	touch(t, filepath.Join(root, "old.db"), base)
	touch(t, filepath.Join(root, "new.db"), base.Add(2*time.Hour))
	touch(t, filepath.Join(root, "tie_a.db"), base.Add(time.Hour))
	touch(t, filepath.Join(root, "tie_b.db"), base.Add(time.Hour))
	touch(t, filepath.Join(root, "normalized_logs.db"), base.Add(3*time.Hour))
	touch(t, filepath.Join(root, "notes.txt"), base.Add(4*time.Hour))
	require.NoError(t, os.Mkdir(filepath.Join(root, "dir.db"), 0o750))

	d, err := local.NewDir(local.DirConfig{
		Root:      root,
		Extension: ".db",
		Exclude:   []string{filepath.Join(root, "normalized_logs.db")},
	})
	require.NoError(t, err)

	got, err := d.Candidates(context.Background())
	require.NoError(t, err)
	names := make([]string, len(got))
	for i, c := range got {
		names[i] = filepath.Base(c.Path)
	}
	assert.Equal(t, []string{"new.db", "tie_b.db", "tie_a.db", "old.db"}, names)
	assert.Equal(t, int64(1), got[0].Size)
}

func TestRemove(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	out := filepath.Join(root, "normalized_logs.db")
	in := filepath.Join(root, "in.db")
	touch(t, out, time.Now())
	touch(t, in, time.Now())

	d, err := local.NewDir(local.DirConfig{Root: root, Extension: ".db", Exclude: []string{out}})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, d.Remove(ctx, in))
	_, err = os.Stat(in)
	assert.True(t, os.IsNotExist(err))

	assert.Error(t, d.Remove(ctx, out), "excluded paths are never removed")
	assert.Error(t, d.Remove(ctx, filepath.Join(t.TempDir(), "elsewhere.db")))
	assert.Error(t, d.Remove(ctx, in), "already gone")
}

func TestOpener(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "ip_locations.csv"), []byte("ip,lat\n"), 0o600))
	o := local.Opener{BaseDir: root}
	ctx := context.Background()

	rc, err := o.Open(ctx, "ip_locations.csv")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "ip,lat\n", string(body))

	_, err = o.Open(ctx, "missing.csv")
	require.ErrorIs(t, err, fs.ErrNotExist)

	_, err = o.Open(ctx, "../escape.csv")
	require.Error(t, err)

	_, err = o.Open(ctx, " ")
	require.Error(t, err)
}
