// Package local implements input discovery and reference-file access on the
// local filesystem.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/JakeFAU/weblog-normalizer/internal/weblog"
)

// DirConfig describes where input stores are found.
type DirConfig struct {
	// Root is the directory scanned for candidates.
	Root string `mapstructure:"dir" yaml:"dir"`
	// Extension selects candidate files, e.g. ".db".
	Extension string `mapstructure:"extension" yaml:"extension"`
	// Exclude lists paths that are never candidates, such as the output store.
	Exclude []string `mapstructure:"-" yaml:"-"`
}

// Dir lists and removes input stores in a single directory.
type Dir struct {
	root    string
	ext     string
	exclude map[string]struct{}
}

// NewDir validates cfg. Root must be an existing directory.
func NewDir(cfg DirConfig) (*Dir, error) {
	if strings.TrimSpace(cfg.Root) == "" {
		return nil, fmt.Errorf("input directory is required")
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve input directory: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat input directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("input path %s is not a directory", root)
	}
	ext := cfg.Extension
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	exclude := make(map[string]struct{}, len(cfg.Exclude))
	for _, p := range cfg.Exclude {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolve excluded path %s: %w", p, err)
		}
		exclude[abs] = struct{}{}
	}
	return &Dir{root: root, ext: ext, exclude: exclude}, nil
}

// Root is the scanned directory.
func (d *Dir) Root() string { return d.root }

// Candidates lists regular files with the configured extension, newest first.
// Equal modification times are ordered by name, descending, so the choice is
// stable across calls.
func (d *Dir) Candidates(ctx context.Context) ([]weblog.InputStore, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", d.root, err)
	}
	var out []weblog.InputStore
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("list %s: %w", d.root, err)
		}
		if !e.Type().IsRegular() {
			continue
		}
		if d.ext != "" && !strings.EqualFold(filepath.Ext(e.Name()), d.ext) {
			continue
		}
		path := filepath.Join(d.root, e.Name())
		if _, skip := d.exclude[path]; skip {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
		out = append(out, weblog.InputStore{Path: path, ModTime: info.ModTime(), Size: info.Size()})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ModTime.Equal(out[j].ModTime) {
			return out[i].ModTime.After(out[j].ModTime)
		}
		return out[i].Path > out[j].Path
	})
	return out, nil
}

// Remove deletes an input store. Paths outside the root are refused.
func (d *Dir) Remove(_ context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	if filepath.Dir(abs) != d.root {
		return fmt.Errorf("refusing to remove %s outside %s", abs, d.root)
	}
	if _, skip := d.exclude[abs]; skip {
		return fmt.Errorf("refusing to remove excluded path %s", abs)
	}
	if err := os.Remove(abs); err != nil {
		return fmt.Errorf("remove %s: %w", abs, err)
	}
	return nil
}
