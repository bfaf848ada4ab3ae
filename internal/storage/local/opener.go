package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Opener opens reference files from disk. Relative names resolve against
// BaseDir when it is set.
type Opener struct {
	BaseDir string
}

// Open opens name for reading. A missing file yields an error wrapping
// fs.ErrNotExist.
func (o Opener) Open(_ context.Context, name string) (io.ReadCloser, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("reference path is required")
	}
	path := name
	if o.BaseDir != "" && !filepath.IsAbs(name) {
		path = filepath.Join(o.BaseDir, name)
		base := filepath.Clean(o.BaseDir)
		if !strings.HasPrefix(filepath.Clean(path), base+string(filepath.Separator)) {
			return nil, fmt.Errorf("path traversal detected")
		}
	}
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open reference: %w", err)
	}
	return f, nil
}
