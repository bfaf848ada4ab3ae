// Package memory provides in-memory implementations of the storage ports for
// tests and embedding.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"sync"
)

// Files holds named reference files in memory.
type Files struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewFiles creates an empty file set.
func NewFiles() *Files {
	return &Files{data: make(map[string][]byte)}
}

// Put stores a copy of data under name.
func (f *Files) Put(name string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[name] = append([]byte(nil), data...)
}

// Open returns a reader over the stored bytes. Unknown names yield an error
// wrapping fs.ErrNotExist.
func (f *Files) Open(_ context.Context, name string) (io.ReadCloser, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	data, ok := f.data[name]
	if !ok {
		return nil, fmt.Errorf("open memory://%s: %w", name, fs.ErrNotExist)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}
