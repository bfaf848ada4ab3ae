package weblog

import (
	"regexp"
	"time"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidTableName reports whether name is safe to splice into SQL as a table name.
func ValidTableName(name string) bool {
	return validTableName.MatchString(name)
}

// InputStore is a candidate input database found in the working directory.
type InputStore struct {
	Path    string
	ModTime time.Time
	Size    int64
}
