package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/weblog-normalizer/internal/weblog"
)

// Source reads one input store.
type Source interface {
	Path() string
	Schema() weblog.Schema
	Count(ctx context.Context) (int64, error)
	// ReadBatch returns up to limit rows starting at offset, ordered by timestamp.
	ReadBatch(ctx context.Context, offset, limit int64) (weblog.Batch, error)
	Close() error
}

// SourceOpener opens the input store at path.
type SourceOpener func(ctx context.Context, path string) (Source, error)

// Writer owns the normalized output store.
type Writer interface {
	// Write appends batch; first recreates the output from the batch schema.
	Write(ctx context.Context, batch weblog.NormalizedBatch, first bool) error
	// Finalize publishes the output and returns its row count.
	Finalize(ctx context.Context) (int64, error)
	Close() error
	Path() string
}

// WriterOpener returns a Writer for one run.
type WriterOpener func(ctx context.Context) (Writer, error)

// Locator lists and disposes of candidate input stores.
type Locator interface {
	// Candidates returns the input stores, newest first.
	Candidates(ctx context.Context) ([]weblog.InputStore, error)
	Remove(ctx context.Context, path string) error
}

// Classifier derives a classification from a raw user-agent string.
type Classifier interface {
	Classify(raw string) weblog.Classification
}

// GeoLookup resolves a client IP to a reference location.
type GeoLookup interface {
	Lookup(ip string) (weblog.GeoLocation, bool)
}

// Publisher sends run notifications.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// IDGenerator mints run identifiers.
type IDGenerator interface {
	NewRawID() (uuid.UUID, error)
}
