package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/weblog-normalizer/internal/progress"
	"github.com/JakeFAU/weblog-normalizer/internal/weblog"
)

var testColumns = []weblog.Column{
	{Name: "date", DeclType: "TEXT"},
	{Name: "time", DeclType: "TEXT"},
	{Name: "c-ip", DeclType: "TEXT"},
	{Name: "cs(User-Agent)", DeclType: "TEXT"},
	{Name: "sc-status", DeclType: "INTEGER"},
}

type fakeSource struct {
	path   string
	schema weblog.Schema
	rows   [][]any
	failAt int64
	closed bool
}

func newFakeSource(path string, rows [][]any) *fakeSource {
	schema, err := weblog.NewSchema("logs", testColumns)
	if err != nil {
		panic(err)
	}
	return &fakeSource{path: path, schema: schema, rows: rows, failAt: -1}
}

func (s *fakeSource) Path() string                        { return s.path }
func (s *fakeSource) Schema() weblog.Schema               { return s.schema }
func (s *fakeSource) Count(context.Context) (int64, error) { return int64(len(s.rows)), nil }
func (s *fakeSource) Close() error                        { s.closed = true; return nil }

func (s *fakeSource) ReadBatch(_ context.Context, offset, limit int64) (weblog.Batch, error) {
	if offset == s.failAt {
		return weblog.Batch{}, errors.New("malformed row")
	}
	end := min(offset+limit, int64(len(s.rows)))
	b := weblog.Batch{Offset: offset, Schema: s.schema}
	for _, values := range s.rows[offset:end] {
		rec, err := s.schema.Record(values)
		if err != nil {
			return weblog.Batch{}, err
		}
		b.Records = append(b.Records, rec)
	}
	b.Records = weblog.SortByTimestamp(b.Records)
	return b, nil
}

type fakeWriter struct {
	mu        sync.Mutex
	batches   []weblog.NormalizedBatch
	firsts    []bool
	failAt    int64
	finalized bool
	closed    bool
}

func newFakeWriter() *fakeWriter { return &fakeWriter{failAt: -1} }

func (w *fakeWriter) Write(_ context.Context, b weblog.NormalizedBatch, first bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if b.Offset == w.failAt {
		return errors.New("disk full")
	}
	if first {
		w.batches = nil
		w.firsts = nil
	}
	w.batches = append(w.batches, b)
	w.firsts = append(w.firsts, first)
	return nil
}

func (w *fakeWriter) Finalize(context.Context) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.finalized = true
	return int64(len(w.records())), nil
}

func (w *fakeWriter) records() []weblog.NormalizedRecord {
	var out []weblog.NormalizedRecord
	for _, b := range w.batches {
		out = append(out, b.Records...)
	}
	return out
}

func (w *fakeWriter) Close() error { w.closed = true; return nil }
func (w *fakeWriter) Path() string { return "memory:logs" }

type fakeLocator struct {
	candidates []weblog.InputStore
	removeErr  map[string]error
	removed    []string
}

func (l *fakeLocator) Candidates(context.Context) ([]weblog.InputStore, error) {
	return l.candidates, nil
}

func (l *fakeLocator) Remove(_ context.Context, path string) error {
	if err := l.removeErr[path]; err != nil {
		return err
	}
	l.removed = append(l.removed, path)
	return nil
}

// tokenClassifier flags agents containing "bot" and echoes the agent as browser.
type tokenClassifier struct{}

func (tokenClassifier) Classify(raw string) weblog.Classification {
	c := weblog.UnknownClassification()
	c.Browser = raw
	c.IsBot = len(raw) >= 3 && raw[:3] == "bot"
	return c
}

type mapLookup map[string]weblog.GeoLocation

func (m mapLookup) Lookup(ip string) (weblog.GeoLocation, bool) {
	loc, ok := m[ip]
	return loc, ok
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) stages() []progress.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]progress.Stage, len(r.events))
	for i, e := range r.events {
		out[i] = e.Stage
	}
	return out
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type fixedIDs struct{ id uuid.UUID }

func (f fixedIDs) NewRawID() (uuid.UUID, error) { return f.id, nil }

type recordingPublisher struct {
	topic    string
	payloads []any
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.topic = topic
	p.payloads = append(p.payloads, payload)
	return fmt.Sprintf("msg-%d", len(p.payloads)), nil
}

func logRow(second int, ip, ua string) []any {
	return []any{"2024-01-01", fmt.Sprintf("00:00:%02d", second), ip, ua, int64(200)}
}
