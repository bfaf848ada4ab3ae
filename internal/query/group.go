package query

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/JakeFAU/weblog-normalizer/internal/dispatcher"
	"github.com/JakeFAU/weblog-normalizer/internal/geo"
	"github.com/JakeFAU/weblog-normalizer/internal/planner"
	"github.com/JakeFAU/weblog-normalizer/internal/weblog"
)

// CountryColumn is resolved to country names when grouped.
const CountryColumn = "country"

// ChunkReader is the read side of the normalized store.
type ChunkReader interface {
	Count(ctx context.Context, where []Predicate) (int64, error)
	ReadChunk(ctx context.Context, projection []string, where []Predicate, offset, limit int64) ([][]any, error)
}

// Options sizes a grouped read. Zero values derive from the planner.
type Options struct {
	ChunkSize int64
	Workers   int
	Resources planner.Resources
	Policy    planner.Policy
}

func (o Options) plan() (int64, int) {
	policy := o.Policy
	if policy.MinBatchSize <= 0 {
		policy = planner.DefaultPolicy()
	}
	policy.EstimatedRowSizeBytes = planner.RowSizeForColumns(1)
	p := planner.Compute(o.Resources, policy)
	chunk, workers := o.ChunkSize, o.Workers
	if chunk <= 0 {
		chunk = int64(p.BatchSize)
	}
	if workers <= 0 {
		workers = p.Workers
	}
	return chunk, workers
}

// Bucket is one distinct value and how often it occurs.
type Bucket struct {
	Value string `json:"value"`
	// Name is the resolved country name; empty for other columns or unknown codes.
	Name  string `json:"name,omitempty"`
	Count int64  `json:"count"`
}

// Counts is the result of GroupCount.
type Counts struct {
	Column  string   `json:"column"`
	Total   int64    `json:"total"`
	Nulls   int64    `json:"nulls"`
	Buckets []Bucket `json:"buckets"`
}

// GroupCount counts the distinct values of column among rows matching where.
// Chunks are read in parallel and merged; NULLs are counted separately.
// Buckets are ordered by descending count, then value.
func GroupCount(ctx context.Context, r ChunkReader, column string, where []Predicate, opts Options) (Counts, error) {
	if column == "" {
		return Counts{}, errors.New("group column is required")
	}
	total, err := r.Count(ctx, where)
	if err != nil {
		return Counts{}, err
	}
	out := Counts{Column: column, Total: total, Buckets: []Bucket{}}
	if total == 0 {
		return out, nil
	}

	chunk, workers := opts.plan()
	offsets := make([]int64, 0, (total+chunk-1)/chunk)
	for off := int64(0); off < total; off += chunk {
		offsets = append(offsets, off)
	}
	type partial struct {
		counts map[string]int64
		nulls  int64
	}
	parts, err := dispatcher.Map(ctx, workers, offsets, func(ctx context.Context, off int64) (partial, error) {
		rows, err := r.ReadChunk(ctx, []string{column}, where, off, chunk)
		if err != nil {
			return partial{}, err
		}
		p := partial{counts: make(map[string]int64)}
		for _, row := range rows {
			if len(row) == 0 || row[0] == nil {
				p.nulls++
				continue
			}
			p.counts[weblog.Text(row[0])]++
		}
		return p, nil
	})
	if err != nil {
		return Counts{}, fmt.Errorf("group %s: %w", column, err)
	}

	merged := make(map[string]int64)
	for _, p := range parts {
		out.Nulls += p.nulls
		for k, v := range p.counts {
			merged[k] += v
		}
	}
	for k, v := range merged {
		b := Bucket{Value: k, Count: v}
		if column == CountryColumn {
			if name, err := geo.CountryName(k); err == nil {
				b.Name = name
			}
		}
		out.Buckets = append(out.Buckets, b)
	}
	sort.Slice(out.Buckets, func(i, j int) bool {
		if out.Buckets[i].Count != out.Buckets[j].Count {
			return out.Buckets[i].Count > out.Buckets[j].Count
		}
		return out.Buckets[i].Value < out.Buckets[j].Value
	})
	return out, nil
}
