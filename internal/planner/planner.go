// Package planner derives batch sizes and worker counts from host resources.
package planner

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"github.com/shirou/gopsutil/v3/mem"
)

// Defaults shared by the normalizer and the downstream aggregations.
const (
	DefaultMemoryFraction = 0.9
	DefaultCPUFraction    = 0.9
	DefaultRowSizeBytes   = 2048
	DefaultMinBatchSize   = 10_000
)

// Resources describes what the host can spend on a run.
type Resources struct {
	AvailableMemoryBytes uint64
	LogicalCPUs          int
}

// Policy tunes how Resources turn into a Plan.
type Policy struct {
	MemoryFraction        float64
	CPUFraction           float64
	EstimatedRowSizeBytes int64
	// MinBatchSize is the floor applied on memory-starved hosts.
	MinBatchSize int
	// MaxBatchSize caps the batch size; zero means no cap.
	MaxBatchSize int
	// Workers overrides the derived worker count when positive.
	Workers int
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		MemoryFraction:        DefaultMemoryFraction,
		CPUFraction:           DefaultCPUFraction,
		EstimatedRowSizeBytes: DefaultRowSizeBytes,
		MinBatchSize:          DefaultMinBatchSize,
	}
}

// Validate enforces the recognized ranges.
func (p Policy) Validate() error {
	if p.MemoryFraction <= 0 || p.MemoryFraction > 1 {
		return fmt.Errorf("memory fraction must be in (0,1], got %v", p.MemoryFraction)
	}
	if p.CPUFraction <= 0 || p.CPUFraction > 1 {
		return fmt.Errorf("cpu fraction must be in (0,1], got %v", p.CPUFraction)
	}
	if p.EstimatedRowSizeBytes <= 0 {
		return fmt.Errorf("estimated row size must be > 0")
	}
	if p.MinBatchSize <= 0 {
		return fmt.Errorf("minimum batch size must be > 0")
	}
	if p.MaxBatchSize != 0 && p.MaxBatchSize < p.MinBatchSize {
		return fmt.Errorf("maximum batch size %d is below the minimum %d", p.MaxBatchSize, p.MinBatchSize)
	}
	if p.Workers < 0 {
		return fmt.Errorf("workers must be >= 0")
	}
	return nil
}

// Plan is the sizing decision for a run.
type Plan struct {
	BatchSize int
	Workers   int
}

// Compute turns resources into a plan. It has no side effects; BatchSize is
// never below MinBatchSize and Workers is never below one.
func Compute(res Resources, p Policy) Plan {
	return Plan{
		BatchSize: BatchSize(res.AvailableMemoryBytes, p),
		Workers:   Workers(res.LogicalCPUs, p),
	}
}

// BatchSize returns max(floor, available*fraction/rowSize), capped by MaxBatchSize.
func BatchSize(available uint64, p Policy) int {
	floor := p.MinBatchSize
	if floor < 1 {
		floor = 1
	}
	size := floor
	if p.EstimatedRowSizeBytes > 0 && p.MemoryFraction > 0 {
		rows := math.Floor(float64(available) * p.MemoryFraction / float64(p.EstimatedRowSizeBytes))
		if rows > float64(math.MaxInt32) {
			rows = float64(math.MaxInt32)
		}
		if int(rows) > size {
			size = int(rows)
		}
	}
	if p.MaxBatchSize > 0 && size > p.MaxBatchSize {
		size = max(p.MaxBatchSize, floor)
	}
	return size
}

// Workers returns max(1, cpus*fraction) unless the policy pins a count.
func Workers(cpus int, p Policy) int {
	if p.Workers > 0 {
		return p.Workers
	}
	n := int(math.Floor(float64(cpus) * p.CPUFraction))
	if n < 1 {
		return 1
	}
	return n
}

// RowSizeForColumns estimates row bytes for a projection of n columns. The
// aggregation views read narrow projections, so they get proportionally larger
// batches than the full-width normalizer.
func RowSizeForColumns(n int) int64 {
	const perColumn = 128
	if n < 1 {
		n = 1
	}
	return int64(n * perColumn)
}

// Prober reports the resources currently available.
type Prober interface {
	Probe(ctx context.Context) (Resources, error)
}

// SystemProber reads available memory and logical CPU count from the host.
type SystemProber struct{}

// Probe queries the host. The CPU count is always filled in, even when the
// memory query fails.
func (SystemProber) Probe(ctx context.Context) (Resources, error) {
	res := Resources{LogicalCPUs: runtime.NumCPU()}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return res, fmt.Errorf("probe virtual memory: %w", err)
	}
	res.AvailableMemoryBytes = vm.Available
	return res, nil
}

// StaticProber returns fixed resources; useful for tests and pinned deployments.
type StaticProber Resources

// Probe returns the fixed resources.
func (s StaticProber) Probe(context.Context) (Resources, error) {
	return Resources(s), nil
}
