// Package dispatcher fans a slice of work out to a bounded pool of goroutines
// and collects the results in input order.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// DefaultProgressEvery is how many completions pass between progress callbacks.
const DefaultProgressEvery = 1000

// ProgressFunc receives the number of completed items and the total.
type ProgressFunc func(done, total int)

type options struct {
	every    int
	progress ProgressFunc
}

// Option customizes Map.
type Option func(*options)

// WithProgress reports completion counts every n items and once more when the
// last item finishes. Callbacks are serialized and done is monotonic.
func WithProgress(every int, fn ProgressFunc) Option {
	return func(o *options) {
		if every > 0 {
			o.every = every
		}
		o.progress = fn
	}
}

// Map applies fn to every item using at most workers goroutines. The result
// slice is aligned with items: out[i] is fn(items[i]) regardless of the order
// in which workers finish. The first error cancels the remaining work and is
// returned.
func Map[T, R any](ctx context.Context, workers int, items []T, fn func(context.Context, T) (R, error), opts ...Option) ([]R, error) {
	cfg := options{every: DefaultProgressEvery}
	for _, opt := range opts {
		opt(&cfg)
	}
	total := len(items)
	out := make([]R, total)
	if total == 0 {
		return out, nil
	}
	if workers < 1 {
		workers = 1
	}
	if workers > total {
		workers = total
	}

	var (
		next int64 = -1
		done int64
		mu   sync.Mutex
		last int
	)
	report := func(n int) {
		if cfg.progress == nil {
			return
		}
		if n%cfg.every != 0 && n != total {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if n <= last {
			return
		}
		last = n
		cfg.progress(n, total)
	}

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				i := int(atomic.AddInt64(&next, 1))
				if i >= total {
					return nil
				}
				if err := gctx.Err(); err != nil {
					return fmt.Errorf("dispatch canceled at item %d: %w", i, err)
				}
				r, err := fn(gctx, items[i])
				if err != nil {
					return fmt.Errorf("item %d: %w", i, err)
				}
				out[i] = r
				report(int(atomic.AddInt64(&done, 1)))
			}
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
