// Package parallel runs a function over a sequence on a bounded number of
// goroutines.
package parallel

import (
	"context"
	"iter"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Map applies f to every value of a sequence with at most limit calls in
// flight. Results are yielded in completion order.
type Map[T, R any] struct {
	ctx   context.Context
	limit int
	f     func(context.Context, T) (R, error)
}

// NewMap returns a Map bound to ctx. A non-positive limit means one worker
// per CPU.
func NewMap[T, R any](ctx context.Context, limit int, f func(context.Context, T) (R, error)) Map[T, R] {
	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	return Map[T, R]{ctx: ctx, limit: limit, f: f}
}

type result[R any] struct {
	value R
	err   error
}

// Iter maps seq. Errors of seq are passed through without calling f. Once the
// context is done, pending results are dropped and the iteration ends after
// all workers have returned. Breaking out of the loop cancels the workers.
func (m Map[T, R]) Iter(seq iter.Seq2[T, error]) iter.Seq2[R, error] {
	return func(yield func(R, error) bool) {
		ctx, cancel := context.WithCancel(m.ctx)
		defer cancel()

		results := make(chan result[R])
		send := func(r result[R]) {
			select {
			case results <- r:
			case <-ctx.Done():
			}
		}

		go func() {
			defer close(results)
			var g errgroup.Group
			g.SetLimit(m.limit)
			for in, err := range seq {
				if ctx.Err() != nil {
					break
				}
				if err != nil {
					send(result[R]{err: err})
					continue
				}
				g.Go(func() error {
					v, err := m.f(ctx, in)
					send(result[R]{value: v, err: err})
					return nil
				})
			}
			_ = g.Wait()
		}()

		// results is drained even after cancel so no worker stays blocked
		for r := range results {
			if ctx.Err() != nil {
				continue
			}
			if !yield(r.value, r.err) {
				cancel()
			}
		}
	}
}
