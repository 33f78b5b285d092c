package remesh

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// minChunk keeps goroutine overhead small for cheap per-item work.
const minChunk = 64

// parallelRange calls fn over disjoint subranges of [0,n). fn must only
// write to state owned by its subrange.
func (r *remesher) parallelRange(ctx context.Context, n int, fn func(lo, hi int)) error {
	workers := r.opts.Workers
	chunk := (n + 4*workers - 1) / (4 * workers)
	if chunk < minChunk {
		chunk = minChunk
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for lo := 0; lo < n; lo += chunk {
		lo, hi := lo, min(lo+chunk, n)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			fn(lo, hi)
			return nil
		})
	}
	return g.Wait()
}
