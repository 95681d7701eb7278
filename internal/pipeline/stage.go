package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// stageFunc transforms one item. Returning keep=false drops it.
type stageFunc[In, Out any] func(ctx context.Context, in In) (out Out, keep bool, err error)

// runStage applies fn to every item on at most workers goroutines and waits
// for all of them. Kept results come back in input order. The first error
// cancels the remaining work and is returned.
func runStage[In, Out any](ctx context.Context, workers int, items []In, fn stageFunc[In, Out]) ([]Out, error) {
	if len(items) == 0 {
		return nil, nil
	}
	if workers < 1 {
		workers = 1
	}

	type slot struct {
		v    Out
		keep bool
	}
	slots := make([]slot, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, item := range items {
		g.Go(func() error {
			v, keep, err := fn(gctx, item)
			if err != nil {
				return err
			}
			slots[i] = slot{v: v, keep: keep}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]Out, 0, len(items))
	for _, s := range slots {
		if s.keep {
			out = append(out, s.v)
		}
	}
	return out, nil
}

// filterStage keeps the items pred accepts.
func filterStage[T any](ctx context.Context, workers int, items []T, pred func(T) bool) ([]T, error) {
	return runStage(ctx, workers, items, func(_ context.Context, in T) (T, bool, error) {
		return in, pred(in), nil
	})
}
