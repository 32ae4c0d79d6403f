package batch

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Worker converts units. Each worker owns its resources and is used by a
// single goroutine.
type Worker[T any] interface {
	Process(ctx context.Context, index int) (T, error)
	Close() error
}

// WorkerFactory creates a worker for one range.
type WorkerFactory[T any] func(ctx context.Context) (Worker[T], error)

// Run processes total units with the given number of workers. Each result is
// stored at its absolute index, so the output order never depends on
// completion order. onUnit is called after every unit, serialized. The
// first failure cancels the remaining workers and no results are returned.
func Run[T any](ctx context.Context, total, workers int, factory WorkerFactory[T], onUnit func(index int, v T)) ([]T, error) {
	if total <= 0 {
		return []T{}, nil
	}

	results := make([]T, total)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, r := range Partition(total, workers) {
		g.Go(func() error {
			w, err := factory(gctx)
			if err != nil {
				return fmt.Errorf("start worker for units %d-%d: %w", r.Start, r.End-1, err)
			}
			defer w.Close()

			for i := r.Start; i < r.End; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				v, err := w.Process(gctx, i)
				if err != nil {
					return fmt.Errorf("unit %d: %w", i, err)
				}
				results[i] = v

				if onUnit != nil {
					mu.Lock()
					onUnit(i, v)
					mu.Unlock()
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
