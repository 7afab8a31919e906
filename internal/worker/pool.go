package worker

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// RunReplicas runs n workers built by newWorker until ctx is cancelled or
// one of them fails. Each replica is independent: its own id, evaluator and
// consumer tag. The workers are returned so callers can read snapshots
// after Run returns.
func RunReplicas(ctx context.Context, n int, newWorker func(i int) *Worker) ([]*Worker, error) {
	if n < 1 {
		n = 1
	}
	workers := make([]*Worker, n)
	for i := range workers {
		workers[i] = newWorker(i)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range workers {
		g.Go(func() error {
			return w.Run(gctx)
		})
	}
	return workers, g.Wait()
}
