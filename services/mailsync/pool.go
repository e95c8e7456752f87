package mailsync

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// WorkerPool bounds how many blocking units of work (connect, fetch batch,
// flag push) run at once across all synchronizers.
type WorkerPool struct {
	sem  *semaphore.Weighted
	size int
}

func NewWorkerPool(size int) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{sem: semaphore.NewWeighted(int64(size)), size: size}
}

// Do waits for a free slot, then runs fn on the caller's goroutine. Only the
// wait is cancelled by ctx.
func (p *WorkerPool) Do(ctx context.Context, fn func() error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn()
}

func (p *WorkerPool) Size() int {
	return p.size
}
