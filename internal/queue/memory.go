package queue

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// MemoryDispatcher runs jobs on a fixed pool of goroutines in this process.
type MemoryDispatcher struct {
	jobs    chan Job
	workers int
	log     *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewMemoryDispatcher(workers, buffer int, log *zap.Logger) *MemoryDispatcher {
	if workers <= 0 {
		workers = 1
	}
	return &MemoryDispatcher{
		jobs:    make(chan Job, buffer),
		workers: workers,
		log:     log,
	}
}

// Enqueue never waits for buffer space: a full buffer is ErrFull.
func (d *MemoryDispatcher) Enqueue(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}

	select {
	case d.jobs <- job:
		return nil
	default:
		return ErrFull
	}
}

func (d *MemoryDispatcher) Start(ctx context.Context, handler Handler) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for job := range d.jobs {
				if err := handler(ctx, job); err != nil {
					d.log.Error("Batch run failed",
						zap.String("request_id", job.RequestID),
						zap.Error(err))
				}
			}
		}()
	}
}

// Close stops accepting jobs and waits for queued ones to finish.
func (d *MemoryDispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()

	d.wg.Wait()
	return nil
}
