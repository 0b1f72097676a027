// Package worker provides a parallel fan-out pool over tile addresses,
// used by the CLI's bulk operator commands (warm, bulk-expire) to drive
// many storage operations against a constructed storage graph at once.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/MeKo-Tech/tilestore/internal/tilekey"
)

// Op performs one storage operation against tile, reporting whether it
// succeeded. A typical Op closes over a storage.Storage and calls its
// Get or Expire method, translating that method's own (bool, error)
// into this single outcome.
type Op interface {
	Run(ctx context.Context, tile tilekey.Address) (ok bool, err error)
}

// OpFunc adapts a plain function to the Op interface.
type OpFunc func(ctx context.Context, tile tilekey.Address) (bool, error)

// Run calls f.
func (f OpFunc) Run(ctx context.Context, tile tilekey.Address) (bool, error) {
	return f(ctx, tile)
}

// Task represents a single tile to run Op against.
type Task struct {
	Tile tilekey.Address
}

// Result represents the outcome of running Op against one Task.
type Result struct {
	Task    Task
	OK      bool
	Err     error
	Elapsed time.Duration
}

// ProgressFunc is called after each task completes.
type ProgressFunc func(completed, total, failed int)

// Config configures the worker pool.
type Config struct {
	Workers    int
	Op         Op
	OnProgress ProgressFunc
}

// Pool runs Op against many tile addresses in parallel.
type Pool struct {
	workers    int
	op         Op
	onProgress ProgressFunc
}

// New creates a new worker pool.
func New(cfg Config) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	return &Pool{
		workers:    workers,
		op:         cfg.Op,
		onProgress: cfg.OnProgress,
	}
}

// Run executes all tasks and returns results.
// Tasks are processed in parallel by the configured number of workers.
// The function blocks until all tasks complete or the context is cancelled.
func (p *Pool) Run(ctx context.Context, tasks []Task) []Result {
	if len(tasks) == 0 {
		return nil
	}

	// Create channels
	taskCh := make(chan Task, len(tasks))
	resultCh := make(chan Result, len(tasks))

	// Track progress
	var (
		completed int
		failed    int
		mu        sync.Mutex
	)

	// Start workers
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(ctx, taskCh, resultCh)
		}()
	}

	// Feed tasks
	go func() {
		defer close(taskCh)
		for _, task := range tasks {
			select {
			case taskCh <- task:
			case <-ctx.Done():
				// Context cancelled, stop feeding
				return
			}
		}
	}()

	// Collect results in a separate goroutine
	results := make([]Result, 0, len(tasks))
	done := make(chan struct{})

	go func() {
		for result := range resultCh {
			results = append(results, result)

			// Update progress
			mu.Lock()
			completed++
			if result.Err != nil || !result.OK {
				failed++
			}
			c, f := completed, failed
			mu.Unlock()

			if p.onProgress != nil {
				p.onProgress(c, len(tasks), f)
			}
		}
		close(done)
	}()

	// Wait for workers to finish
	wg.Wait()
	close(resultCh)

	// Wait for result collection to finish
	<-done

	return results
}

// worker processes tasks from the task channel and sends results to the result channel.
func (p *Pool) worker(ctx context.Context, tasks <-chan Task, results chan<- Result) {
	for task := range tasks {
		select {
		case <-ctx.Done():
			// Send cancellation result
			results <- Result{
				Task: task,
				Err:  ctx.Err(),
			}
			continue
		default:
		}

		start := time.Now()
		ok, err := p.op.Run(ctx, task.Tile)
		elapsed := time.Since(start)

		results <- Result{
			Task:    task,
			OK:      ok,
			Err:     err,
			Elapsed: elapsed,
		}
	}
}
