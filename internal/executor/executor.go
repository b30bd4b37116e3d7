// Package executor runs scheduled graph nodes on a fixed pool of workers.
package executor

import (
	"context"
	"runtime"
	"sync"

	"github.com/vk/streamgridgo/internal/ctxlog"
)

// Runner executes one scheduled node.
type Runner interface {
	RunNode(ctx context.Context, node int)
}

// Executor owns the worker goroutines of one graph run.
type Executor struct {
	runner    Runner
	workers   int
	readyChan chan int
	wg        sync.WaitGroup
	stopOnce  sync.Once
}

// New creates an executor. capacity bounds the number of nodes that can be
// waiting for a worker; the graph never submits more nodes than it has.
// A workers count of zero or less selects one worker per CPU.
func New(runner Runner, workers, capacity int) *Executor {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Executor{runner: runner, workers: workers, readyChan: make(chan int, capacity)}
}

// Workers returns the number of workers.
func (e *Executor) Workers() int { return e.workers }

// Start launches the workers.
func (e *Executor) Start(ctx context.Context) {
	ctxlog.FromContext(ctx).Debug("Starting executor.", "workers", e.workers)
	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go e.worker(ctx, i+1)
	}
}

// Submit queues node for execution. It does not block as long as the
// capacity given to New is respected.
func (e *Executor) Submit(node int) {
	e.readyChan <- node
}

// Stop lets the workers finish the queued nodes and waits for them to exit.
func (e *Executor) Stop() {
	e.stopOnce.Do(func() { close(e.readyChan) })
	e.wg.Wait()
}
