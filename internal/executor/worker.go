package executor

import (
	"context"

	"github.com/vk/streamgridgo/internal/ctxlog"
)

// worker is the core processing loop for a single concurrent worker.
func (e *Executor) worker(ctx context.Context, workerID int) {
	defer e.wg.Done()
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "workerID", workerID)

	for n := range e.readyChan {
		e.runner.RunNode(ctx, n)
	}
	logger.Debug("Worker finished.", "workerID", workerID)
}
