package solution

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/vk/streamgridgo/internal/ctxlog"
	"github.com/vk/streamgridgo/internal/errs"
	"golang.org/x/sync/errgroup"
)

// Factory builds one solution of a pool.
type Factory func(ctx context.Context) (*Solution, error)

type request struct {
	ctx    context.Context
	values map[string]any
	reply  chan<- response
}

type response struct {
	result Result
	err    error
}

// Pool owns independent solutions, each driven by its own goroutine, and
// hands requests to them round-robin.
type Pool struct {
	solutions []*Solution
	requests  []chan request
	next      atomic.Uint64

	quit      chan struct{}
	group     *errgroup.Group
	closeOnce sync.Once
	closeErr  error
}

// NewPool builds n solutions with factory and starts one worker for each.
// If any solution fails to build, the ones already built are closed.
func NewPool(ctx context.Context, n int, factory Factory) (*Pool, error) {
	if n <= 0 {
		return nil, errs.Config(component, "NewPool", "pool size must be positive, got %d", n)
	}
	p := &Pool{quit: make(chan struct{}), group: &errgroup.Group{}}
	for i := 0; i < n; i++ {
		s, err := factory(ctx)
		if err != nil {
			closeErr := p.closeSolutions(ctx)
			return nil, errors.Join(err, closeErr)
		}
		p.solutions = append(p.solutions, s)
		p.requests = append(p.requests, make(chan request))
	}

	logger := ctxlog.FromContext(ctx)
	for i := range p.solutions {
		s, requests := p.solutions[i], p.requests[i]
		p.group.Go(func() error {
			logger.Debug("Solution worker started.", "workerID", i+1)
			for {
				select {
				case <-p.quit:
					logger.Debug("Solution worker finished.", "workerID", i+1)
					return nil
				case req := <-requests:
					result, err := s.Process(req.ctx, req.values)
					req.reply <- response{result: result, err: err}
				}
			}
		})
	}
	return p, nil
}

// Size returns the number of solutions.
func (p *Pool) Size() int { return len(p.solutions) }

// Process runs values through the next solution in turn.
func (p *Pool) Process(ctx context.Context, values map[string]any) (Result, error) {
	i := (p.next.Add(1) - 1) % uint64(len(p.requests))
	reply := make(chan response, 1)
	select {
	case p.requests[i] <- request{ctx: ctx, values: values, reply: reply}:
	case <-p.quit:
		return nil, errs.Wrap(errs.KindLifecycle, errs.ErrGraphClosed, component, "Pool.Process")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	// The worker always replies once it has taken a request.
	resp := <-reply
	return resp.result, resp.err
}

// Close stops the workers and closes every solution. Later calls return
// the result of the first.
func (p *Pool) Close(ctx context.Context) error {
	p.closeOnce.Do(func() {
		close(p.quit)
		_ = p.group.Wait()
		p.closeErr = p.closeSolutions(ctx)
	})
	return p.closeErr
}

func (p *Pool) closeSolutions(ctx context.Context) error {
	var all []error
	for _, s := range p.solutions {
		all = append(all, s.Close(ctx))
	}
	return errors.Join(all...)
}
