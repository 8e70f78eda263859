package auth

// #region imports
import (
	"context"
	"sync"
)

// #endregion imports

// #region pool

// Pool processes attempts on a fixed set of workers so a burst of
// concurrent attempts cannot oversubscribe the engine.
type Pool struct {
	orch    *Orchestrator
	workers int
	queue   chan Attempt
	wg      sync.WaitGroup
}

// NewPool sizes the pool from the orchestrator's runtime config.
func NewPool(orch *Orchestrator) *Pool {
	workers := orch.cfg.Workers
	if workers < 1 {
		workers = DefaultConfig().Workers
	}
	depth := orch.cfg.QueueDepth
	if depth < 1 {
		depth = DefaultConfig().QueueDepth
	}
	return &Pool{
		orch:    orch,
		workers: workers,
		queue:   make(chan Attempt, depth),
	}
}

// Start launches the workers. They drain the queue until ctx is
// cancelled; call Wait for a clean shutdown.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case attempt := <-p.queue:
			if _, err := p.orch.Authenticate(ctx, attempt); err != nil {
				p.orch.log.Warn("attempt failed", "worker", id, "attempt_id", attempt.ID, "err", err)
			}
		}
	}
}

// #endregion pool

// #region submit

// Submit queues an attempt, blocking while the queue is full. Returns
// the context error when ctx ends first.
func (p *Pool) Submit(ctx context.Context, attempt Attempt) error {
	select {
	case p.queue <- attempt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Backlog returns the number of queued attempts.
func (p *Pool) Backlog() int {
	return len(p.queue)
}

// Wait blocks until every worker has stopped.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// #endregion submit
