package pipeline

import (
	"context"
	"runtime"
	"sync"
)

// outcome is one worker's answer for one revision. The declared revision is
// checked by the writer against the dispatch order.
type outcome struct {
	rev  string
	data *TimelineData
	err  error
}

// worker precomputes revisions from its own repository handle. The goroutine
// is locked to its OS thread for the lifetime of the libgit2 handle.
type worker struct {
	jobs    chan string
	results chan outcome
}

// pool is a fixed set of workers with static round-robin assignment.
type pool struct {
	workers []*worker
	wg      sync.WaitGroup
}

// workerCount resolves the configured count: zero means one fewer than the
// CPU count, and never less than one.
func workerCount(configured int) int {
	if configured > 0 {
		return configured
	}

	count := runtime.NumCPU() - 1
	if count < 1 {
		count = 1
	}

	return count
}

// startPool launches count workers. Each worker calls newPrecomputer on its
// own locked thread, so repository handles are created where they are used.
func startPool(ctx context.Context, count, queueDepth int, newPrecomputer func() (*Precomputer, func(), error)) *pool {
	p := &pool{workers: make([]*worker, count)}

	for i := range count {
		w := &worker{
			jobs:    make(chan string, queueDepth),
			results: make(chan outcome, queueDepth),
		}
		p.workers[i] = w

		p.wg.Add(1)

		go func() {
			defer p.wg.Done()

			w.run(ctx, newPrecomputer)
		}()
	}

	return p
}

func (w *worker) run(ctx context.Context, newPrecomputer func() (*Precomputer, func(), error)) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	pre, cleanup, err := newPrecomputer()
	if err != nil {
		// Surface the startup failure as the answer to the first job.
		for rev := range w.jobs {
			w.results <- outcome{rev: rev, err: err}
		}

		close(w.results)

		return
	}

	defer cleanup()

	for rev := range w.jobs {
		data, computeErr := pre.Compute(ctx, rev)
		w.results <- outcome{rev: rev, data: data, err: computeErr}
	}

	close(w.results)
}

// dispatch sends a revision to the worker owning the given plan position.
func (p *pool) dispatch(position int, rev string) {
	p.workers[position%len(p.workers)].jobs <- rev
}

// collect receives the outcome for the given plan position. Static
// round-robin on both sides keeps dispatch and consumption aligned.
func (p *pool) collect(position int) outcome {
	return <-p.workers[position%len(p.workers)].results
}

// close stops accepting jobs and joins the workers. Abandoned results are
// drained so a worker blocked on its results channel can exit; the wait
// guarantees every worker's cleanup ran before the run reports completion.
func (p *pool) close() {
	for _, w := range p.workers {
		close(w.jobs)
	}

	for _, w := range p.workers {
		for range w.results {
		}
	}

	p.wg.Wait()
}
