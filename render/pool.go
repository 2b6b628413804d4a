package render

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
)

// Pool spreads jobs across n independent pipelines. Each pipeline still
// renders one job at a time, so n bounds the number of concurrent
// Ghostscript processes. The pipelines share one event handler lock.
type Pool struct {
	pipelines []*Pipeline
	next      atomic.Uint64
}

func NewPool(n int, r Renderer, opts ...Option) (*Pool, error) {
	if n < 1 {
		n = 1
	}
	pool := &Pool{}
	events := &sync.Mutex{}
	for i := 0; i < n; i++ {
		popts := append(slices.Clone(opts), WithName(fmt.Sprintf("render-%d", i)), withEventLock(events))
		p, err := NewPipeline(r, popts...)
		if err != nil {
			pool.Close()
			return nil, err
		}
		pool.pipelines = append(pool.pipelines, p)
	}
	return pool, nil
}

func (p *Pool) Size() int { return len(p.pipelines) }

// Submit sends the job to the pipeline with the fewest pending jobs.
func (p *Pool) Submit(input, output string, s Settings) (*Job, error) {
	start := int(p.next.Add(1)) % len(p.pipelines)
	best := p.pipelines[start]
	for i := 1; i < len(p.pipelines); i++ {
		candidate := p.pipelines[(start+i)%len(p.pipelines)]
		if candidate.Pending() < best.Pending() {
			best = candidate
		}
	}
	return best.Submit(input, output, s)
}

func (p *Pool) Cancel(id string) error {
	for _, pl := range p.pipelines {
		if _, ok := pl.Job(id); ok {
			return pl.Cancel(id)
		}
	}
	return fmt.Errorf("%w: %s", ErrJobNotFound, id)
}

func (p *Pool) Job(id string) (*Job, bool) {
	for _, pl := range p.pipelines {
		if j, ok := pl.Job(id); ok {
			return j, true
		}
	}
	return nil, false
}

// Jobs lists the jobs of every pipeline.
func (p *Pool) Jobs() []*Job {
	var out []*Job
	for _, pl := range p.pipelines {
		out = append(out, pl.Jobs()...)
	}
	return out
}

func (p *Pool) Close() {
	for _, pl := range p.pipelines {
		pl.Close()
	}
}
