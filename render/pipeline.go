package render

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/flanksource/commons/collections"
	"github.com/flanksource/commons/text"
)

var (
	ErrClosed      = errors.New("render pipeline is closed")
	ErrJobNotFound = errors.New("render job not found")
)

// Event is emitted on every status change and progress update.
type Event struct {
	Job      JobInfo
	Previous Status
}

type Option func(*Pipeline)

// WithEventHandler registers fn for job events. Events come from Submit,
// Cancel and the worker goroutine, but calls to fn never overlap. fn must
// not block or call back into the pipeline.
func WithEventHandler(fn func(Event)) Option {
	return func(p *Pipeline) { p.onEvent = fn }
}

// withEventLock shares one event lock between the pipelines of a pool.
func withEventLock(mu *sync.Mutex) Option {
	return func(p *Pipeline) { p.eventMu = mu }
}

func WithName(name string) Option {
	return func(p *Pipeline) { p.name = name }
}

// Pipeline renders submitted jobs one at a time in submission order.
type Pipeline struct {
	name     string
	renderer Renderer
	onEvent  func(Event)
	eventMu  *sync.Mutex
	queue    *collections.Queue[*Job]

	mu      sync.Mutex
	jobs    []*Job
	byID    map[string]*Job
	seq     uint64
	pending int
	closed  bool

	wake chan struct{}
	stop chan struct{}
	wg   sync.WaitGroup
}

func NewPipeline(r Renderer, opts ...Option) (*Pipeline, error) {
	queue, err := collections.NewQueue(collections.QueueOpts[*Job]{
		Comparator: func(a, b *Job) int {
			return cmp.Compare(a.seq, b.seq)
		},
		Dedupe: false,
		Metrics: collections.MetricsOpts[*Job]{
			Disable: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create render queue: %w", err)
	}
	p := &Pipeline{
		name:     "render",
		renderer: r,
		queue:    queue,
		byID:     map[string]*Job{},
		eventMu:  &sync.Mutex{},
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.wg.Add(1)
	go p.run()
	return p, nil
}

// Submit queues a render of input into output.
func (p *Pipeline) Submit(input, output string, s Settings) (*Job, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	p.seq++
	job := newJob(p.seq, input, output, s)
	p.jobs = append(p.jobs, job)
	p.byID[job.ID] = job
	p.pending++
	queueDepth.WithLabelValues(p.name).Set(float64(p.pending))
	p.mu.Unlock()

	p.emit(job, "")
	p.queue.Enqueue(job)
	log.Debugf("queued %s", job)

	select {
	case p.wake <- struct{}{}:
	default:
	}
	return job, nil
}

// Job looks a job up by id.
func (p *Pipeline) Job(id string) (*Job, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	j, ok := p.byID[id]
	return j, ok
}

// Jobs lists all jobs in submission order.
func (p *Pipeline) Jobs() []*Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Job(nil), p.jobs...)
}

// Pending is the number of jobs waiting to start.
func (p *Pipeline) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending
}

// Cancel stops a pending or running job. A pending job never starts; a
// running job has its process killed. Other jobs are unaffected.
func (p *Pipeline) Cancel(id string) error {
	job, ok := p.Job(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return p.cancel(job)
}

func (p *Pipeline) cancel(job *Job) error {
	job.mu.Lock()
	switch job.status {
	case StatusPending:
		job.mu.Unlock()
		if job.transition(StatusCancelled, nil) {
			p.dequeued()
			jobsTotal.WithLabelValues(string(StatusCancelled)).Inc()
			p.emit(job, StatusPending)
		}
		return nil
	case StatusRendering:
		job.cancelling = true
		cancel := job.cancel
		job.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return nil
	default:
		status := job.status
		job.mu.Unlock()
		return fmt.Errorf("%s is already %s", job, status)
	}
}

// Close cancels outstanding jobs and stops the worker.
func (p *Pipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	jobs := append([]*Job(nil), p.jobs...)
	p.mu.Unlock()

	for _, j := range jobs {
		if !j.Status().Terminal() {
			_ = p.cancel(j)
		}
	}
	close(p.stop)
	p.wg.Wait()
}

func (p *Pipeline) dequeued() {
	p.mu.Lock()
	p.pending--
	queueDepth.WithLabelValues(p.name).Set(float64(p.pending))
	p.mu.Unlock()
}

func (p *Pipeline) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stop:
			return
		case <-p.wake:
		}
		for {
			select {
			case <-p.stop:
				return
			default:
			}
			job, ok := p.queue.Dequeue()
			if !ok {
				break
			}
			p.execute(job)
		}
	}
}

// start moves a pending job to rendering and records its cancel function
// in one step, so a concurrent Cancel always finds one or the other.
func (j *Job) start(cancel context.CancelFunc) bool {
	j.mu.Lock()
	if j.status != StatusPending {
		j.mu.Unlock()
		return false
	}
	j.cancel = cancel
	j.mu.Unlock()
	return j.transition(StatusRendering, nil)
}

func (p *Pipeline) execute(job *Job) {
	ctx, cancel := context.WithTimeout(context.Background(), job.Settings.timeout())
	defer cancel()
	if !job.start(cancel) {
		return
	}
	p.dequeued()
	p.emit(job, StatusPending)
	log.Infof("rendering %s to %s", job, job.Output)

	out, err := p.renderer.Render(ctx, job, func(f float64) {
		if job.setProgress(f) {
			p.emit(job, StatusRendering)
		}
	})

	job.mu.Lock()
	cancelled := job.cancelling
	job.mu.Unlock()

	var final Status
	switch {
	case cancelled:
		final = StatusCancelled
		err = nil
	case err != nil:
		final = StatusError
	default:
		final = StatusCompleted
	}
	job.transition(final, err)

	jobsTotal.WithLabelValues(string(final)).Inc()
	jobDuration.WithLabelValues(string(job.Settings.Format)).Observe(job.Duration().Seconds())
	switch final {
	case StatusCompleted:
		log.Infof("rendered %s in %s (%d bytes)", job, text.HumanizeDuration(job.Duration()), out.Size)
	case StatusError:
		log.Errorf("%s failed after %s: %v", job, text.HumanizeDuration(job.Duration()), err)
	default:
		log.Infof("%s cancelled", job)
	}
	p.emit(job, StatusRendering)
}

func (p *Pipeline) emit(job *Job, previous Status) {
	if p.onEvent == nil {
		return
	}
	p.eventMu.Lock()
	defer p.eventMu.Unlock()
	p.onEvent(Event{Job: job.Info(), Previous: previous})
}
