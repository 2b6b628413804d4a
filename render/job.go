package render

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRendering Status = "rendering"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError || s == StatusCancelled
}

var transitions = map[Status][]Status{
	StatusPending:   {StatusRendering, StatusCancelled},
	StatusRendering: {StatusCompleted, StatusError, StatusCancelled},
}

var ErrCancelled = errors.New("render job cancelled")

// Job is one queued render.
type Job struct {
	ID       string
	Input    string
	Output   string
	Settings Settings

	seq uint64

	mu         sync.Mutex
	status     Status
	progress   float64
	err        error
	submitted  time.Time
	started    time.Time
	finished   time.Time
	cancel     context.CancelFunc
	cancelling bool
	done       chan struct{}
}

func newJob(seq uint64, input, output string, s Settings) *Job {
	return &Job{
		ID:        uuid.NewString(),
		Input:     input,
		Output:    output,
		Settings:  s,
		seq:       seq,
		status:    StatusPending,
		submitted: time.Now(),
		done:      make(chan struct{}),
	}
}

// JobInfo is a point in time copy of a job's state.
type JobInfo struct {
	ID        string        `json:"id" yaml:"id"`
	Input     string        `json:"input" yaml:"input"`
	Output    string        `json:"output" yaml:"output"`
	Status    Status        `json:"status" yaml:"status"`
	Progress  float64       `json:"progress" yaml:"progress"`
	Error     string        `json:"error,omitempty" yaml:"error,omitempty"`
	Submitted time.Time     `json:"submitted" yaml:"submitted"`
	Duration  time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`
}

func (j *Job) Info() JobInfo {
	j.mu.Lock()
	defer j.mu.Unlock()
	info := JobInfo{
		ID:        j.ID,
		Input:     j.Input,
		Output:    j.Output,
		Status:    j.status,
		Progress:  j.progress,
		Submitted: j.submitted,
		Duration:  j.duration(),
	}
	if j.err != nil {
		info.Error = j.err.Error()
	}
	return info
}

func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Progress is the completed fraction, between 0 and 1.
func (j *Job) Progress() float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.progress
}

func (j *Job) Duration() time.Duration {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.duration()
}

func (j *Job) duration() time.Duration {
	if j.started.IsZero() {
		return 0
	}
	if j.finished.IsZero() {
		return time.Since(j.started)
	}
	return j.finished.Sub(j.started)
}

// Done is closed once the job reaches a terminal status.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job finishes or ctx ends, and returns the job's
// error.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return j.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// transition moves the job to status to. Transitions not allowed by the
// state machine are refused.
func (j *Job) transition(to Status, err error) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !slices.Contains(transitions[j.status], to) {
		return false
	}
	j.status = to
	switch to {
	case StatusRendering:
		j.started = time.Now()
	case StatusCompleted:
		j.progress = 1
		fallthrough
	default:
		j.finished = time.Now()
		j.err = err
		if to == StatusCancelled && err == nil {
			j.err = ErrCancelled
		}
		close(j.done)
	}
	return true
}

func (j *Job) setProgress(p float64) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != StatusRendering || p <= j.progress {
		return false
	}
	j.progress = min(p, 1)
	return true
}

func (j *Job) String() string {
	return fmt.Sprintf("job %s (%s)", j.ID[:8], j.Input)
}
