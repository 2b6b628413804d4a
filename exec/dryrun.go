package exec

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DryRun is a Runner that never starts a process. Calls are recorded and
// answered by Handler, which may write output files or emit lines to
// simulate a tool. Without a Handler every call succeeds silently.
type DryRun struct {
	// Missing lists binaries that LookPath reports as absent.
	Missing []string
	Handler func(ctx context.Context, p *Process) error

	mu    sync.Mutex
	calls []Call
}

// Call is a recorded invocation.
type Call struct {
	Cmd  string
	Args []string
}

func (d *DryRun) LookPath(name string) (string, error) {
	for _, m := range d.Missing {
		if m == name {
			return "", fmt.Errorf("%w: %s", ErrNotFound, name)
		}
	}
	return "/usr/bin/" + name, nil
}

func (d *DryRun) Run(ctx context.Context, p *Process) error {
	d.mu.Lock()
	d.calls = append(d.calls, Call{Cmd: p.Cmd, Args: append([]string(nil), p.Args...)})
	d.mu.Unlock()

	if _, err := d.LookPath(p.Cmd); err != nil {
		p.Err = err
		return err
	}

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	p.logger().Infof("[dry-run] %s", p)
	p.Started = time.Now()
	p.ExitCode = 0
	if d.Handler != nil {
		p.Err = d.Handler(ctx, p)
	}
	p.Finished = time.Now()
	p.flush()

	if p.Err != nil && p.ExitCode == 0 {
		p.ExitCode = 1
	}
	if p.Err == nil && ctx.Err() != nil {
		p.Err = fmt.Errorf("%s: %w", p.Cmd, ctx.Err())
		if ctx.Err() == context.DeadlineExceeded {
			p.TimedOut = true
			p.Err = fmt.Errorf("%w: %s", ErrTimeout, p.Cmd)
		}
	}
	return p.Err
}

// Calls returns the recorded invocations in order.
func (d *DryRun) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Call(nil), d.calls...)
}
