package exec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/flanksource/commons/logger"
	"github.com/flanksource/commons/text"
)

var (
	// ErrNotFound is returned when the binary is not on PATH.
	ErrNotFound = errors.New("executable not found")
	// ErrTimeout is returned when a process outlives its timeout.
	ErrTimeout = errors.New("process timed out")
)

var log = logger.GetLogger("exec")

// Runner starts external processes. Every external tool the pipeline
// depends on is reached through this interface.
type Runner interface {
	LookPath(name string) (string, error)
	Run(ctx context.Context, p *Process) error
}

// Process describes a single invocation and collects its result.
type Process struct {
	Cmd     string
	Args    []string
	Env     map[string]string
	Cwd     string
	Timeout time.Duration
	Log     logger.Logger

	// OnLine receives every line written to stdout or stderr as it arrives.
	OnLine func(line string)

	Stdout   bytes.Buffer
	Stderr   bytes.Buffer
	ExitCode int
	TimedOut bool
	Started  time.Time
	Finished time.Time
	Err      error

	mu      sync.Mutex
	partial []byte
}

// Command creates a process description.
func Command(name string, args ...string) *Process {
	return &Process{Cmd: name, Args: args, ExitCode: -1}
}

func (p *Process) WithEnv(env map[string]string) *Process {
	p.Env = env
	return p
}

func (p *Process) WithCwd(cwd string) *Process {
	p.Cwd = cwd
	return p
}

func (p *Process) WithTimeout(timeout time.Duration) *Process {
	p.Timeout = timeout
	return p
}

func (p *Process) WithLogger(log logger.Logger) *Process {
	p.Log = log
	return p
}

func (p *Process) WithLineHandler(fn func(line string)) *Process {
	p.OnLine = fn
	return p
}

// Out is the combined stderr and stdout.
func (p *Process) Out() string {
	return p.Stderr.String() + p.Stdout.String()
}

// IsOK reports a clean exit.
func (p *Process) IsOK() bool {
	return p.Err == nil && p.ExitCode == 0
}

// Duration is the wall time of the last run.
func (p *Process) Duration() time.Duration {
	if p.Finished.IsZero() {
		return 0
	}
	return p.Finished.Sub(p.Started)
}

func (p *Process) String() string {
	return strings.TrimSpace(p.Cmd + " " + strings.Join(p.Args, " "))
}

// Emit appends a line of stdout and forwards it to OnLine.
func (p *Process) Emit(line string) {
	_, _ = p.writeStream(&p.Stdout, []byte(line+"\n"))
}

func (p *Process) writeStream(buf *bytes.Buffer, b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	buf.Write(b)
	if p.OnLine == nil {
		return len(b), nil
	}
	p.partial = append(p.partial, b...)
	for {
		i := bytes.IndexAny(p.partial, "\r\n")
		if i < 0 {
			break
		}
		if line := strings.TrimSpace(string(p.partial[:i])); line != "" {
			p.OnLine(line)
		}
		p.partial = p.partial[i+1:]
	}
	return len(b), nil
}

func (p *Process) flush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.OnLine != nil {
		if line := strings.TrimSpace(string(p.partial)); line != "" {
			p.OnLine(line)
		}
	}
	p.partial = nil
}

func (p *Process) logger() logger.Logger {
	if p.Log != nil {
		return p.Log
	}
	return log
}

type streamWriter struct {
	p   *Process
	buf *bytes.Buffer
}

func (w streamWriter) Write(b []byte) (int, error) {
	return w.p.writeStream(w.buf, b)
}

// Local runs processes on the host.
type Local struct{}

func (Local) LookPath(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return path, nil
}

// Run executes p and waits for it. Cancelling ctx or exceeding p.Timeout
// kills the process.
func (l Local) Run(ctx context.Context, p *Process) error {
	path, err := l.LookPath(p.Cmd)
	if err != nil {
		p.Err = err
		return err
	}

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, path, p.Args...)
	cmd.Dir = p.Cwd
	cmd.WaitDelay = 2 * time.Second
	cmd.Stdout = streamWriter{p: p, buf: &p.Stdout}
	cmd.Stderr = streamWriter{p: p, buf: &p.Stderr}
	if len(p.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range p.Env {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
		}
	}

	p.logger().Debugf("running %s", p)
	p.Started = time.Now()
	err = cmd.Run()
	p.Finished = time.Now()
	p.flush()

	if cmd.ProcessState != nil {
		p.ExitCode = cmd.ProcessState.ExitCode()
	}

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		p.TimedOut = true
		p.Err = fmt.Errorf("%w: %s after %s", ErrTimeout, p.Cmd, text.HumanizeDuration(p.Duration()))
	case errors.Is(ctx.Err(), context.Canceled):
		p.Err = fmt.Errorf("%s: %w", p.Cmd, ctx.Err())
	case err != nil:
		p.Err = fmt.Errorf("%s exited with code %d: %w", p.Cmd, p.ExitCode, err)
	}

	if p.Err != nil {
		p.logger().Debugf("%s failed in %s: %v", p.Cmd, text.HumanizeDuration(p.Duration()), p.Err)
	} else {
		p.logger().Debugf("%s finished in %s", p.Cmd, text.HumanizeDuration(p.Duration()))
	}
	return p.Err
}
