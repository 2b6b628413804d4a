package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/flanksource/commons/logger"

	"github.com/flanksource/tabloide/exec"
)

var log = logger.GetLogger("render")

// Renderer produces the output of one job. progress takes the completed
// fraction.
type Renderer interface {
	Render(ctx context.Context, job *Job, progress func(float64)) (Output, error)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(ctx context.Context, job *Job, progress func(float64)) (Output, error)

func (f RendererFunc) Render(ctx context.Context, job *Job, progress func(float64)) (Output, error) {
	return f(ctx, job, progress)
}

// RenderError reports the stage of a job that failed.
type RenderError struct {
	Job   string
	Stage string
	Err   error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("job %s: %s: %v", e.Job, e.Stage, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

func renderError(job *Job, stage string, err error) error {
	if err == nil {
		return nil
	}
	return &RenderError{Job: job.ID, Stage: stage, Err: err}
}

// PrintRenderer normalizes SVG to PDF with a vector converter, runs it
// through Ghostscript for the press settings and verifies the result. PNG
// jobs are rasterized in process.
type PrintRenderer struct {
	Converters  *ConverterManager
	Ghostscript *Ghostscript
	TempDir     string
}

func NewPrintRenderer(runner exec.Runner, extra ...Converter) *PrintRenderer {
	return &PrintRenderer{
		Converters:  NewConverterManager(runner, extra...),
		Ghostscript: NewGhostscript(runner),
	}
}

func (r *PrintRenderer) Render(ctx context.Context, job *Job, progress func(float64)) (Output, error) {
	s := job.Settings
	if err := s.Validate(); err != nil {
		return Output{}, renderError(job, "settings", err)
	}
	if _, err := os.Stat(job.Input); err != nil {
		return Output{}, renderError(job, "input", err)
	}
	if err := os.MkdirAll(filepath.Dir(job.Output), 0755); err != nil {
		return Output{}, renderError(job, "output", err)
	}

	partial := job.Output + ".part"
	defer os.Remove(partial)

	switch s.Format {
	case FormatPNG:
		if err := Preview(ctx, job.Input, partial, s.DPI); err != nil {
			return Output{}, renderError(job, "rasterize", err)
		}
	case FormatPDF:
		if err := r.pdf(ctx, job, partial, progress); err != nil {
			return Output{}, err
		}
	}

	if _, err := Verify(partial, s.Format); err != nil {
		return Output{}, renderError(job, "verify", err)
	}
	if err := os.Rename(partial, job.Output); err != nil {
		return Output{}, renderError(job, "output", err)
	}
	out, err := Verify(job.Output, s.Format)
	return out, renderError(job, "verify", err)
}

// pdf runs one Ghostscript process per job. SVG input needs a vector
// converter process before it, since Ghostscript cannot read SVG.
func (r *PrintRenderer) pdf(ctx context.Context, job *Job, output string, progress func(float64)) error {
	input := job.Input
	const convertShare = 0.2
	if strings.EqualFold(filepath.Ext(input), ".svg") {
		dir := r.TempDir
		if dir == "" {
			dir = filepath.Dir(job.Output)
		}
		vector := filepath.Join(dir, "."+job.ID+".vector.pdf")
		defer os.Remove(vector)
		if err := r.Converters.Convert(ctx, input, vector, &ConvertOptions{Format: "pdf", DPI: job.Settings.DPI}); err != nil {
			return renderError(job, "convert", err)
		}
		input = vector
		progress(convertShare)
	}
	err := r.Ghostscript.Rasterize(ctx, input, output, job.Settings, func(p Progress) {
		progress(convertShare + (1-convertShare)*p.Fraction())
	})
	return renderError(job, "ghostscript", err)
}
