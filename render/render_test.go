package render

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flanksource/tabloide/exec"
	"github.com/flanksource/tabloide/template"
)

func samplePDF(t *testing.T) []byte {
	t.Helper()
	m := maroto.New(config.NewBuilder().Build())
	m.AddRow(10, text.NewCol(12, "render fixture"))
	doc, err := m.Generate()
	require.NoError(t, err)
	return doc.GetBytes()
}

var outputFlags = []string{"-sOutputFile=", "--export-filename=", "--output="}

// fakeTools simulates inkscape, rsvg-convert and gs by writing pdf to the
// output argument. Commands listed in fail exit with an error.
func fakeTools(pdf []byte, fail ...string) *exec.DryRun {
	return &exec.DryRun{Handler: func(ctx context.Context, p *exec.Process) error {
		for _, f := range fail {
			if p.Cmd == f {
				return errors.New("simulated failure")
			}
		}
		for _, a := range p.Args {
			for _, prefix := range outputFlags {
				if strings.HasPrefix(a, prefix) {
					if err := os.WriteFile(strings.TrimPrefix(a, prefix), pdf, 0644); err != nil {
						return err
					}
				}
			}
		}
		if p.Cmd == "gs" {
			p.Emit("GPL Ghostscript 10.02.1")
			p.Emit("Processing pages 1 through 2.")
			p.Emit("Page 1")
			p.Emit("Page 2")
		}
		return nil
	}}
}

func TestBuildArgs(t *testing.T) {
	s := DefaultSettings()
	assert.Equal(t, []string{
		"-dSAFER", "-dNOPAUSE", "-dBATCH", "-r300", "-sDEVICE=pdfwrite",
		"-dProcessColorModel=/DeviceCMYK", "-dColorConversionStrategy=/CMYK",
		"-dCompatibilityLevel=1.4",
		"-dEmbedAllFonts=true", "-dSubsetFonts=true",
		"-dAutoFilterColorImages=true", "-dColorImageQuality=95",
		"-sOutputFile=out.pdf", "in.pdf",
	}, BuildArgs("in.pdf", "out.pdf", s))
	assert.Equal(t, BuildArgs("in.pdf", "out.pdf", s), BuildArgs("in.pdf", "out.pdf", s))

	s = Settings{DPI: 150, ColorModel: ColorRGB, PDFVersion: "1.6", Overprint: true, ICCProfile: "/icc/fogra39.icc"}
	assert.Equal(t, []string{
		"-dSAFER", "-dNOPAUSE", "-dBATCH", "-r150", "-sDEVICE=pdfwrite",
		"-dCompatibilityLevel=1.6",
		"-dOverprint=/enable",
		"-sOutputICCProfile=/icc/fogra39.icc",
		"-sOutputFile=b.pdf", "a.pdf",
	}, BuildArgs("a.pdf", "b.pdf", s))
}

func TestBuildArgsFonts(t *testing.T) {
	cases := []struct {
		name  string
		embed bool
		sub   bool
		want  []string
		never []string
	}{
		{"embed and subset", true, true, []string{"-dEmbedAllFonts=true", "-dSubsetFonts=true"}, nil},
		{"embed whole fonts", true, false, []string{"-dEmbedAllFonts=true", "-dSubsetFonts=false"}, []string{"-dSubsetFonts=true"}},
		{"no embedding", false, true, nil, []string{"-dEmbedAllFonts=true", "-dSubsetFonts=true", "-dSubsetFonts=false"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := DefaultSettings()
			s.EmbedFonts, s.SubsetFonts = tc.embed, tc.sub
			args := BuildArgs("in.pdf", "out.pdf", s)
			for _, a := range tc.want {
				assert.Contains(t, args, a)
			}
			for _, a := range tc.never {
				assert.NotContains(t, args, a)
			}
			assert.Equal(t, []string{"-sOutputFile=out.pdf", "in.pdf"}, args[len(args)-2:])
		})
	}
}

func TestConverterArgsKeepText(t *testing.T) {
	opts := DefaultConvertOptions()
	opts.Format = "pdf"
	for _, c := range []interface {
		Args(string, string, *ConvertOptions) ([]string, error)
	}{&Inkscape{}, &RSVG{}} {
		args, err := c.Args("in.svg", "out.pdf", opts)
		require.NoError(t, err)
		for _, a := range args {
			assert.NotContains(t, a, "text-to-path", "%T outlines text", c)
		}
	}

	args, err := (&Inkscape{}).Args("in.svg", "out.pdf", opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"in.svg", "--export-filename=out.pdf", "--export-type=pdf"}, args)
}

func TestProgressParser(t *testing.T) {
	var got []float64
	p := &progressParser{fn: func(pr Progress) { got = append(got, pr.Fraction()) }}
	for _, l := range []string{"GPL Ghostscript", "Processing pages 1 through 4.", "Page 1", "Page 2", "noise", "Page 4"} {
		p.line(l)
	}
	assert.Equal(t, []float64{0.25, 0.5, 1}, got)

	got = nil
	p = &progressParser{fn: func(pr Progress) { got = append(got, pr.Fraction()) }}
	p.line("Page 1")
	assert.Equal(t, []float64{0}, got, "unknown range reports no progress")
}

func TestSettingsValidate(t *testing.T) {
	assert.NoError(t, DefaultSettings().Validate())

	s := DefaultSettings()
	s.DPI = 10
	s.PDFVersion = "2.5"
	s.Format = "tiff"
	s.BleedMM = -1
	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dpi")
	assert.Contains(t, err.Error(), "pdf version")
	assert.Contains(t, err.Error(), "tiff")
	assert.Contains(t, err.Error(), "bleed must not be negative")
}

func TestJobTransitions(t *testing.T) {
	j := newJob(1, "in", "out", DefaultSettings())
	assert.False(t, j.transition(StatusCompleted, nil), "pending cannot complete without rendering")
	assert.True(t, j.transition(StatusRendering, nil))
	assert.False(t, j.transition(StatusPending, nil))
	assert.True(t, j.transition(StatusCompleted, nil))
	assert.False(t, j.transition(StatusCancelled, nil))
	assert.Equal(t, 1.0, j.Progress())
	require.NoError(t, j.Wait(context.Background()))

	j = newJob(2, "in", "out", DefaultSettings())
	assert.True(t, j.transition(StatusCancelled, nil))
	assert.ErrorIs(t, j.Err(), ErrCancelled)
}

type recorder struct {
	mu     sync.Mutex
	order  []string
	events []Event
}

func (r *recorder) add(input string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, input)
}

func (r *recorder) event(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) statuses(id string) []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Status
	for _, e := range r.events {
		if e.Job.ID == id && (len(out) == 0 || out[len(out)-1] != e.Job.Status) {
			out = append(out, e.Job.Status)
		}
	}
	return out
}

func wait(t *testing.T, jobs ...*Job) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, j := range jobs {
		<-waitDone(ctx, j)
		require.NoError(t, ctx.Err(), "timed out waiting for %s", j)
	}
}

func waitDone(ctx context.Context, j *Job) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		_ = j.Wait(ctx)
		close(ch)
	}()
	return ch
}

func TestPipelineRunsInOrder(t *testing.T) {
	rec := &recorder{}
	release := make(chan struct{})
	r := RendererFunc(func(ctx context.Context, job *Job, progress func(float64)) (Output, error) {
		if job.Input == "a" {
			<-release
		}
		progress(0.5)
		rec.add(job.Input)
		return Output{Path: job.Output, Size: 1}, nil
	})

	p, err := NewPipeline(r, WithEventHandler(rec.event))
	require.NoError(t, err)
	defer p.Close()

	var jobs []*Job
	for _, in := range []string{"a", "b", "c", "d"} {
		j, err := p.Submit(in, in+".pdf", DefaultSettings())
		require.NoError(t, err)
		jobs = append(jobs, j)
	}
	assert.Equal(t, StatusPending, jobs[3].Status())
	close(release)
	wait(t, jobs...)

	assert.Equal(t, []string{"a", "b", "c", "d"}, rec.order)
	for _, j := range jobs {
		assert.Equal(t, StatusCompleted, j.Status())
		assert.Equal(t, []Status{StatusPending, StatusRendering, StatusCompleted}, rec.statuses(j.ID))
	}
	assert.Equal(t, 0, p.Pending())
	assert.Len(t, p.Jobs(), 4)
}

func TestPipelineCancel(t *testing.T) {
	rec := &recorder{}
	started := make(chan struct{})
	r := RendererFunc(func(ctx context.Context, job *Job, progress func(float64)) (Output, error) {
		rec.add(job.Input)
		if job.Input == "slow" {
			close(started)
			<-ctx.Done()
			return Output{}, ctx.Err()
		}
		return Output{Path: job.Output, Size: 1}, nil
	})
	p, err := NewPipeline(r)
	require.NoError(t, err)
	defer p.Close()

	slow, _ := p.Submit("slow", "slow.pdf", DefaultSettings())
	queued, _ := p.Submit("queued", "queued.pdf", DefaultSettings())
	after, _ := p.Submit("after", "after.pdf", DefaultSettings())

	<-started
	require.NoError(t, p.Cancel(queued.ID))
	require.NoError(t, p.Cancel(slow.ID))
	wait(t, slow, queued, after)

	assert.Equal(t, StatusCancelled, slow.Status())
	assert.Equal(t, StatusCancelled, queued.Status())
	assert.Equal(t, StatusCompleted, after.Status(), "the queue continues after a cancellation")
	assert.Equal(t, []string{"slow", "after"}, rec.order, "a cancelled pending job never starts")

	assert.Error(t, p.Cancel(after.ID), "finished jobs cannot be cancelled")
	assert.ErrorIs(t, p.Cancel("missing"), ErrJobNotFound)
}

func TestPipelineTimeout(t *testing.T) {
	r := RendererFunc(func(ctx context.Context, job *Job, progress func(float64)) (Output, error) {
		<-ctx.Done()
		return Output{}, ctx.Err()
	})
	p, err := NewPipeline(r)
	require.NoError(t, err)
	defer p.Close()

	s := DefaultSettings()
	s.Timeout = 20 * time.Millisecond
	j, err := p.Submit("in", "out", s)
	require.NoError(t, err)
	wait(t, j)
	assert.Equal(t, StatusError, j.Status())
	assert.ErrorIs(t, j.Err(), context.DeadlineExceeded)
}

func TestPipelineClose(t *testing.T) {
	p, err := NewPipeline(RendererFunc(func(ctx context.Context, job *Job, progress func(float64)) (Output, error) {
		<-ctx.Done()
		return Output{}, ctx.Err()
	}))
	require.NoError(t, err)

	a, _ := p.Submit("a", "a.pdf", DefaultSettings())
	b, _ := p.Submit("b", "b.pdf", DefaultSettings())
	p.Close()

	assert.Equal(t, StatusCancelled, a.Status())
	assert.Equal(t, StatusCancelled, b.Status())
	_, err = p.Submit("c", "c.pdf", DefaultSettings())
	assert.ErrorIs(t, err, ErrClosed)
}

func writeSVG(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "encarte.svg")
	require.NoError(t, os.WriteFile(path, []byte(template.Fixture(3)), 0644))
	return path
}

func TestPrintRenderer(t *testing.T) {
	dir := t.TempDir()
	in := writeSVG(t, dir)
	out := filepath.Join(dir, "out", "encarte.pdf")
	tools := fakeTools(samplePDF(t))

	rec := &recorder{}
	p, err := NewPipeline(NewPrintRenderer(tools), WithEventHandler(rec.event))
	require.NoError(t, err)
	defer p.Close()

	j, err := p.Submit(in, out, DefaultSettings())
	require.NoError(t, err)
	require.NoError(t, j.Wait(context.Background()))

	calls := tools.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "inkscape", calls[0].Cmd)
	assert.Equal(t, "gs", calls[1].Cmd)
	assert.Contains(t, calls[1].Args, "-sOutputFile="+out+".part")

	st, err := os.Stat(out)
	require.NoError(t, err)
	assert.Greater(t, st.Size(), int64(0))
	_, err = os.Stat(out + ".part")
	assert.True(t, os.IsNotExist(err))

	var progress []float64
	for _, e := range rec.events {
		if e.Job.Status == StatusRendering {
			progress = append(progress, e.Job.Progress)
		}
	}
	assert.True(t, reached(progress, 0.2), "%v", progress)
	assert.True(t, reached(progress, 0.6), "%v", progress)

	t.Run("pdf input runs ghostscript alone", func(t *testing.T) {
		pdfIn := filepath.Join(dir, "in.pdf")
		require.NoError(t, os.WriteFile(pdfIn, samplePDF(t), 0644))
		tools := fakeTools(samplePDF(t))
		p, err := NewPipeline(NewPrintRenderer(tools))
		require.NoError(t, err)
		defer p.Close()

		j, err := p.Submit(pdfIn, filepath.Join(dir, "out", "again.pdf"), DefaultSettings())
		require.NoError(t, err)
		require.NoError(t, j.Wait(context.Background()))
		calls := tools.Calls()
		require.Len(t, calls, 1)
		assert.Equal(t, "gs", calls[0].Cmd)
	})
}

func reached(values []float64, want float64) bool {
	for _, v := range values {
		if math.Abs(v-want) < 1e-9 {
			return true
		}
	}
	return false
}

func TestPrintRendererFallsBack(t *testing.T) {
	dir := t.TempDir()
	in := writeSVG(t, dir)
	out := filepath.Join(dir, "encarte.pdf")
	tools := fakeTools(samplePDF(t), "inkscape")

	p, err := NewPipeline(NewPrintRenderer(tools))
	require.NoError(t, err)
	defer p.Close()

	j, _ := p.Submit(in, out, DefaultSettings())
	require.NoError(t, j.Wait(context.Background()))

	var cmds []string
	for _, c := range tools.Calls() {
		cmds = append(cmds, c.Cmd)
	}
	assert.Equal(t, []string{"inkscape", "rsvg-convert", "gs"}, cmds)
}

func TestPrintRendererFailures(t *testing.T) {
	dir := t.TempDir()
	in := writeSVG(t, dir)
	pdf := samplePDF(t)

	cases := []struct {
		name  string
		tools *exec.DryRun
		err   string
	}{
		{"no ghostscript", func() *exec.DryRun {
			d := fakeTools(pdf)
			d.Missing = Binaries
			return d
		}(), "ghostscript"},
		{"ghostscript exits non-zero", fakeTools(pdf, "gs"), "ghostscript failed"},
		{"empty output", fakeTools(nil), "empty"},
		{"not a pdf", fakeTools([]byte("%PDF-garbage")), "not a valid PDF"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			p, err := NewPipeline(NewPrintRenderer(c.tools))
			require.NoError(t, err)
			defer p.Close()

			j, _ := p.Submit(in, filepath.Join(t.TempDir(), "out.pdf"), DefaultSettings())
			err = j.Wait(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), c.err)
			assert.Equal(t, StatusError, j.Status())

			var re *RenderError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, j.ID, re.Job)
			if c.name == "empty output" {
				assert.ErrorIs(t, err, ErrNoOutput)
			}
		})
	}
}

func TestPreview(t *testing.T) {
	dir := t.TempDir()
	in := writeSVG(t, dir)
	out := filepath.Join(dir, "preview.png")

	require.NoError(t, Preview(context.Background(), in, out, 30))
	o, err := Verify(out, FormatPNG)
	require.NoError(t, err)
	assert.Greater(t, o.Size, int64(0))

	f, err := os.ReadFile(in)
	require.NoError(t, err)
	b, err := PreviewBytes(context.Background(), f, 30)
	require.NoError(t, err)
	assert.NotEmpty(t, b)
}

func TestPool(t *testing.T) {
	var mu sync.Mutex
	running, peak := 0, 0
	r := RendererFunc(func(ctx context.Context, job *Job, progress func(float64)) (Output, error) {
		mu.Lock()
		running++
		peak = max(peak, running)
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		running--
		mu.Unlock()
		return Output{Path: job.Output, Size: 1}, nil
	})
	pool, err := NewPool(2, r)
	require.NoError(t, err)
	defer pool.Close()

	var jobs []*Job
	for i := 0; i < 6; i++ {
		j, err := pool.Submit("in", "out", DefaultSettings())
		require.NoError(t, err)
		jobs = append(jobs, j)
	}
	wait(t, jobs...)
	assert.LessOrEqual(t, peak, 2)
	assert.Len(t, pool.Jobs(), 6)
	_, ok := pool.Job(jobs[0].ID)
	assert.True(t, ok)
}

func TestPoolEventsDoNotOverlap(t *testing.T) {
	var inFlight, peak atomic.Int32
	var count atomic.Int32
	handler := func(e Event) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		count.Add(1)
		time.Sleep(time.Millisecond)
		inFlight.Add(-1)
	}
	r := RendererFunc(func(ctx context.Context, job *Job, progress func(float64)) (Output, error) {
		for _, f := range []float64{0.25, 0.5, 0.75} {
			progress(f)
		}
		return Output{Path: job.Output, Size: 1}, nil
	})
	pool, err := NewPool(3, r, WithEventHandler(handler))
	require.NoError(t, err)
	defer pool.Close()

	var mu sync.Mutex
	var jobs []*Job
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := 0; k < 3; k++ {
				j, err := pool.Submit("in", "out", DefaultSettings())
				if assert.NoError(t, err) {
					mu.Lock()
					jobs = append(jobs, j)
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()
	wait(t, jobs...)

	assert.Equal(t, int32(1), peak.Load(), "event handler calls overlapped")
	assert.GreaterOrEqual(t, count.Load(), int32(len(jobs)*3))
}
