package tabloide

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/flanksource/commons/logger"
	"github.com/flanksource/commons/text"

	"github.com/flanksource/tabloide/bleed"
	"github.com/flanksource/tabloide/clippath"
	"github.com/flanksource/tabloide/color"
	"github.com/flanksource/tabloide/dpi"
	"github.com/flanksource/tabloide/exec"
	"github.com/flanksource/tabloide/inject"
	"github.com/flanksource/tabloide/preflight"
	"github.com/flanksource/tabloide/render"
	"github.com/flanksource/tabloide/report"
	"github.com/flanksource/tabloide/svg"
	"github.com/flanksource/tabloide/template"
	"github.com/flanksource/tabloide/trace"
)

var log = logger.GetLogger("tabloide")

// Composer runs a template and a product list through injection, clip-path
// repair, bleed and traceability, always in that order, and hands the
// result to a render pool.
type Composer struct {
	cfg      Config
	color    *color.Manager
	dpi      *dpi.Validator
	registry *trace.Registry
	renderer render.Renderer
	onEvent  func(render.Event)
	pool     *render.Pool
}

type ComposerOption func(*Composer)

// WithRegistry records every completed render in r.
func WithRegistry(r *trace.Registry) ComposerOption {
	return func(c *Composer) { c.registry = r }
}

// WithRenderer replaces the Ghostscript based renderer.
func WithRenderer(r render.Renderer) ComposerOption {
	return func(c *Composer) { c.renderer = r }
}

// WithRenderEvents receives job status and progress changes.
func WithRenderEvents(fn func(render.Event)) ComposerOption {
	return func(c *Composer) { c.onEvent = fn }
}

func NewComposer(cfg Config, runner exec.Runner, opts ...ComposerOption) (*Composer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Composer{cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}
	if cfg.Color.Enabled {
		c.color = color.NewManager(runner, cfg.Color.Options)
		if !c.color.Available() {
			log.Warnf("%s not found, images are placed with their original colors", cfg.Color.Tool)
		}
	}
	if cfg.DPI.Enabled {
		v := dpi.New(cfg.DPI.Mode)
		c.dpi = &v
	}
	if c.renderer == nil {
		c.renderer = render.NewPrintRenderer(runner)
	}
	var popts []render.Option
	if c.onEvent != nil {
		popts = append(popts, render.WithEventHandler(c.onEvent))
	}
	pool, err := render.NewPool(cfg.Workers, c.renderer, popts...)
	if err != nil {
		return nil, err
	}
	c.pool = pool
	return c, nil
}

// Pool exposes the render queues, e.g. to cancel jobs.
func (c *Composer) Pool() *render.Pool { return c.pool }

func (c *Composer) Config() Config { return c.cfg }

// Close cancels outstanding renders.
func (c *Composer) Close() {
	c.pool.Close()
}

type ComposeOptions struct {
	Project  string
	Version  int
	Operator string
	// BaseDir resolves relative image paths, usually the catalog directory.
	BaseDir string
	// CreatedAt defaults to now.
	CreatedAt time.Time
}

// Composition is a finished document plus everything learned while
// producing it.
type Composition struct {
	Template   template.Info
	Document   *svg.Document
	Products   map[int]inject.Product
	Preflight  preflight.Result
	Injection  *inject.Report
	Repairs    clippath.Report
	Dimensions *bleed.Dimensions
	Trace      *trace.Info
	Elapsed    time.Duration
}

// Err joins the slot failures. They do not stop composition; the affected
// slots keep their placeholder content.
func (c *Composition) Err() error {
	if c.Injection == nil {
		return nil
	}
	return c.Injection.Err()
}

// Compose builds the print document. Slot problems are collected in the
// composition; only bleed and stamp failures are returned as errors.
func (c *Composer) Compose(ctx context.Context, tpl *template.Template, products map[int]inject.Product, opts ComposeOptions) (*Composition, error) {
	start := time.Now()
	baseDir := opts.BaseDir
	if baseDir != "" {
		if abs, err := filepath.Abs(baseDir); err == nil {
			baseDir = abs
		}
	}

	comp := &Composition{Template: tpl.Info, Products: products}

	pre := preflight.Options{DPI: c.dpi, BaseDir: baseDir}
	bcfg, withBleed, err := c.cfg.EffectiveBleed()
	if err != nil {
		return comp, err
	}
	if withBleed {
		pre.SafeZoneMM = bcfg.SafeZoneMM
	}
	comp.Preflight = preflight.Check(ctx, tpl, products, pre)

	doc := tpl.Instantiate()
	iopts := inject.Options{DPI: c.dpi, BaseDir: baseDir, StagingDir: c.cfg.Color.StagingDir}
	if c.color != nil {
		iopts.Color = c.color
	}
	comp.Injection = inject.New(iopts).InjectMany(ctx, doc, tpl.Info, products)
	if err := ctx.Err(); err != nil {
		return comp, err
	}

	comp.Repairs = clippath.Repair(doc, c.cfg.ClipPath)
	if comp.Repairs.Total() > 0 {
		log.Infof("repaired %d clip paths", comp.Repairs.Total())
	}

	var inset float64
	if withBleed {
		dims, err := bleed.Apply(doc, tpl.Info.WidthMM, tpl.Info.HeightMM, bcfg)
		if err != nil {
			return comp, fmt.Errorf("bleed: %w", err)
		}
		comp.Dimensions = &dims
		inset = dims.OffsetPt
	}

	if c.cfg.Trace.Enabled {
		info := trace.NewInfo(opts.Project, max(opts.Version, 1), opts.Operator)
		if info.Operator == "" {
			info.Operator = c.cfg.Trace.Operator
		}
		if !opts.CreatedAt.IsZero() {
			info.CreatedAt = opts.CreatedAt.UTC()
		}
		topts := c.cfg.Trace.Options
		topts.Inset = inset
		if err := trace.Stamp(doc, info, topts); err != nil {
			return comp, fmt.Errorf("trace: %w", err)
		}
		comp.Trace = &info
	}

	comp.Document = doc
	comp.Elapsed = time.Since(start)
	log.Infof("composed %d/%d slots in %s", len(comp.Injection.Filled), len(products), text.HumanizeDuration(comp.Elapsed))
	return comp, nil
}

// Render writes the composition next to output and renders it with the
// configured settings. Cancelling ctx cancels the job.
func (c *Composer) Render(ctx context.Context, comp *Composition, output string) (render.Output, error) {
	return c.RenderWith(ctx, comp, output, c.cfg.Render)
}

func (c *Composer) RenderWith(ctx context.Context, comp *Composition, output string, s render.Settings) (render.Output, error) {
	if comp.Document == nil {
		return render.Output{}, errors.New("composition has no document")
	}
	if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
		return render.Output{}, err
	}
	src, err := os.CreateTemp(filepath.Dir(output), "."+filepath.Base(output)+".*.svg")
	if err != nil {
		return render.Output{}, err
	}
	defer os.Remove(src.Name())
	if _, err := comp.Document.WriteTo(src); err != nil {
		src.Close()
		return render.Output{}, err
	}
	if err := src.Close(); err != nil {
		return render.Output{}, err
	}

	job, err := c.pool.Submit(src.Name(), output, s)
	if err != nil {
		return render.Output{}, err
	}
	if err := job.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			_ = c.pool.Cancel(job.ID)
			<-job.Done()
		}
		return render.Output{}, err
	}
	if job.Status() == render.StatusCancelled {
		return render.Output{}, render.ErrCancelled
	}

	out, err := render.Verify(output, s.Format)
	if err != nil {
		return out, err
	}
	if c.registry != nil && comp.Trace != nil {
		if err := c.registry.Record(ctx, *comp.Trace, output); err != nil {
			log.Warnf("failed to record %s: %v", comp.Trace.Label(), err)
		}
	}
	return out, nil
}

// Ticket summarizes the composition for the print shop.
func (c *Composition) Ticket(title, templatePath, output string, s render.Settings) report.Ticket {
	t := report.Ticket{
		Title:      title,
		Template:   templatePath,
		Output:     output,
		Settings:   s,
		Dimensions: c.Dimensions,
		Issues:     c.Preflight.Issues,
	}
	if c.Trace != nil {
		t.Trace = *c.Trace
	}
	indexes := make([]int, 0, len(c.Template.Slots))
	for _, sd := range c.Template.Slots {
		indexes = append(indexes, sd.Index)
	}
	sort.Ints(indexes)
	for _, i := range indexes {
		slot := report.Slot{Index: i}
		if p, ok := c.Products[i]; ok {
			slot.Product, slot.Price, slot.Image = p.Name, p.Price, p.Image
		}
		if c.Injection != nil {
			if r, ok := c.Injection.DPI[i]; ok {
				slot.DPI = &r
			}
		}
		t.Slots = append(t.Slots, slot)
	}
	if c.Injection != nil {
		for _, err := range c.Injection.Errors {
			issue := preflight.Issue{Severity: preflight.SeverityError, Category: preflight.CategorySlot, Message: err.Error()}
			var ie *inject.InjectError
			if errors.As(err, &ie) {
				issue.Slot = ie.Slot
			}
			t.Issues = append(t.Issues, issue)
		}
		for _, w := range c.Injection.Warnings {
			t.Issues = append(t.Issues, preflight.Issue{
				Severity: preflight.SeverityWarning, Category: preflight.CategorySlot, Slot: w.Slot, Message: w.Message,
			})
		}
	}
	if n := c.Repairs.Total(); n > 0 {
		t.Issues = append(t.Issues, preflight.Issue{
			Severity: preflight.SeverityInfo, Category: preflight.CategoryTemplate,
			Message: fmt.Sprintf("%d clip paths repaired", n),
		})
	}
	return t
}
