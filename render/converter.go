package render

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/flanksource/tabloide/exec"
)

const convertTimeout = 60 * time.Second

// Converter turns an SVG file into another vector or raster format.
type Converter interface {
	Name() string
	IsAvailable() bool
	SupportedFormats() []string
	Convert(ctx context.Context, svgPath, outputPath string, opts *ConvertOptions) error
}

// ConvertOptions for a single conversion.
type ConvertOptions struct {
	Format          string
	Width           int
	Height          int
	DPI             int
	BackgroundColor string
}

func DefaultConvertOptions() *ConvertOptions {
	return &ConvertOptions{Format: "pdf", DPI: 300}
}

// ConverterError is returned by every converter.
type ConverterError struct {
	Converter string
	Operation string
	Err       error
}

func (e *ConverterError) Error() string {
	return fmt.Sprintf("%s converter %s failed: %v", e.Converter, e.Operation, e.Err)
}

func (e *ConverterError) Unwrap() error {
	return e.Err
}

func converterError(converter, operation string, err error) error {
	return &ConverterError{Converter: converter, Operation: operation, Err: err}
}

func runConverter(ctx context.Context, runner exec.Runner, name, bin string, args []string) error {
	p := exec.Command(bin, args...).WithTimeout(convertTimeout).WithLogger(log)
	if err := runner.Run(ctx, p); err != nil {
		out := strings.TrimSpace(p.Stderr.String())
		if out != "" {
			err = fmt.Errorf("%w: %s", err, out)
		}
		return converterError(name, "convert", err)
	}
	return nil
}

// Inkscape converts with the inkscape command line.
type Inkscape struct {
	Runner exec.Runner
}

func (c *Inkscape) Name() string { return "inkscape" }

func (c *Inkscape) IsAvailable() bool {
	_, err := c.Runner.LookPath("inkscape")
	return err == nil
}

func (c *Inkscape) SupportedFormats() []string {
	return []string{"pdf", "png", "eps", "ps"}
}

func (c *Inkscape) Args(svgPath, outputPath string, opts *ConvertOptions) ([]string, error) {
	format := strings.ToLower(opts.Format)
	if !slices.Contains(c.SupportedFormats(), format) {
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
	args := []string{svgPath, "--export-filename=" + outputPath, "--export-type=" + format}
	if format == "png" {
		if opts.Width > 0 {
			args = append(args, "--export-width="+strconv.Itoa(opts.Width))
		}
		if opts.Height > 0 {
			args = append(args, "--export-height="+strconv.Itoa(opts.Height))
		}
		if opts.DPI > 0 {
			args = append(args, "--export-dpi="+strconv.Itoa(opts.DPI))
		}
		if opts.BackgroundColor != "" {
			args = append(args, "--export-background="+opts.BackgroundColor)
		}
	}
	// PDF text stays text: the traceability label is read back from it.
	return args, nil
}

func (c *Inkscape) Convert(ctx context.Context, svgPath, outputPath string, opts *ConvertOptions) error {
	if opts == nil {
		opts = DefaultConvertOptions()
	}
	args, err := c.Args(svgPath, outputPath, opts)
	if err != nil {
		return converterError(c.Name(), "convert", err)
	}
	return runConverter(ctx, c.Runner, c.Name(), "inkscape", args)
}

// RSVG converts with rsvg-convert from librsvg.
type RSVG struct {
	Runner exec.Runner
}

func (c *RSVG) Name() string { return "rsvg" }

func (c *RSVG) IsAvailable() bool {
	_, err := c.Runner.LookPath("rsvg-convert")
	return err == nil
}

func (c *RSVG) SupportedFormats() []string {
	return []string{"pdf", "png", "eps", "ps"}
}

func (c *RSVG) Args(svgPath, outputPath string, opts *ConvertOptions) ([]string, error) {
	format := strings.ToLower(opts.Format)
	if !slices.Contains(c.SupportedFormats(), format) {
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
	args := []string{"--format=" + format}
	if opts.Width > 0 {
		args = append(args, "--width="+strconv.Itoa(opts.Width))
	}
	if opts.Height > 0 {
		args = append(args, "--height="+strconv.Itoa(opts.Height))
	}
	if opts.DPI > 0 {
		args = append(args, "--dpi-x="+strconv.Itoa(opts.DPI), "--dpi-y="+strconv.Itoa(opts.DPI))
	}
	if opts.BackgroundColor != "" {
		args = append(args, "--background-color="+opts.BackgroundColor)
	}
	return append(args, "--output="+outputPath, svgPath), nil
}

func (c *RSVG) Convert(ctx context.Context, svgPath, outputPath string, opts *ConvertOptions) error {
	if opts == nil {
		opts = DefaultConvertOptions()
	}
	args, err := c.Args(svgPath, outputPath, opts)
	if err != nil {
		return converterError(c.Name(), "convert", err)
	}
	return runConverter(ctx, c.Runner, c.Name(), "rsvg-convert", args)
}

// ConverterManager tries converters in order until one succeeds.
type ConverterManager struct {
	mu         sync.RWMutex
	converters []Converter
	preferred  string
}

// NewConverterManager registers the available converters in priority
// order: inkscape, rsvg-convert, then any extra converters supplied.
func NewConverterManager(runner exec.Runner, extra ...Converter) *ConverterManager {
	m := &ConverterManager{}
	candidates := append([]Converter{&Inkscape{Runner: runner}, &RSVG{Runner: runner}}, extra...)
	for _, c := range candidates {
		if c.IsAvailable() {
			m.converters = append(m.converters, c)
		}
	}
	return m
}

// Available lists the registered converter names in priority order.
func (m *ConverterManager) Available() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, len(m.converters))
	for i, c := range m.converters {
		names[i] = c.Name()
	}
	return names
}

// SetPreferred moves the named converter to the front.
func (m *ConverterManager) SetPreferred(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.converters {
		if c.Name() == name {
			m.preferred = name
			return nil
		}
	}
	return fmt.Errorf("converter '%s' not available", name)
}

func (m *ConverterManager) ordered() []Converter {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Converter, 0, len(m.converters))
	for _, c := range m.converters {
		if c.Name() == m.preferred {
			out = append([]Converter{c}, out...)
		} else {
			out = append(out, c)
		}
	}
	return out
}

// Convert runs the first converter supporting the format, falling back to
// the next one on failure.
func (m *ConverterManager) Convert(ctx context.Context, svgPath, outputPath string, opts *ConvertOptions) error {
	if opts == nil {
		opts = DefaultConvertOptions()
	}
	var lastErr error
	for _, c := range m.ordered() {
		if !slices.Contains(c.SupportedFormats(), opts.Format) {
			continue
		}
		err := c.Convert(ctx, svgPath, outputPath, opts)
		if err == nil {
			log.Debugf("converted %s to %s with %s", svgPath, opts.Format, c.Name())
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		log.Warnf("%s could not convert %s: %v", c.Name(), svgPath, err)
		lastErr = err
	}
	if lastErr == nil {
		return fmt.Errorf("no converter available for format '%s'", opts.Format)
	}
	return fmt.Errorf("all converters failed, last error: %w", lastErr)
}

// Close releases converters holding resources.
func (m *ConverterManager) Close() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.converters {
		if closer, ok := c.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				return err
			}
		}
	}
	return nil
}
