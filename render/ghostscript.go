package render

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/flanksource/tabloide/exec"
)

// Binaries are the Ghostscript executable names tried in order.
var Binaries = []string{"gs", "gswin64c", "gswin32c"}

var (
	pagesLine = regexp.MustCompile(`Processing pages (\d+) through (\d+)\.`)
	pageLine  = regexp.MustCompile(`^Page (\d+)`)
)

// BuildArgs derives the Ghostscript arguments for a pdfwrite job. The same
// settings always yield the same arguments in the same order.
func BuildArgs(input, output string, s Settings) []string {
	args := []string{
		"-dSAFER",
		"-dNOPAUSE",
		"-dBATCH",
		"-r" + strconv.Itoa(s.DPI),
		"-sDEVICE=pdfwrite",
	}
	if s.ColorModel == ColorCMYK {
		args = append(args,
			"-dProcessColorModel=/DeviceCMYK",
			"-dColorConversionStrategy=/CMYK",
		)
	}
	args = append(args, "-dCompatibilityLevel="+s.PDFVersion)
	if s.EmbedFonts {
		args = append(args, "-dEmbedAllFonts=true", "-dSubsetFonts="+strconv.FormatBool(s.SubsetFonts))
	}
	if s.CompressImages {
		args = append(args,
			"-dAutoFilterColorImages=true",
			"-dColorImageQuality="+strconv.Itoa(s.JPEGQuality),
		)
	}
	if s.Overprint {
		args = append(args, "-dOverprint=/enable")
	}
	if s.ICCProfile != "" {
		args = append(args, "-sOutputICCProfile="+s.ICCProfile)
	}
	return append(args, "-sOutputFile="+output, input)
}

// Progress is reported while Ghostscript works through the pages.
type Progress struct {
	Page  int
	First int
	Last  int
}

// Fraction of pages done. Zero when the page range is unknown.
func (p Progress) Fraction() float64 {
	total := p.Last - p.First + 1
	if p.Last == 0 || total <= 0 {
		return 0
	}
	done := p.Page - p.First + 1
	return min(float64(done)/float64(total), 1)
}

// progressParser tracks Ghostscript's page markers. Output without markers
// is fine; progress simply stays at zero.
type progressParser struct {
	state Progress
	fn    func(Progress)
}

func (p *progressParser) line(line string) {
	line = strings.TrimSpace(line)
	if m := pagesLine.FindStringSubmatch(line); m != nil {
		p.state.First, _ = strconv.Atoi(m[1])
		p.state.Last, _ = strconv.Atoi(m[2])
		return
	}
	if m := pageLine.FindStringSubmatch(line); m != nil {
		p.state.Page, _ = strconv.Atoi(m[1])
		if p.fn != nil {
			p.fn(p.state)
		}
	}
}

// Ghostscript runs the pdfwrite device.
type Ghostscript struct {
	Runner exec.Runner

	once   sync.Once
	binary string
	err    error
}

func NewGhostscript(runner exec.Runner) *Ghostscript {
	return &Ghostscript{Runner: runner}
}

// Binary finds the first installed Ghostscript executable.
func (g *Ghostscript) Binary() (string, error) {
	g.once.Do(func() {
		for _, name := range Binaries {
			if _, err := g.Runner.LookPath(name); err == nil {
				g.binary = name
				return
			}
		}
		g.err = fmt.Errorf("%w: ghostscript (tried %s)", exec.ErrNotFound, strings.Join(Binaries, ", "))
	})
	return g.binary, g.err
}

// Rasterize runs Ghostscript once, streaming page progress to fn.
func (g *Ghostscript) Rasterize(ctx context.Context, input, output string, s Settings, fn func(Progress)) error {
	bin, err := g.Binary()
	if err != nil {
		return err
	}
	parser := &progressParser{fn: fn}
	p := exec.Command(bin, BuildArgs(input, output, s)...).
		WithTimeout(s.timeout()).
		WithLogger(log).
		WithLineHandler(parser.line)

	if err := g.Runner.Run(ctx, p); err != nil {
		if errors.Is(err, exec.ErrTimeout) || ctx.Err() != nil {
			return err
		}
		msg := strings.TrimSpace(p.Stderr.String())
		if msg == "" {
			msg = lastLines(p.Stdout.String(), 5)
		}
		return fmt.Errorf("ghostscript failed: %w: %s", err, msg)
	}
	return nil
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
