package main

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/flanksource/tabloide/preflight"
	"github.com/flanksource/tabloide/render"
)

type styles struct {
	success lipgloss.Style
	failed  lipgloss.Style
	warning lipgloss.Style
	running lipgloss.Style
	bar     lipgloss.Style
	info    lipgloss.Style
	heading lipgloss.Style
}

func newStyles() styles {
	r := lipgloss.NewRenderer(os.Stderr)
	return styles{
		success: r.NewStyle().Foreground(lipgloss.Color("10")),
		failed:  r.NewStyle().Foreground(lipgloss.Color("9")),
		warning: r.NewStyle().Foreground(lipgloss.Color("11")),
		running: r.NewStyle().Foreground(lipgloss.Color("14")),
		bar:     r.NewStyle().Foreground(lipgloss.Color("12")),
		info:    r.NewStyle().Foreground(lipgloss.Color("8")),
		heading: r.NewStyle().Bold(true),
	}
}

var ui = newStyles()

func (s styles) severity(sev preflight.Severity) lipgloss.Style {
	switch sev {
	case preflight.SeverityError:
		return s.failed
	case preflight.SeverityWarning:
		return s.warning
	}
	return s.info
}

func printIssues(issues []preflight.Issue) {
	for _, i := range issues {
		fmt.Fprintln(os.Stderr, ui.severity(i.Severity).Render(i.String()))
	}
}

// progress prints render events: a redrawn bar on a terminal, one line per
// status change otherwise.
type progress struct {
	mu          sync.Mutex
	interactive bool
	out         *termenv.Output
	width       int
}

func newProgress(disabled bool) *progress {
	interactive := !disabled && term.IsTerminal(int(os.Stderr.Fd()))
	width, _, err := term.GetSize(int(os.Stderr.Fd()))
	if err != nil || width == 0 {
		width = 80
	}
	return &progress{interactive: interactive, out: termenv.NewOutput(os.Stderr), width: width}
}

func (p *progress) handle(e render.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	j := e.Job
	name := shortID(j.ID)

	if p.interactive && j.Status == render.StatusRendering {
		barWidth := max(10, min(40, p.width-30))
		filled := int(j.Progress * float64(barWidth))
		bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
		p.out.ClearLine()
		fmt.Fprintf(os.Stderr, "\r%s %s %3.0f%%", ui.running.Render("rendering "+name), ui.bar.Render(bar), j.Progress*100)
		return
	}
	if e.Previous == j.Status {
		return
	}
	if p.interactive {
		p.out.ClearLine()
		fmt.Fprint(os.Stderr, "\r")
	}
	switch j.Status {
	case render.StatusCompleted:
		fmt.Fprintln(os.Stderr, ui.success.Render(fmt.Sprintf("✓ %s %s", name, j.Output)))
	case render.StatusError:
		fmt.Fprintln(os.Stderr, ui.failed.Render(fmt.Sprintf("✗ %s %s", name, j.Error)))
	case render.StatusCancelled:
		fmt.Fprintln(os.Stderr, ui.warning.Render(fmt.Sprintf("⊘ %s cancelled", name)))
	default:
		fmt.Fprintln(os.Stderr, ui.info.Render(fmt.Sprintf("%s %s", name, j.Status)))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
