package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/flanksource/commons/logger"
	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/code"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"

	"github.com/flanksource/tabloide/bleed"
	"github.com/flanksource/tabloide/dpi"
	"github.com/flanksource/tabloide/inject"
	"github.com/flanksource/tabloide/preflight"
	"github.com/flanksource/tabloide/render"
	"github.com/flanksource/tabloide/trace"
)

var log = logger.GetLogger("report")

var (
	red    = &props.Color{Red: 200, Green: 30, Blue: 30}
	orange = &props.Color{Red: 220, Green: 120, Blue: 0}
	gray   = &props.Color{Red: 110, Green: 110, Blue: 110}
	shade  = &props.Color{Red: 240, Green: 240, Blue: 240}
)

// Slot is one line of the slot table.
type Slot struct {
	Index   int
	Product string
	Price   float64
	Image   string
	DPI     *dpi.Result
}

// Ticket is the job ticket that travels with a print order: what was
// produced, from which template, with which settings and what preflight
// found.
type Ticket struct {
	Title       string
	Template    string
	Output      string
	Trace       trace.Info
	Settings    render.Settings
	Dimensions  *bleed.Dimensions
	Slots       []Slot
	Issues      []preflight.Issue
	GeneratedAt time.Time
}

// PDF renders the ticket on A4.
func (t Ticket) PDF() ([]byte, error) {
	if t.GeneratedAt.IsZero() {
		t.GeneratedAt = time.Now()
	}
	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(12).
		WithRightMargin(12).
		WithTopMargin(12).
		WithBottomMargin(12).
		Build()
	m := maroto.New(cfg)

	if err := m.RegisterHeader(t.header()...); err != nil {
		return nil, fmt.Errorf("failed to register ticket header: %w", err)
	}
	m.AddRows(t.summary()...)
	m.AddRows(t.settings()...)
	m.AddRows(t.slots()...)
	m.AddRows(t.issues()...)

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("failed to generate job ticket: %w", err)
	}
	return doc.GetBytes(), nil
}

// Save writes the ticket PDF to path.
func (t Ticket) Save(path string) error {
	b, err := t.PDF()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0644); err != nil {
		return err
	}
	log.Infof("job ticket written to %s", path)
	return nil
}

func (t Ticket) header() []core.Row {
	title := t.Title
	if title == "" {
		title = "Job ticket"
	}
	return []core.Row{
		row.New(14).Add(
			text.NewCol(8, title, props.Text{Size: 16, Style: fontstyle.Bold}),
			text.NewCol(4, t.Trace.Label(), props.Text{Size: 12, Style: fontstyle.Bold, Align: align.Right, Top: 2}),
		),
		separator(),
	}
}

func (t Ticket) summary() []core.Row {
	rows := []core.Row{
		row.New(28).Add(
			col.New(9).Add(
				text.New("Project: "+t.Trace.ProjectID, props.Text{Top: 2, Size: 10}),
				text.New(fmt.Sprintf("Version: %d", t.Trace.Version), props.Text{Top: 8, Size: 10}),
				text.New("Created: "+t.Trace.CreatedAt.UTC().Format(time.RFC3339), props.Text{Top: 14, Size: 10}),
				text.New(fmt.Sprintf("Operator: %s  Machine: %s", or(t.Trace.Operator, "-"), or(t.Trace.MachineID, "-")),
					props.Text{Top: 20, Size: 10}),
			),
			code.NewQrCol(3, t.Trace.QRPayload(), props.Rect{Center: true, Percent: 90}),
		),
	}
	if t.Template != "" {
		rows = append(rows, keyValue("Template", t.Template))
	}
	if t.Output != "" {
		rows = append(rows, keyValue("Output", t.Output))
	}
	return rows
}

func (t Ticket) settings() []core.Row {
	s := t.Settings
	rows := []core.Row{
		section("Output settings"),
		keyValue("Format", fmt.Sprintf("%s, %d DPI, %s", s.Format, s.DPI, s.ColorModel)),
	}
	if s.Format == render.FormatPDF {
		rows = append(rows,
			keyValue("PDF", fmt.Sprintf("version %s, fonts embedded: %t, subset: %t, overprint: %t", s.PDFVersion, s.EmbedFonts, s.SubsetFonts, s.Overprint)),
			keyValue("Images", fmt.Sprintf("compressed: %t, JPEG quality %d", s.CompressImages, s.JPEGQuality)),
		)
	}
	if s.ICCProfile != "" {
		rows = append(rows, keyValue("ICC profile", s.ICCProfile))
	}
	if d := t.Dimensions; d != nil {
		rows = append(rows,
			keyValue("Trim", fmt.Sprintf("%.1f x %.1f mm", d.TrimMM.Width, d.TrimMM.Height)),
			keyValue("With bleed", fmt.Sprintf("%.1f x %.1f mm", d.BleedMM.Width, d.BleedMM.Height)),
			keyValue("Safe area", fmt.Sprintf("%.1f x %.1f mm", d.SafeMM.Width, d.SafeMM.Height)),
		)
	}
	return rows
}

func (t Ticket) slots() []core.Row {
	if len(t.Slots) == 0 {
		return nil
	}
	bold := props.Text{Size: 9, Style: fontstyle.Bold, Top: 1}
	rows := []core.Row{
		section(fmt.Sprintf("Slots (%d)", len(t.Slots))),
		row.New(6).Add(
			text.NewCol(1, "#", bold),
			text.NewCol(5, "Product", bold),
			text.NewCol(2, "Price", props.Text{Size: 9, Style: fontstyle.Bold, Top: 1, Align: align.Right}),
			text.NewCol(4, "Image", bold),
		).WithStyle(&props.Cell{BackgroundColor: shade}),
	}
	cell := props.Text{Size: 9, Top: 1}
	for _, s := range t.Slots {
		price, err := inject.FormatCurrency(s.Price)
		if err != nil {
			price = "-"
		}
		image := "-"
		if s.Image != "" {
			image = filepath.Base(s.Image)
			if s.DPI != nil {
				image = fmt.Sprintf("%s (%.0f DPI)", image, s.DPI.EffectiveDPI)
			}
		}
		imageProps := cell
		if s.DPI != nil {
			imageProps.Color = statusColor(s.DPI.Status)
		}
		rows = append(rows, row.New(6).Add(
			text.NewCol(1, fmt.Sprintf("%02d", s.Index), cell),
			text.NewCol(5, or(s.Product, "-"), cell),
			text.NewCol(2, price, props.Text{Size: 9, Top: 1, Align: align.Right}),
			text.NewCol(4, image, imageProps),
		))
	}
	return rows
}

func (t Ticket) issues() []core.Row {
	rows := []core.Row{section("Preflight")}
	if len(t.Issues) == 0 {
		return append(rows, row.New(6).Add(text.NewCol(12, "No issues found.", props.Text{Size: 9, Top: 1})))
	}
	for _, i := range t.Issues {
		p := props.Text{Size: 9, Top: 1}
		switch i.Severity {
		case preflight.SeverityError:
			p.Color = red
		case preflight.SeverityWarning:
			p.Color = orange
		default:
			p.Color = gray
		}
		rows = append(rows, row.New(6).Add(text.NewCol(12, i.String(), p)))
	}
	return rows
}

func statusColor(s dpi.Status) *props.Color {
	switch s {
	case dpi.StatusError:
		return red
	case dpi.StatusWarning:
		return orange
	}
	return nil
}

func section(title string) core.Row {
	return row.New(10).Add(text.NewCol(12, title, props.Text{Size: 12, Style: fontstyle.Bold, Top: 4}))
}

func keyValue(key, value string) core.Row {
	return row.New(6).Add(
		text.NewCol(3, key, props.Text{Size: 9, Color: gray, Top: 1}),
		text.NewCol(9, value, props.Text{Size: 9, Top: 1}),
	)
}

func separator() core.Row {
	return row.New(2).Add(col.New(12).Add(line.New(props.Line{
		Color:     gray,
		Thickness: 0.3,
	})))
}

func or(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
