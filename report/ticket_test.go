package report

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flanksource/tabloide/bleed"
	"github.com/flanksource/tabloide/dpi"
	"github.com/flanksource/tabloide/preflight"
	"github.com/flanksource/tabloide/render"
	"github.com/flanksource/tabloide/trace"
)

func sampleTicket() Ticket {
	dims := bleed.CalculateDimensions(210, 297, bleed.DefaultConfig())
	low := dpi.New(dpi.ModeWarn).Check(400, 300, 60, 40)
	return Ticket{
		Title:    "Encarte semanal",
		Template: "encarte.svg",
		Output:   "out/encarte.pdf",
		Trace: trace.Info{
			ProjectID: "semana-42",
			Version:   3,
			CreatedAt: time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC),
			Operator:  "grafica",
			MachineID: "ab12cd34",
		},
		Settings:   render.DefaultSettings(),
		Dimensions: &dims,
		Slots: []Slot{
			{Index: 1, Product: "Arroz 5kg", Price: 24.9, Image: "img/arroz.png"},
			{Index: 2, Product: "Feijão 1kg", Price: 7.49, Image: "img/feijao.png", DPI: &low},
			{Index: 3},
		},
		Issues: []preflight.Issue{
			{Severity: preflight.SeverityWarning, Category: preflight.CategoryDPI, Slot: 2, Message: low.Message},
			{Severity: preflight.SeverityInfo, Category: preflight.CategorySlot, Slot: 3, Message: "no product, placeholder content stays"},
		},
	}
}

func TestTicketPDF(t *testing.T) {
	ticket := sampleTicket()
	b, err := ticket.PDF()
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(b, []byte("%PDF-")))

	path := filepath.Join(t.TempDir(), "tickets", "ticket.pdf")
	require.NoError(t, ticket.Save(path))

	out, err := render.Verify(path, render.FormatPDF)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Pages)

	code, err := trace.ExtractFromPDF(path)
	require.NoError(t, err)
	assert.Equal(t, ticket.Trace.Code(), code)
}

func TestTicketMinimal(t *testing.T) {
	ticket := Ticket{
		Trace:    trace.NewInfo("avulso", 1, ""),
		Settings: render.Settings{Format: render.FormatPNG, DPI: 150, ColorModel: render.ColorRGB},
	}
	b, err := ticket.PDF()
	require.NoError(t, err)
	assert.NotEmpty(t, b)
}

func TestOr(t *testing.T) {
	assert.Equal(t, "-", or("", "-"))
	assert.Equal(t, "x", or("x", "-"))
}
