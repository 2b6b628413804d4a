package trace

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/flanksource/tabloide/svg"
	"github.com/flanksource/tabloide/template"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var created = time.Date(2026, 3, 14, 9, 26, 53, 589793000, time.UTC)

func sample() Info {
	return Info{ProjectID: "encarte-semana-12", Version: 3, CreatedAt: created, Operator: "ana", MachineID: "abcd1234"}
}

func TestCode(t *testing.T) {
	info := sample()
	code := info.Code()
	assert.Regexp(t, regexp.MustCompile(`^[0-9A-F]{12}$`), code)
	assert.Equal(t, code, sample().Code(), "stable for the same fields")

	info.Operator = "someone else"
	assert.Equal(t, code, info.Code(), "operator does not take part")

	info.Version = 4
	assert.NotEqual(t, code, info.Code())

	other := sample()
	other.CreatedAt = created.Add(time.Nanosecond)
	assert.NotEqual(t, code, other.Code())

	assert.Equal(t, "TABLOIDE|"+code+"|encarte-semana-12|v3", sample().QRPayload())
	assert.Equal(t, "TB-"+code, sample().Label())
}

func TestStampAndExtract(t *testing.T) {
	doc, err := svg.ParseString(template.Fixture(3))
	require.NoError(t, err)
	info := sample()

	require.NoError(t, Stamp(doc, info, Options{}))

	g, ok := doc.ByID(GroupID)
	require.True(t, ok)
	assert.Equal(t, doc.Root, g.Parent())
	assert.Contains(t, g.Text(), info.Label())
	_, hasQR := doc.ByID(QRID)
	assert.False(t, hasQR)

	t.Run("survives serialization", func(t *testing.T) {
		reparsed, err := svg.ParseString(doc.String())
		require.NoError(t, err)
		got, ok := Extract(reparsed)
		require.True(t, ok)
		assert.Equal(t, info, got)
	})

	t.Run("restamp replaces", func(t *testing.T) {
		next := info
		next.Version = 4
		require.NoError(t, Stamp(doc, next, Options{QR: true}))
		groups := doc.Root.FindAll(func(e *svg.Element) bool { return e.ID() == GroupID })
		assert.Len(t, groups, 1)

		got, ok := Extract(doc)
		require.True(t, ok)
		assert.Equal(t, 4, got.Version)

		qr, ok := doc.ByID(QRID)
		require.True(t, ok)
		path, ok := qr.FirstChild("path")
		require.True(t, ok)
		assert.NotEmpty(t, path.AttrOr("d", ""))
		assert.Contains(t, qr.AttrOr("transform", ""), "scale(")
	})
}

func TestExtractRejectsTamperedRecord(t *testing.T) {
	doc, err := svg.ParseString(template.Fixture(1))
	require.NoError(t, err)
	require.NoError(t, Stamp(doc, sample(), Options{}))

	rec, ok := doc.Root.Find(func(e *svg.Element) bool { return e.LocalName() == "trace" })
	require.True(t, ok)
	rec.SetAttr("version", "9")

	_, ok = Extract(doc)
	assert.False(t, ok)

	_, ok = Extract(&svg.Document{Root: svg.NewElement("svg")})
	assert.False(t, ok)
}

func TestStampNeedsGeometry(t *testing.T) {
	doc, err := svg.ParseString(`<svg/>`)
	require.NoError(t, err)
	assert.Error(t, Stamp(doc, sample(), Options{}))
}

func TestFindCode(t *testing.T) {
	code, ok := FindCode("Ofertas válidas até domingo TB-0123456789AB fim")
	require.True(t, ok)
	assert.Equal(t, "0123456789AB", code)

	_, ok = FindCode("TB-short")
	assert.False(t, ok)
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()
	reg, err := OpenRegistry(filepath.Join(t.TempDir(), "trace.db"))
	require.NoError(t, err)
	defer reg.Close()

	v3 := sample()
	v4 := sample()
	v4.Version = 4
	v4.CreatedAt = created.Add(time.Hour)

	require.NoError(t, reg.Record(ctx, v3, "/out/v3.pdf"))
	require.NoError(t, reg.Record(ctx, v4, "/out/v4.pdf"))
	require.NoError(t, reg.Record(ctx, v3, "/out/v3-final.pdf"))

	rec, err := reg.Lookup(ctx, v3.Label())
	require.NoError(t, err)
	assert.Equal(t, v3.Code(), rec.Code)
	assert.Equal(t, v3, rec.Info)
	assert.Equal(t, "/out/v3-final.pdf", rec.Output)

	history, err := reg.History(ctx, "encarte-semana-12")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 4, history[0].Info.Version)

	_, err = reg.Lookup(ctx, "FFFFFFFFFFFF")
	assert.True(t, errors.Is(err, ErrUnknownCode))
}

func TestStampInset(t *testing.T) {
	doc, err := svg.ParseString(template.Fixture(1))
	require.NoError(t, err)

	require.NoError(t, Stamp(doc, sample(), Options{Margin: 4, Inset: 10}))
	g, ok := doc.ByID(GroupID)
	require.True(t, ok)
	label, ok := g.FirstChild("text")
	require.True(t, ok)
	assert.Equal(t, "196", label.AttrOr("x", ""))
	assert.Equal(t, "283", label.AttrOr("y", ""))
}
