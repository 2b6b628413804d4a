package inject

import (
	"context"
	"errors"
	"image"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/flanksource/tabloide/dpi"
	"github.com/flanksource/tabloide/svg"
	"github.com/flanksource/tabloide/template"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, w, h int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "produto.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, w, h))))
	require.NoError(t, f.Close())
	return path
}

func load(t *testing.T, src string) (*template.Template, *svg.Document) {
	t.Helper()
	tpl, err := template.ParseBytes([]byte(src))
	require.NoError(t, err)
	return tpl, tpl.Instantiate()
}

func text(t *testing.T, doc *svg.Document, id string) string {
	t.Helper()
	el, ok := doc.ByID(id)
	require.True(t, ok, id)
	return el.Text()
}

func TestSplitPrice(t *testing.T) {
	cases := []struct {
		price      float64
		integer    string
		decimal    string
		full       string
		currencied string
	}{
		{24.9, "24", ",90", "24,90", "R$ 24,90"},
		{19.99, "19", ",99", "19,99", "R$ 19,99"},
		{0.5, "0", ",50", "0,50", "R$ 0,50"},
		{7, "7", ",00", "7,00", "R$ 7,00"},
		{19.999, "20", ",00", "20,00", "R$ 20,00"},
		{1234.5, "1.234", ",50", "1.234,50", "R$ 1.234,50"},
		{1000000, "1.000.000", ",00", "1.000.000,00", "R$ 1.000.000,00"},
	}
	for _, c := range cases {
		i, d, err := SplitPrice(c.price)
		require.NoError(t, err)
		assert.Equal(t, c.integer, i, "%v", c.price)
		assert.Equal(t, c.decimal, d, "%v", c.price)

		full, err := FormatPrice(c.price)
		require.NoError(t, err)
		assert.Equal(t, c.full, full)

		cur, err := FormatCurrency(c.price)
		require.NoError(t, err)
		assert.Equal(t, c.currencied, cur)
	}

	for _, bad := range []float64{-1, math.NaN(), math.Inf(1)} {
		_, _, err := SplitPrice(bad)
		assert.Error(t, err, "%v", bad)
	}
}

func TestInjectArroz(t *testing.T) {
	tpl, doc := load(t, template.Fixture(3))
	img := writePNG(t, 720, 480)

	inj := New(Options{})
	rep, err := inj.Inject(context.Background(), doc, tpl.Info, 1, Product{
		Name:  "Arroz Tio João 5kg",
		Price: 24.90,
		Image: img,
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, rep.Filled)

	assert.Equal(t, "Arroz Tio João 5kg", text(t, doc, "TXT_NOME_01"))
	assert.Equal(t, "24", text(t, doc, "TXT_PRECO_INTEIRO_01"))
	assert.Equal(t, ",90", text(t, doc, "TXT_PRECO_DECIMAL_01"))

	// the tspan run was written, not replaced
	name, _ := doc.ByID("TXT_NOME_01")
	_, ok := name.FirstChild("tspan")
	assert.True(t, ok)

	el, ok := doc.ByID("ALVO_IMAGEM_01")
	require.True(t, ok)
	assert.Equal(t, "image", el.Tag)
	assert.Equal(t, "0", el.AttrOr("x", ""))
	assert.Equal(t, "60", el.AttrOr("width", ""))
	assert.Equal(t, "40", el.AttrOr("height", ""))
	assert.Equal(t, "url(#clip_01)", el.AttrOr("clip-path", ""))
	assert.Equal(t, "xMidYMid slice", el.AttrOr("preserveAspectRatio", ""))
	assert.Equal(t, img, el.AttrOr("xlink:href", ""))
	assert.Equal(t, img, el.AttrOr("href", ""))

	// z-order: still the first child of the slot group
	slot, _ := doc.ByID("SLOT_01")
	assert.Equal(t, el, slot.Elements()[0])

	// other slots untouched
	assert.Equal(t, "Produto", text(t, doc, "TXT_NOME_02"))
}

func TestInjectMany(t *testing.T) {
	tpl, doc := load(t, template.Fixture(12))

	products := map[int]Product{}
	for i := 1; i <= 11; i++ {
		products[i] = Product{Name: "P", Price: float64(i) + 0.99, Unit: "un"}
	}
	products[99] = Product{Name: "ghost", Price: 1}

	rep := New(Options{}).InjectMany(context.Background(), doc, tpl.Info, products)
	assert.Len(t, rep.Filled, 11)
	require.Len(t, rep.Errors, 1)
	assert.True(t, errors.Is(rep.Errors[0], ErrSlotNotFound))
	var nf *SlotNotFoundError
	require.True(t, errors.As(rep.Errors[0], &nf))
	assert.Equal(t, 99, nf.Index)
	assert.Error(t, rep.Err())

	assert.Equal(t, "11", text(t, doc, "TXT_PRECO_INTEIRO_11"))
	assert.Equal(t, "0", text(t, doc, "TXT_PRECO_INTEIRO_12"))
}

func TestInjectImageProblems(t *testing.T) {
	ctx := context.Background()

	t.Run("missing file keeps placeholder", func(t *testing.T) {
		tpl, doc := load(t, template.Fixture(1))
		rep, err := New(Options{}).Inject(ctx, doc, tpl.Info, 1, Product{Name: "x", Price: 1, Image: "/nope/missing.png"})
		require.NoError(t, err)
		require.Len(t, rep.Warnings, 1)
		assert.Contains(t, rep.Warnings[0].Message, "missing.png")

		el, _ := doc.ByID("ALVO_IMAGEM_01")
		assert.Equal(t, "rect", el.Tag)
	})

	t.Run("low resolution blocks in block mode", func(t *testing.T) {
		tpl, doc := load(t, template.Fixture(1))
		v := dpi.New(dpi.ModeBlock)
		img := writePNG(t, 200, 100)

		rep, err := New(Options{DPI: &v}).Inject(ctx, doc, tpl.Info, 1, Product{Name: "x", Price: 1, Image: img})
		require.Error(t, err)
		var ierr *InjectError
		require.True(t, errors.As(err, &ierr))
		assert.Equal(t, template.RoleImage, ierr.Role)
		assert.Equal(t, dpi.StatusError, rep.DPI[1].Status)
		assert.Empty(t, rep.Filled)

		el, _ := doc.ByID("ALVO_IMAGEM_01")
		assert.Equal(t, "rect", el.Tag)
		assert.Equal(t, "x", text(t, doc, "TXT_NOME_01"), "text still injected")
	})

	t.Run("low resolution warns in warn mode", func(t *testing.T) {
		tpl, doc := load(t, template.Fixture(1))
		v := dpi.New(dpi.ModeWarn)
		img := writePNG(t, 200, 100)

		rep, err := New(Options{DPI: &v}).Inject(ctx, doc, tpl.Info, 1, Product{Name: "x", Price: 1, Image: img})
		require.NoError(t, err)
		assert.Len(t, rep.Warnings, 1)
		el, _ := doc.ByID("ALVO_IMAGEM_01")
		assert.Equal(t, "image", el.Tag)
	})
}

type fakePreparer struct {
	out string
	err error
}

func (f fakePreparer) EnsureCMYK(ctx context.Context, path, outDir string) (string, bool, error) {
	if f.err != nil {
		return path, false, f.err
	}
	return f.out, true, nil
}

func TestInjectColorConversion(t *testing.T) {
	ctx := context.Background()
	img := writePNG(t, 800, 600)

	t.Run("converted asset is referenced", func(t *testing.T) {
		tpl, doc := load(t, template.Fixture(1))
		rep, err := New(Options{Color: fakePreparer{out: "/staging/p_cmyk.tiff"}}).
			Inject(ctx, doc, tpl.Info, 1, Product{Name: "x", Price: 1, Image: img})
		require.NoError(t, err)
		assert.Equal(t, "/staging/p_cmyk.tiff", rep.Converted[img])
		el, _ := doc.ByID("ALVO_IMAGEM_01")
		assert.Equal(t, "/staging/p_cmyk.tiff", el.AttrOr("href", ""))
	})

	t.Run("failure falls back to the original", func(t *testing.T) {
		tpl, doc := load(t, template.Fixture(1))
		rep, err := New(Options{Color: fakePreparer{err: errors.New("magick missing")}}).
			Inject(ctx, doc, tpl.Info, 1, Product{Name: "x", Price: 1, Image: img})
		require.NoError(t, err)
		require.Len(t, rep.Warnings, 1)
		assert.Contains(t, rep.Warnings[0].Message, "print quality")
		el, _ := doc.ByID("ALVO_IMAGEM_01")
		assert.Equal(t, img, el.AttrOr("href", ""))
	})
}

func TestReferencePrice(t *testing.T) {
	ctx := context.Background()

	t.Run("discount shows de", func(t *testing.T) {
		tpl, doc := load(t, template.Fixture(1))
		_, err := New(Options{}).Inject(ctx, doc, tpl.Info, 1, Product{Name: "x", Price: 24.9, ReferencePrice: 29.9})
		require.NoError(t, err)
		el, _ := doc.ByID("TXT_PRECO_DE_01")
		assert.Equal(t, "De R$ 29,90", el.Text())
		v, _ := el.Style("display")
		assert.Equal(t, "inline", v)
	})

	t.Run("no reference hides de", func(t *testing.T) {
		tpl, doc := load(t, template.Fixture(1))
		_, err := New(Options{}).Inject(ctx, doc, tpl.Info, 1, Product{Name: "x", Price: 24.9})
		require.NoError(t, err)
		el, _ := doc.ByID("TXT_PRECO_DE_01")
		v, _ := el.Style("display")
		assert.Equal(t, "none", v)
	})

	t.Run("reference not above price is rejected", func(t *testing.T) {
		tpl, doc := load(t, template.Fixture(1))
		_, err := New(Options{}).Inject(ctx, doc, tpl.Info, 1, Product{Name: "x", Price: 24.9, ReferencePrice: 24.9})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidOffer))
		el, _ := doc.ByID("TXT_PRECO_DE_01")
		v, _ := el.Style("display")
		assert.Equal(t, "none", v)
		assert.Equal(t, "24", text(t, doc, "TXT_PRECO_INTEIRO_01"))
	})
}

func TestTextFallbacks(t *testing.T) {
	tpl, doc := load(t, `<svg viewBox="0 0 100 100">
  <g id="SLOT_1">
    <text id="TXT_NOME">old</text>
    <text id="TXT_PRECO">old</text>
    <g id="TXT_PRECO_POR"><text>old</text></g>
  </g>
</svg>`)

	_, err := New(Options{}).Inject(context.Background(), doc, tpl.Info, 1, Product{Name: "Feijão", Price: 8.49, Unit: "1kg"})
	require.NoError(t, err)

	assert.Equal(t, "Feijão 1kg", text(t, doc, "TXT_NOME"), "unit joins the name without a unit node")
	assert.Equal(t, "R$ 8,49", text(t, doc, "TXT_PRECO"))
	assert.Equal(t, "8,49", text(t, doc, "TXT_PRECO_POR"))
}
