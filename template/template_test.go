package template

import (
	"fmt"
	"strings"
	"testing"

	"github.com/flanksource/tabloide/svg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const flyer = `<svg xmlns="http://www.w3.org/2000/svg" width="210mm" height="297mm" viewBox="0 0 210 297">
  <title> Ofertas da Semana </title>
  <rect id="fundo" width="210" height="297" fill="#fff"/>
  <g id="layer1" transform="translate(5,5)">
    <g id="SLOT_01" transform="translate(10,20)">
      <rect id="ALVO_IMAGEM_01" x="0" y="0" width="50" height="40"/>
      <text id="TXT_NOME_01" x="0" y="50" font-size="5">Arroz</text>
      <text id="TXT_NOME_02" x="0" y="60" font-size="5">second name</text>
      <text id="TXT_PRECO_INTEIRO_01" x="0" y="70">24</text>
      <text id="TXT_PRECO_DECIMAL_01" x="20" y="70">,90</text>
      <text id="TXT_PRECO_DE_01" x="0" y="80">De</text>
      <circle id="selo" cx="45" cy="5" r="5"/>
    </g>
  </g>
  <rect id="ALVO_IMAGEM_03" x="100" y="100" width="30" height="30"/>
  <text id="TXT_PRECO_03" x="100" y="140">9,99</text>
  <text id="TXT_UNIDADE_01" x="0" y="0">kg</text>
  <text id="TXT_NOME">stray</text>
</svg>`

func TestParseInfo(t *testing.T) {
	tpl, err := ParseBytes([]byte(flyer))
	require.NoError(t, err)
	info := tpl.Info

	assert.Equal(t, "Ofertas da Semana", info.Title)
	assert.Equal(t, svg.Rect{Width: 210, Height: 297}, info.ViewBox)
	assert.Equal(t, 210.0, info.WidthMM)
	assert.Equal(t, 297.0, info.HeightMM)
	assert.Equal(t, 300, info.DPI)
	assert.Empty(t, info.Warnings)
	assert.Equal(t, []int{1, 3}, info.SlotIndexes())

	t.Run("container slot", func(t *testing.T) {
		s, ok := info.Slot(1)
		require.True(t, ok)
		assert.Equal(t, "SLOT_01", s.ContainerID)
		assert.False(t, s.Synthesized)
		assert.Equal(t, "ALVO_IMAGEM_01", s.ImageID)
		assert.Equal(t, "TXT_NOME_01", s.NameID, "first name wins")
		assert.Equal(t, "TXT_PRECO_INTEIRO_01", s.PriceIntegerID)
		assert.Equal(t, "TXT_PRECO_DECIMAL_01", s.PriceDecimalID)
		assert.Equal(t, "TXT_PRECO_DE_01", s.PriceDeID)
		assert.Equal(t, "text", s.Extra["TXT_NOME_02"])
		assert.Equal(t, "circle", s.Extra["selo"])

		// loose unit with a matching suffix attaches to the container slot
		assert.Equal(t, "TXT_UNIDADE_01", s.UnitID)

		// translate of the layer and the slot are both applied
		assert.InDelta(t, 15, s.Bounds.X, 1e-9)
		assert.InDelta(t, 25, s.Bounds.Y, 1e-9)
		assert.InDelta(t, 50, s.Bounds.Width, 1e-9)
	})

	t.Run("synthesized slot", func(t *testing.T) {
		s, ok := info.Slot(3)
		require.True(t, ok)
		assert.True(t, s.Synthesized)
		assert.Empty(t, s.ContainerID)
		assert.Equal(t, "ALVO_IMAGEM_03", s.ImageID)
		assert.Equal(t, "TXT_PRECO_03", s.PriceID)
		assert.Equal(t, 100.0, s.Bounds.X)
		assert.Equal(t, 100.0, s.Bounds.Y)
	})

	t.Run("static elements", func(t *testing.T) {
		ids := map[string]string{}
		for _, s := range info.Static {
			ids[s.ID] = s.Tag
		}
		assert.Equal(t, map[string]string{"fundo": "rect", "layer1": "g", "TXT_NOME": "text"}, ids)
	})

	t.Run("slot size in mm", func(t *testing.T) {
		s, _ := info.Slot(3)
		w, h := info.SizeMM(s.Bounds)
		assert.InDelta(t, 30, w, 1e-9)
		assert.Greater(t, h, 30.0)
		sw, sh := info.SlotSizeMM(s)
		assert.Equal(t, w, sw)
		assert.Equal(t, h, sh)
	})
}

func TestClassify(t *testing.T) {
	cases := []struct {
		id    string
		role  Role
		index int
	}{
		{"ALVO_IMAGEM", RoleImage, -1},
		{"alvo_imagem_7", RoleImage, 7},
		{"TXT_PRECO_12", RolePrice, 12},
		{"TXT_PRECO_DE_2", RolePriceDe, 2},
		{"TXT_PRECO_DECIMAL_2", RolePriceDecimal, 2},
		{"TXT_PRECO_POR", RolePricePor, -1},
		{"TXT_PRECO_INTEIRO_02", RolePriceInteger, 2},
		{"TXT_NOME_PRODUTO_3", RoleName, 3},
		{"TXT_PESO_4", RoleUnit, 4},
	}
	for _, c := range cases {
		role, index, ok := Classify(c.id)
		require.True(t, ok, c.id)
		assert.Equal(t, c.role, role, c.id)
		assert.Equal(t, c.index, index, c.id)
	}

	_, _, ok := Classify("TXT_PRECO_X")
	assert.False(t, ok)
	_, _, ok = Classify("xTXT_NOME")
	assert.False(t, ok)
}

func TestDimensions(t *testing.T) {
	cases := []struct {
		attrs    string
		w, h     float64
		warnings int
	}{
		{`width="10cm" height="4in"`, 100, 101.6, 1},
		{`width="96px" height="72pt"`, 25.4, 25.4016, 1},
		{`width="100%" height="auto"`, 210, 297, 3},
		{``, 210, 297, 1},
	}
	for _, c := range cases {
		t.Run(c.attrs, func(t *testing.T) {
			tpl, err := ParseBytes([]byte(fmt.Sprintf(`<svg %s/>`, c.attrs)))
			require.NoError(t, err)
			assert.InDelta(t, c.w, tpl.Info.WidthMM, 1e-6)
			assert.InDelta(t, c.h, tpl.Info.HeightMM, 1e-6)
			assert.Equal(t, defaultViewBox, tpl.Info.ViewBox)
			assert.Len(t, tpl.Info.Warnings, c.warnings)
		})
	}
}

func TestDuplicateSlot(t *testing.T) {
	tpl, err := ParseBytes([]byte(`<svg viewBox="0 0 10 10">
  <g id="SLOT_1"><rect id="ALVO_IMAGEM" width="1" height="1"/></g>
  <g id="slot_01"><rect id="other" width="1" height="1"/></g>
</svg>`))
	require.NoError(t, err)
	require.Len(t, tpl.Info.Slots, 1)
	assert.Equal(t, "SLOT_1", tpl.Info.Slots[0].ContainerID)
	assert.Equal(t, "ALVO_IMAGEM", tpl.Info.Slots[0].ImageID)
	require.Len(t, tpl.Info.Warnings, 1)
	assert.Contains(t, tpl.Info.Warnings[0], "duplicate slot 1")
}

func TestOversizedSlotIndex(t *testing.T) {
	_, _, ok := Classify("TXT_NOME_99999999999999999999")
	assert.False(t, ok)
	_, ok = SlotIndex("SLOT_99999999999999999999")
	assert.False(t, ok)

	tpl, err := ParseBytes([]byte(`<svg viewBox="0 0 10 10">
  <g id="SLOT_99999999999999999999"><rect id="inside" width="1" height="1"/></g>
  <text id="TXT_NOME_99999999999999999999">x</text>
  <g id="SLOT_1"><text id="TXT_NOME_1">y</text></g>
</svg>`))
	require.NoError(t, err)
	require.Len(t, tpl.Info.Slots, 1)
	assert.Equal(t, 1, tpl.Info.Slots[0].Index)
	_, bound := tpl.Info.Slot(0)
	assert.False(t, bound, "an overflowing suffix never becomes slot 0")
	require.Len(t, tpl.Info.Warnings, 2)
	for _, w := range tpl.Info.Warnings {
		assert.Contains(t, w, "out of range")
	}
}

func TestMalformed(t *testing.T) {
	_, err := ParseBytes([]byte(`<svg><g id="SLOT_01"></svg>`))
	require.Error(t, err)
}

func TestRoundTripPreservesSlots(t *testing.T) {
	tpl, err := ParseBytes([]byte(Fixture(12)))
	require.NoError(t, err)
	require.Len(t, tpl.Info.Slots, 12)

	again, err := ParseBytes(tpl.Document().Bytes())
	require.NoError(t, err)
	assert.Equal(t, tpl.Info.Slots, again.Info.Slots)
	assert.Equal(t, tpl.Info.Static, again.Info.Static)
}

func TestInstantiateIsIsolated(t *testing.T) {
	tpl, err := ParseBytes([]byte(Fixture(2)))
	require.NoError(t, err)

	doc := tpl.Instantiate()
	el, ok := doc.ByID("TXT_NOME_01")
	require.True(t, ok)
	el.SetText("changed")

	orig, _ := tpl.Document().ByID("TXT_NOME_01")
	assert.False(t, strings.Contains(orig.Text(), "changed"))
}
