package clippath

import (
	"fmt"
	"strings"
	"testing"

	"github.com/flanksource/tabloide/svg"
	"github.com/flanksource/tabloide/template"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func longPath() string {
	var sb strings.Builder
	sb.WriteString("M10 20")
	for i := 0; i < 200; i++ {
		fmt.Fprintf(&sb, " L%d %d", 10+i%50, 20+i%30)
	}
	sb.WriteString(" Z")
	return sb.String()
}

func parse(t *testing.T, s string) *svg.Document {
	doc, err := svg.ParseString(s)
	require.NoError(t, err)
	return doc
}

func TestDanglingReference(t *testing.T) {
	doc := parse(t, `<svg><rect id="r" clip-path="url(#ghost)" width="1" height="1"/></svg>`)

	r := Repair(doc, Options{})
	assert.Equal(t, Report{Fixed: 1}, r)

	rect, ok := doc.ByID("r")
	require.True(t, ok, "the element itself is kept")
	_, has := rect.Attr("clip-path")
	assert.False(t, has)

	assert.Equal(t, Report{}, Repair(doc, Options{}))
}

func TestRepair(t *testing.T) {
	doc := parse(t, fmt.Sprintf(`<svg>
  <defs>
    <clipPath id="empty"/>
    <clipPath id="ok"><rect width="5" height="5"/></clipPath>
    <clipPath id="complex"><path id="p" transform="translate(1,1)" d="%s"/></clipPath>
  </defs>
  <image id="a" clip-path="url(#empty)"/>
  <image id="b" clip-path="url('#ok')"/>
  <image id="c" style="fill:red;clip-path:url(#nothing)"/>
  <g id="d" clip-path="url(#complex)"/>
  <rect id="e" clip-path="none"/>
</svg>`, longPath()))

	r := Repair(doc, Options{})
	assert.Equal(t, 1, r.RemovedEmpty)
	assert.Equal(t, 1, r.Simplified)
	assert.Equal(t, 2, r.Fixed)

	_, ok := doc.ByID("empty")
	assert.False(t, ok)

	a, _ := doc.ByID("a")
	_, has := a.Attr("clip-path")
	assert.False(t, has, "reference to the removed definition is dropped")

	b, _ := doc.ByID("b")
	assert.Equal(t, "url('#ok')", b.AttrOr("clip-path", ""))

	c, _ := doc.ByID("c")
	assert.Equal(t, "fill:red", c.AttrOr("style", ""))

	p, ok := doc.ByID("p")
	require.True(t, ok)
	assert.Equal(t, "rect", p.Tag)
	assert.Equal(t, "translate(1,1)", p.AttrOr("transform", ""))
	assert.Equal(t, "10", p.AttrOr("x", ""))
	assert.Equal(t, "20", p.AttrOr("y", ""))
	assert.Equal(t, "49", p.AttrOr("width", ""))
	assert.Equal(t, "29", p.AttrOr("height", ""))

	e, _ := doc.ByID("e")
	assert.Equal(t, "none", e.AttrOr("clip-path", ""))

	t.Run("idempotent", func(t *testing.T) {
		assert.Equal(t, Report{}, Repair(doc, Options{}))
	})
}

func TestNestedEmptyClips(t *testing.T) {
	doc := parse(t, `<svg>
  <defs>
    <clipPath id="outer"><clipPath id="inner"/></clipPath>
    <clipPath id="holder"><clipPath id="nested"/><rect width="2" height="2"/></clipPath>
  </defs>
  <image id="a" clip-path="url(#outer)"/>
  <image id="b" clip-path="url(#holder)"/>
</svg>`)

	first := Repair(doc, Options{})
	assert.Equal(t, Report{Fixed: 1, RemovedEmpty: 3}, first)

	_, ok := doc.ByID("outer")
	assert.False(t, ok, "a clip holding only empty clips is empty itself")
	holder, ok := doc.ByID("holder")
	require.True(t, ok)
	assert.Len(t, holder.Elements(), 1)
	b, _ := doc.ByID("b")
	assert.Equal(t, "url(#holder)", b.AttrOr("clip-path", ""))

	second := Repair(doc, Options{})
	assert.Zero(t, second.Total())
}

func TestShortPathsAreKept(t *testing.T) {
	doc := parse(t, `<svg><clipPath id="c"><path id="p" d="M0 0 L10 0 L10 10 Z"/></clipPath></svg>`)
	assert.Equal(t, Report{}, Repair(doc, Options{MaxPathLength: 1000}))

	assert.Equal(t, Report{Simplified: 1}, Repair(doc, Options{MaxPathLength: 5}))
	p, _ := doc.ByID("p")
	assert.Equal(t, "rect", p.Tag)
}

func TestFixtureNeedsNoRepair(t *testing.T) {
	doc := parse(t, template.Fixture(6))
	assert.Equal(t, Report{}, Repair(doc, Options{}))
}
