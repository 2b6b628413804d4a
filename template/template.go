package template

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/flanksource/commons/logger"
	"github.com/flanksource/tabloide/svg"
	"github.com/samber/lo"
)

const (
	DefaultDPI = 300
	a4WidthMM  = 210.0
	a4HeightMM = 297.0
)

var defaultViewBox = svg.Rect{Width: 800, Height: 600}

var log = logger.GetLogger("template")

// Info describes the physical page and the slots of a template.
type Info struct {
	Name     string           `json:"name,omitempty" yaml:"name,omitempty"`
	Title    string           `json:"title,omitempty" yaml:"title,omitempty"`
	ViewBox  svg.Rect         `json:"view_box" yaml:"view_box"`
	WidthMM  float64          `json:"width_mm" yaml:"width_mm"`
	HeightMM float64          `json:"height_mm" yaml:"height_mm"`
	DPI      int              `json:"dpi" yaml:"dpi"`
	Slots    []SlotDefinition `json:"slots" yaml:"slots"`
	Static   []StaticElement  `json:"static,omitempty" yaml:"static,omitempty"`
	Warnings []string         `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Slot looks a slot up by index.
func (i Info) Slot(index int) (SlotDefinition, bool) {
	return lo.Find(i.Slots, func(s SlotDefinition) bool { return s.Index == index })
}

// SlotIndexes lists slot indexes in ascending order.
func (i Info) SlotIndexes() []int {
	return lo.Map(i.Slots, func(s SlotDefinition, _ int) int { return s.Index })
}

// MMPerUnit is the size in millimetres of one viewBox unit on each axis.
func (i Info) MMPerUnit() (float64, float64) {
	return i.WidthMM / i.ViewBox.Width, i.HeightMM / i.ViewBox.Height
}

// SizeMM converts a rect in document units to its physical size.
func (i Info) SizeMM(r svg.Rect) (float64, float64) {
	mx, my := i.MMPerUnit()
	return r.Width * mx, r.Height * my
}

func (i Info) SlotSizeMM(slot SlotDefinition) (float64, float64) {
	return i.SizeMM(slot.Bounds)
}

// Template is a parsed, read-only template. Use Instantiate for a tree that
// can be modified.
type Template struct {
	Info Info
	doc  *svg.Document
}

// Document returns the parsed tree. It must not be modified.
func (t *Template) Document() *svg.Document {
	return t.doc
}

// Instantiate returns a private deep copy of the template tree.
func (t *Template) Instantiate() *svg.Document {
	return t.doc.Clone()
}

// ParseFile parses a template from disk.
func ParseFile(path string) (*Template, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template: %w", err)
	}
	t, err := ParseBytes(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	t.Info.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return t, nil
}

// ParseBytes parses an in-memory template.
func ParseBytes(b []byte) (*Template, error) {
	return Parse(bytes.NewReader(b))
}

// Parse reads a template. Only malformed XML is an error; everything else
// degrades to defaults and warnings.
func Parse(r io.Reader) (*Template, error) {
	doc, err := svg.Parse(r)
	if err != nil {
		return nil, err
	}
	return FromDocument(doc), nil
}

// FromDocument analyses an already parsed tree. The template takes
// ownership of doc.
func FromDocument(doc *svg.Document) *Template {
	info := Info{DPI: DefaultDPI}
	root := doc.Root

	if vb, ok := svg.ParseViewBox(root.AttrOr("viewBox", "")); ok {
		info.ViewBox = vb
	} else {
		info.ViewBox = defaultViewBox
		info.Warnings = append(info.Warnings, "missing or invalid viewBox, using 0 0 800 600")
	}

	info.WidthMM = dimension(root, "width", a4WidthMM, &info)
	info.HeightMM = dimension(root, "height", a4HeightMM, &info)

	if title, ok := root.FirstChild("title"); ok {
		info.Title = strings.TrimSpace(title.Text())
	}

	discoverSlots(doc, &info)

	log.Debugf("parsed template: %gx%gmm, %d slots, %d static elements",
		info.WidthMM, info.HeightMM, len(info.Slots), len(info.Static))
	return &Template{Info: info, doc: doc}
}

func dimension(root *svg.Element, name string, fallback float64, info *Info) float64 {
	raw, ok := root.Attr(name)
	if !ok {
		return fallback
	}
	if mm, ok := svg.ToMM(raw); ok && mm > 0 {
		return mm
	}
	info.Warnings = append(info.Warnings, fmt.Sprintf("unparseable %s %q, using %gmm", name, raw, fallback))
	return fallback
}

func discoverSlots(doc *svg.Document, info *Info) {
	claimed := map[*svg.Element]bool{}
	slots := map[int]*SlotDefinition{}

	// containers first, each claiming its descendants
	doc.Root.Walk(func(el *svg.Element) bool {
		if claimed[el] {
			return true
		}
		n, err := slotIndex(el.ID())
		if err != nil {
			info.Warnings = append(info.Warnings, err.Error()+", ignored")
			return true
		}
		if n < 0 {
			return true
		}
		if _, dup := slots[n]; dup {
			info.Warnings = append(info.Warnings, fmt.Sprintf("duplicate slot %d at %q ignored", n, el.ID()))
			return true
		}

		slot := &SlotDefinition{
			Index:       n,
			ContainerID: el.ID(),
			Bounds:      DocumentBounds(el),
		}
		claimed[el] = true
		for _, child := range el.Elements() {
			child.Walk(func(d *svg.Element) bool {
				id := d.ID()
				if id == "" {
					return true
				}
				claimed[d] = true
				if role, _, ok := Classify(id); ok && slot.bind(role, id) {
					return true
				}
				if slot.Extra == nil {
					slot.Extra = map[string]string{}
				}
				slot.Extra[id] = d.LocalName()
				return true
			})
		}
		slots[n] = slot
		return true
	})

	// loose suffixed elements outside any container
	doc.Root.Walk(func(el *svg.Element) bool {
		id := el.ID()
		if id == "" || claimed[el] {
			return true
		}
		role, n, err := classify(id)
		if err != nil {
			info.Warnings = append(info.Warnings, err.Error()+", ignored")
			return true
		}
		if role == "" || n < 0 {
			return true
		}
		slot, exists := slots[n]
		if !exists {
			slot = &SlotDefinition{Index: n, Synthesized: true}
			slots[n] = slot
		}
		if !slot.bind(role, id) {
			return true
		}
		claimed[el] = true
		if slot.Synthesized {
			slot.Bounds = slot.Bounds.Union(DocumentBounds(el))
		}
		return true
	})

	doc.Root.Walk(func(el *svg.Element) bool {
		if id := el.ID(); id != "" && !claimed[el] {
			info.Static = append(info.Static, StaticElement{ID: id, Tag: el.LocalName()})
		}
		return true
	})

	info.Slots = make([]SlotDefinition, 0, len(slots))
	for _, s := range slots {
		info.Slots = append(info.Slots, *s)
	}
	sort.Slice(info.Slots, func(a, b int) bool { return info.Slots[a].Index < info.Slots[b].Index })
}
