package preflight

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/flanksource/commons/logger"
	rsvg "github.com/rustyoz/svg"

	"github.com/flanksource/tabloide/color"
	"github.com/flanksource/tabloide/dpi"
	"github.com/flanksource/tabloide/inject"
	"github.com/flanksource/tabloide/svg"
	"github.com/flanksource/tabloide/template"
)

var log = logger.GetLogger("preflight")

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

type Category string

const (
	CategoryTemplate Category = "template"
	CategorySlot     Category = "slot"
	CategoryProduct  Category = "product"
	CategoryImage    Category = "image"
	CategoryDPI      Category = "dpi"
	CategoryColor    Category = "color"
)

// Issue is one finding. Slot is 0 for template wide issues.
type Issue struct {
	Severity Severity `json:"severity" yaml:"severity"`
	Category Category `json:"category" yaml:"category"`
	Slot     int      `json:"slot,omitempty" yaml:"slot,omitempty"`
	Message  string   `json:"message" yaml:"message"`
}

func (i Issue) String() string {
	if i.Slot > 0 {
		return fmt.Sprintf("[%s] %s slot %d: %s", i.Severity, i.Category, i.Slot, i.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", i.Severity, i.Category, i.Message)
}

// Shapes counts the drawable elements seen by an independent SVG parser.
type Shapes struct {
	Groups  int `json:"groups" yaml:"groups"`
	Rects   int `json:"rects" yaml:"rects"`
	Circles int `json:"circles" yaml:"circles"`
	Paths   int `json:"paths" yaml:"paths"`
	Other   int `json:"other" yaml:"other"`
}

// Result of a preflight run.
type Result struct {
	Issues []Issue `json:"issues" yaml:"issues"`
	Shapes Shapes  `json:"shapes" yaml:"shapes"`
}

// OK is true when nothing blocks production.
func (r Result) OK() bool {
	return len(r.Filter(SeverityError)) == 0
}

func (r Result) Filter(s Severity) []Issue {
	var out []Issue
	for _, i := range r.Issues {
		if i.Severity == s {
			out = append(out, i)
		}
	}
	return out
}

func (r *Result) add(s Severity, c Category, slot int, format string, args ...any) {
	r.Issues = append(r.Issues, Issue{Severity: s, Category: c, Slot: slot, Message: fmt.Sprintf(format, args...)})
}

// Options for Check. Nil DPI and Color skip those checks.
type Options struct {
	DPI        *dpi.Validator
	Color      *color.Manager
	BaseDir    string
	SafeZoneMM float64
	ImageSize  func(path string) (int, int, error)
}

// Check inspects a template and the products meant for it without
// modifying anything.
func Check(ctx context.Context, tpl *template.Template, products map[int]inject.Product, opts Options) Result {
	if opts.ImageSize == nil {
		opts.ImageSize = dpi.ReadImageSize
	}
	var r Result
	info := tpl.Info

	r.Shapes = reparse(tpl, &r)
	for _, w := range info.Warnings {
		r.add(SeverityWarning, CategoryTemplate, 0, "%s", w)
	}
	if len(info.Slots) == 0 {
		r.add(SeverityError, CategoryTemplate, 0, "template has no SLOT_ groups")
	}

	for _, slot := range info.Slots {
		checkSlot(&r, info, slot, opts)
		if _, ok := products[slot.Index]; !ok && len(products) > 0 {
			r.add(SeverityInfo, CategorySlot, slot.Index, "no product, placeholder content stays")
		}
	}

	indexes := make([]int, 0, len(products))
	for k := range products {
		indexes = append(indexes, k)
	}
	sort.Ints(indexes)
	for _, index := range indexes {
		if ctx.Err() != nil {
			r.add(SeverityError, CategoryTemplate, 0, "preflight interrupted: %v", ctx.Err())
			break
		}
		slot, ok := info.Slot(index)
		if !ok {
			r.add(SeverityError, CategorySlot, index, "template has no slot %d", index)
			continue
		}
		checkProduct(ctx, &r, tpl.Document(), info, slot, products[index], opts)
	}

	log.Debugf("preflight: %d errors, %d warnings", len(r.Filter(SeverityError)), len(r.Filter(SeverityWarning)))
	return r
}

// reparse feeds the template through a second SVG parser so structures only
// our parser tolerates are noticed before a renderer trips over them.
func reparse(tpl *template.Template, r *Result) Shapes {
	var shapes Shapes
	parsed, err := rsvg.ParseSvg(tpl.Document().String(), tpl.Info.Name, 1.0)
	if err != nil {
		r.add(SeverityWarning, CategoryTemplate, 0, "strict SVG parse failed, renderers may reject this file: %v", err)
		return shapes
	}
	for i := range parsed.Groups {
		shapes.Groups++
		count(parsed.Groups[i].Elements, &shapes)
	}
	count(parsed.Elements, &shapes)
	return shapes
}

func count(elements []rsvg.DrawingInstructionParser, shapes *Shapes) {
	for _, el := range elements {
		switch e := el.(type) {
		case *rsvg.Group:
			shapes.Groups++
			count(e.Elements, shapes)
		case *rsvg.Rect:
			shapes.Rects++
		case *rsvg.Circle:
			shapes.Circles++
		case *rsvg.Path:
			shapes.Paths++
		default:
			shapes.Other++
		}
	}
}

func checkSlot(r *Result, info template.Info, slot template.SlotDefinition, opts Options) {
	if slot.ImageID == "" {
		r.add(SeverityWarning, CategorySlot, slot.Index, "no ALVO_IMAGEM placeholder")
	}
	if slot.NameID == "" {
		r.add(SeverityWarning, CategorySlot, slot.Index, "no TXT_NOME field")
	}
	if !slot.HasPrice() {
		r.add(SeverityWarning, CategorySlot, slot.Index, "no price field")
	}
	if opts.SafeZoneMM <= 0 || slot.Bounds.IsEmpty() {
		return
	}
	mx, my := info.MMPerUnit()
	left := (slot.Bounds.X - info.ViewBox.X) * mx
	top := (slot.Bounds.Y - info.ViewBox.Y) * my
	right := info.WidthMM - (slot.Bounds.Right()-info.ViewBox.X)*mx
	bottom := info.HeightMM - (slot.Bounds.Bottom()-info.ViewBox.Y)*my
	if closest := min(left, top, right, bottom); closest < opts.SafeZoneMM {
		r.add(SeverityWarning, CategorySlot, slot.Index,
			"content %.1fmm from the trim edge, inside the %gmm safe zone", closest, opts.SafeZoneMM)
	}
}

func checkProduct(ctx context.Context, r *Result, doc *svg.Document, info template.Info, slot template.SlotDefinition, p inject.Product, opts Options) {
	if strings.TrimSpace(p.Name) == "" {
		r.add(SeverityWarning, CategoryProduct, slot.Index, "product has no name")
	}
	if p.Price <= 0 {
		r.add(SeverityError, CategoryProduct, slot.Index, "price %.2f is not positive", p.Price)
	}
	if p.ReferencePrice > 0 && p.ReferencePrice <= p.Price {
		r.add(SeverityError, CategoryProduct, slot.Index,
			"reference price %.2f must be greater than the offer price %.2f", p.ReferencePrice, p.Price)
	}
	if p.Image == "" {
		if slot.ImageID != "" {
			r.add(SeverityInfo, CategoryImage, slot.Index, "no image, placeholder stays")
		}
		return
	}

	path := p.Image
	if !filepath.IsAbs(path) && opts.BaseDir != "" {
		path = filepath.Join(opts.BaseDir, path)
	}
	wpx, hpx, err := opts.ImageSize(path)
	if err != nil {
		r.add(SeverityError, CategoryImage, slot.Index, "%s is missing or unreadable: %v", filepath.Base(path), err)
		return
	}

	if opts.DPI != nil {
		wmm, hmm := placeholderSize(doc, info, slot)
		res := opts.DPI.Check(wpx, hpx, wmm, hmm)
		switch res.Status {
		case dpi.StatusError:
			r.add(SeverityError, CategoryDPI, slot.Index, "%s: %s", filepath.Base(path), res.Message)
		case dpi.StatusWarning:
			r.add(SeverityWarning, CategoryDPI, slot.Index, "%s: %s", filepath.Base(path), res.Message)
		}
	}

	if opts.Color != nil {
		ci := opts.Color.Detect(ctx, path)
		switch ci.ColorSpace {
		case color.RGB:
			r.add(SeverityInfo, CategoryColor, slot.Index, "%s is RGB and will be converted to CMYK", filepath.Base(path))
		case color.Unknown:
			r.add(SeverityWarning, CategoryColor, slot.Index, "color space of %s could not be determined", filepath.Base(path))
		}
	}
}

// placeholderSize is the printed size of the image placeholder, or of the
// whole slot when the placeholder has no measurable geometry.
func placeholderSize(doc *svg.Document, info template.Info, slot template.SlotDefinition) (float64, float64) {
	bounds := slot.Bounds
	if el, ok := doc.ByID(slot.ImageID); ok && slot.ImageID != "" {
		if b := template.DocumentBounds(el); !b.IsEmpty() {
			bounds = b
		}
	}
	return info.SizeMM(bounds)
}
