package inject

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/flanksource/commons/logger"
	"github.com/flanksource/tabloide/dpi"
	"github.com/flanksource/tabloide/svg"
	"github.com/flanksource/tabloide/template"
)

var log = logger.GetLogger("inject")

var (
	// ErrSlotNotFound matches any *SlotNotFoundError.
	ErrSlotNotFound = errors.New("slot not found")
	// ErrInvalidOffer is returned when a reference price does not exceed the offer price.
	ErrInvalidOffer = errors.New("reference price must be greater than the offer price")
)

const (
	xlinkNS   = "http://www.w3.org/1999/xlink"
	coverMode = "xMidYMid slice"
)

// Product is the catalog record placed into a slot.
type Product struct {
	Name           string  `json:"name" yaml:"name"`
	Price          float64 `json:"price" yaml:"price"`
	ReferencePrice float64 `json:"reference_price,omitempty" yaml:"reference_price,omitempty"`
	Unit           string  `json:"unit,omitempty" yaml:"unit,omitempty"`
	Image          string  `json:"image,omitempty" yaml:"image,omitempty"`
	Category       string  `json:"category,omitempty" yaml:"category,omitempty"`
}

// SlotNotFoundError is returned for an index the template does not define.
type SlotNotFoundError struct {
	Index int
}

func (e *SlotNotFoundError) Error() string {
	return fmt.Sprintf("slot %d not found in template", e.Index)
}

func (e *SlotNotFoundError) Is(target error) bool {
	return target == ErrSlotNotFound
}

// InjectError is a failure to fill one role of one slot.
type InjectError struct {
	Slot int
	Role template.Role
	Err  error
}

func (e *InjectError) Error() string {
	return fmt.Sprintf("slot %d %s: %v", e.Slot, e.Role, e.Err)
}

func (e *InjectError) Unwrap() error {
	return e.Err
}

// Warning is a non-blocking problem found while filling a slot.
type Warning struct {
	Slot    int    `json:"slot" yaml:"slot"`
	Message string `json:"message" yaml:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("slot %d: %s", w.Slot, w.Message)
}

// Report accumulates the outcome of one or more injections.
type Report struct {
	Filled    []int              `json:"filled" yaml:"filled"`
	Errors    []error            `json:"-" yaml:"-"`
	Warnings  []Warning          `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	DPI       map[int]dpi.Result `json:"dpi,omitempty" yaml:"dpi,omitempty"`
	Converted map[string]string  `json:"converted,omitempty" yaml:"converted,omitempty"`
}

func newReport() *Report {
	return &Report{DPI: map[int]dpi.Result{}, Converted: map[string]string{}}
}

// Err joins every recorded error, nil when there are none.
func (r *Report) Err() error {
	return errors.Join(r.Errors...)
}

func (r *Report) warn(slot int, format string, args ...any) {
	w := Warning{Slot: slot, Message: fmt.Sprintf(format, args...)}
	log.Warnf("%s", w)
	r.Warnings = append(r.Warnings, w)
}

func (r *Report) merge(o *Report) {
	r.Filled = append(r.Filled, o.Filled...)
	r.Errors = append(r.Errors, o.Errors...)
	r.Warnings = append(r.Warnings, o.Warnings...)
	for k, v := range o.DPI {
		r.DPI[k] = v
	}
	for k, v := range o.Converted {
		r.Converted[k] = v
	}
}

// ImagePreparer converts an asset for print before it is referenced.
type ImagePreparer interface {
	EnsureCMYK(ctx context.Context, path, outDir string) (string, bool, error)
}

// Options configures an Injector. Nil Color or DPI disable those checks.
type Options struct {
	Color      ImagePreparer
	DPI        *dpi.Validator
	StagingDir string
	// BaseDir resolves relative image paths.
	BaseDir   string
	ImageSize func(path string) (int, int, error)
}

// Injector writes product data into an instantiated template tree.
type Injector struct {
	opts Options
}

func New(opts Options) *Injector {
	if opts.ImageSize == nil {
		opts.ImageSize = dpi.ReadImageSize
	}
	if opts.StagingDir == "" {
		opts.StagingDir = filepath.Join(os.TempDir(), "tabloide-staging")
	}
	return &Injector{opts: opts}
}

// Inject fills slot index with p. The error joins every failure for the
// slot; warnings are only in the report.
func (i *Injector) Inject(ctx context.Context, doc *svg.Document, info template.Info, index int, p Product) (*Report, error) {
	rep := newReport()
	err := i.inject(ctx, doc, info, index, p, rep)
	if err != nil {
		rep.Errors = append(rep.Errors, err)
	} else {
		rep.Filled = append(rep.Filled, index)
	}
	return rep, err
}

// InjectMany fills every slot in products in ascending index order. A
// failing slot never stops the others.
func (i *Injector) InjectMany(ctx context.Context, doc *svg.Document, info template.Info, products map[int]Product) *Report {
	rep := newReport()
	indexes := make([]int, 0, len(products))
	for k := range products {
		indexes = append(indexes, k)
	}
	sort.Ints(indexes)

	for _, index := range indexes {
		if ctx.Err() != nil {
			rep.Errors = append(rep.Errors, ctx.Err())
			break
		}
		r, _ := i.Inject(ctx, doc, info, index, products[index])
		rep.merge(r)
	}
	log.Debugf("injected %d/%d slots", len(rep.Filled), len(products))
	return rep
}

func (i *Injector) inject(ctx context.Context, doc *svg.Document, info template.Info, index int, p Product, rep *Report) error {
	slot, ok := info.Slot(index)
	if !ok {
		return &SlotNotFoundError{Index: index}
	}

	var errs []error
	setText := func(role template.Role, value string) {
		id, ok := slot.Target(role)
		if !ok {
			return
		}
		el, ok := doc.ByID(id)
		if !ok {
			rep.warn(index, "%s target %q is missing from the document", role, id)
			return
		}
		SetText(el, value)
	}

	name := p.Name
	if slot.UnitID == "" && p.Unit != "" {
		name = name + " " + p.Unit
	}
	setText(template.RoleName, name)
	setText(template.RoleUnit, p.Unit)

	if integer, decimal, err := SplitPrice(p.Price); err != nil {
		errs = append(errs, &InjectError{Slot: index, Role: template.RolePrice, Err: err})
	} else {
		setText(template.RolePrice, Currency+" "+integer+decimal)
		setText(template.RolePricePor, integer+decimal)
		setText(template.RolePriceInteger, integer)
		setText(template.RolePriceDecimal, decimal)
		if err := applyReference(doc, slot, p); err != nil {
			errs = append(errs, err)
		}
	}

	if p.Image != "" {
		if err := i.placeImage(ctx, doc, info, slot, p.Image, rep); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// applyReference shows the "De" price only for a genuine discount.
func applyReference(doc *svg.Document, slot template.SlotDefinition, p Product) error {
	el, ok := doc.ByID(slot.PriceDeID)
	if !ok {
		return nil
	}
	if p.ReferencePrice > p.Price {
		text, err := FormatCurrency(p.ReferencePrice)
		if err != nil {
			hide(el)
			return &InjectError{Slot: slot.Index, Role: template.RolePriceDe, Err: err}
		}
		SetText(el, "De "+text)
		show(el)
		return nil
	}
	hide(el)
	if p.ReferencePrice > 0 {
		return &InjectError{Slot: slot.Index, Role: template.RolePriceDe,
			Err: fmt.Errorf("%w: de %.2f, por %.2f", ErrInvalidOffer, p.ReferencePrice, p.Price)}
	}
	return nil
}

func show(el *svg.Element) {
	el.RemoveAttr("display")
	el.RemoveAttr("visibility")
	el.SetStyle("display", "inline")
	el.SetStyle("visibility", "visible")
}

func hide(el *svg.Element) {
	el.SetStyle("display", "none")
	el.SetStyle("visibility", "hidden")
}

// SetText writes s into the first text run under el, falling back to the
// text element itself.
func SetText(el *svg.Element, s string) {
	target := el
	if !el.Is("text") && !el.Is("tspan") {
		if text, ok := el.Find(func(e *svg.Element) bool { return e.Is("text") }); ok {
			target = text
		}
	}
	if run, ok := target.Find(func(e *svg.Element) bool { return e != target && e.Is("tspan") }); ok {
		run.SetText(s)
		return
	}
	target.SetText(s)
}

func (i *Injector) placeImage(ctx context.Context, doc *svg.Document, info template.Info, slot template.SlotDefinition, image string, rep *Report) error {
	el, ok := doc.ByID(slot.ImageID)
	if !ok {
		rep.warn(slot.Index, "no image placeholder, %s not placed", filepath.Base(image))
		return nil
	}

	path := image
	if !filepath.IsAbs(path) && i.opts.BaseDir != "" {
		path = filepath.Join(i.opts.BaseDir, path)
	}
	wpx, hpx, err := i.opts.ImageSize(path)
	if err != nil {
		rep.warn(slot.Index, "image %s is missing or unreadable, placeholder kept: %v", filepath.Base(path), err)
		return nil
	}

	if i.opts.DPI != nil {
		bounds := template.DocumentBounds(el)
		if bounds.IsEmpty() {
			bounds = slot.Bounds
		}
		wmm, hmm := info.SizeMM(bounds)
		res := i.opts.DPI.Check(wpx, hpx, wmm, hmm)
		rep.DPI[slot.Index] = res
		switch res.Status {
		case dpi.StatusError:
			return &InjectError{Slot: slot.Index, Role: template.RoleImage,
				Err: fmt.Errorf("%s rejected: %s", filepath.Base(path), res.Message)}
		case dpi.StatusWarning:
			rep.warn(slot.Index, "%s: %s", filepath.Base(path), res.Message)
		}
	}

	if i.opts.Color != nil {
		staged, converted, err := i.opts.Color.EnsureCMYK(ctx, path, i.opts.StagingDir)
		if err != nil {
			rep.warn(slot.Index, "print quality: using the original colors of %s: %v", filepath.Base(path), err)
		} else if converted {
			rep.Converted[path] = staged
			path = staged
		}
	}

	if err := replacePlaceholder(doc, el, path); err != nil {
		rep.warn(slot.Index, "%v, placeholder kept", err)
	}
	return nil
}

// attributes carried over from a placeholder shape to its image
var placeholderAttrs = []string{"id", "x", "y", "width", "height", "transform", "clip-path", "mask", "opacity", "class"}

// replacePlaceholder swaps the placeholder rect for an image at the same
// position among its siblings.
func replacePlaceholder(doc *svg.Document, el *svg.Element, href string) error {
	if _, ok := doc.Root.Attr("xmlns:xlink"); !ok {
		doc.Root.SetAttr("xmlns:xlink", xlinkNS)
	}

	if el.Is("image") {
		setHref(el, href)
		el.SetAttr("preserveAspectRatio", coverMode)
		return nil
	}

	rect := el
	if !el.Is("rect") {
		found, ok := el.Find(func(e *svg.Element) bool { return e.Is("rect") })
		if !ok {
			return fmt.Errorf("placeholder %q is a <%s> without a rect", el.ID(), el.LocalName())
		}
		rect = found
	}
	parent := rect.Parent()
	if parent == nil {
		return fmt.Errorf("placeholder %q is detached", el.ID())
	}

	img := svg.NewElement("image")
	for _, name := range placeholderAttrs {
		if v, ok := rect.Attr(name); ok {
			img.SetAttr(name, v)
		}
	}
	img.SetAttr("preserveAspectRatio", coverMode)
	setHref(img, href)
	parent.ReplaceChild(rect, img)
	return nil
}

func setHref(el *svg.Element, href string) {
	el.SetAttr("href", href)
	el.SetAttr("xlink:href", href)
}
