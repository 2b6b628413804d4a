package bleed

import (
	"fmt"
	"math"

	"github.com/flanksource/commons/logger"
	"github.com/flanksource/tabloide/svg"
)

const (
	ContentID    = "bleed_content"
	BackgroundID = "bleed_background"
	TrimMarksID  = "trim_marks"
	TrimBoxID    = "trim_box"
)

var log = logger.GetLogger("bleed")

// Size is a width and height pair.
type Size struct {
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

func (s Size) scale(f float64) Size {
	return Size{Width: s.Width * f, Height: s.Height * f}
}

// Dimensions holds the trim, bleed and safe boxes in mm and pt.
type Dimensions struct {
	TrimMM   Size    `json:"trim_mm" yaml:"trim_mm"`
	BleedMM  Size    `json:"bleed_mm" yaml:"bleed_mm"`
	SafeMM   Size    `json:"safe_mm" yaml:"safe_mm"`
	TrimPt   Size    `json:"trim_pt" yaml:"trim_pt"`
	BleedPt  Size    `json:"bleed_pt" yaml:"bleed_pt"`
	SafePt   Size    `json:"safe_pt" yaml:"safe_pt"`
	OffsetPt float64 `json:"offset_pt" yaml:"offset_pt"`
}

// CalculateDimensions derives the bleed and safe boxes from a trim size.
func CalculateDimensions(trimW, trimH float64, cfg Config) Dimensions {
	d := Dimensions{
		TrimMM:   Size{trimW, trimH},
		BleedMM:  Size{trimW + 2*cfg.BleedMM, trimH + 2*cfg.BleedMM},
		SafeMM:   Size{trimW - 2*cfg.SafeZoneMM, trimH - 2*cfg.SafeZoneMM},
		OffsetPt: cfg.BleedMM * MMToPt,
	}
	d.TrimPt = d.TrimMM.scale(MMToPt)
	d.BleedPt = d.BleedMM.scale(MMToPt)
	d.SafePt = d.SafeMM.scale(MMToPt)
	return d
}

// Apply grows the document to the bleed box: the root is resized in points,
// existing content is wrapped in a group shifted by the bleed, the
// background is extended to the edge and crop marks are drawn. Applying to
// a document that already has bleed is a no-op.
func Apply(doc *svg.Document, trimW, trimH float64, cfg Config) (Dimensions, error) {
	if err := cfg.Validate(); err != nil {
		return Dimensions{}, err
	}
	if trimW <= 0 || trimH <= 0 {
		return Dimensions{}, fmt.Errorf("invalid trim size %gx%gmm", trimW, trimH)
	}
	dims := CalculateDimensions(trimW, trimH, cfg)
	if dims.SafeMM.Width <= 0 || dims.SafeMM.Height <= 0 {
		return dims, fmt.Errorf("safe zone of %gmm leaves no printable area in %gx%gmm", cfg.SafeZoneMM, trimW, trimH)
	}

	root := doc.Root
	if _, ok := doc.ByID(ContentID); ok {
		log.Debugf("bleed already applied")
		return dims, nil
	}

	vb, ok := svg.ParseViewBox(root.AttrOr("viewBox", ""))
	if !ok {
		vb = svg.Rect{Width: dims.TrimPt.Width, Height: dims.TrimPt.Height}
	}
	background := cfg.Background
	if background == "" {
		background = detectBackground(root, vb)
	}

	content := svg.NewElement("g").
		SetAttr("id", ContentID).
		SetAttr("transform", contentTransform(dims, vb))
	var kept []svg.Node
	for _, c := range root.Children {
		if el, ok := c.(*svg.Element); ok && stayTopLevel(el) {
			kept = append(kept, c)
			continue
		}
		if el, ok := c.(*svg.Element); ok {
			content.Children = append(content.Children, el)
		}
	}
	root.Children = nil
	for _, c := range kept {
		root.AppendChild(c)
	}
	// re-home the moved elements so their parent pointers follow
	moved := content.Children
	content.Children = nil
	for _, c := range moved {
		content.AppendChild(c)
	}
	root.AppendChild(content)

	root.SetAttr("width", svg.FormatNumber(dims.BleedPt.Width)+"pt")
	root.SetAttr("height", svg.FormatNumber(dims.BleedPt.Height)+"pt")
	root.SetAttr("viewBox", fmt.Sprintf("0 0 %s %s", svg.FormatNumber(dims.BleedPt.Width), svg.FormatNumber(dims.BleedPt.Height)))

	if err := ExtendBackground(doc, background); err != nil {
		return dims, err
	}
	if cfg.ShowBleedBox {
		root.AppendChild(trimBox(dims))
	}
	if cfg.ShowTrimMarks && cfg.BleedMM > 0 {
		root.AppendChild(CropMarks(dims, cfg))
	}

	log.Infof("applied %gmm bleed: %gx%gmm trim, %gx%gmm sheet",
		cfg.BleedMM, trimW, trimH, dims.BleedMM.Width, dims.BleedMM.Height)
	return dims, nil
}

func stayTopLevel(el *svg.Element) bool {
	switch el.LocalName() {
	case "title", "desc", "metadata", "namedview":
		return true
	}
	return false
}

// contentTransform maps the original viewBox onto the trim box, offset by
// the bleed.
func contentTransform(d Dimensions, vb svg.Rect) string {
	b := svg.FormatNumber(d.OffsetPt)
	t := fmt.Sprintf("translate(%s,%s)", b, b)
	sx := d.TrimPt.Width / vb.Width
	sy := d.TrimPt.Height / vb.Height
	if math.Abs(sx-1) > 1e-6 || math.Abs(sy-1) > 1e-6 {
		t += fmt.Sprintf(" scale(%s,%s)", fmt.Sprint(round6(sx)), fmt.Sprint(round6(sy)))
	}
	if vb.X != 0 || vb.Y != 0 {
		t += fmt.Sprintf(" translate(%s,%s)", svg.FormatNumber(-vb.X), svg.FormatNumber(-vb.Y))
	}
	return t
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// detectBackground looks for a filled rect covering the whole viewBox.
func detectBackground(root *svg.Element, vb svg.Rect) string {
	for _, el := range root.Elements() {
		if !el.Is("rect") {
			continue
		}
		x, _ := svg.Float(el.AttrOr("x", "0"))
		y, _ := svg.Float(el.AttrOr("y", "0"))
		w, _ := svg.Float(el.AttrOr("width", "0"))
		h, _ := svg.Float(el.AttrOr("height", "0"))
		if x > vb.X || y > vb.Y || x+w < vb.Right() || y+h < vb.Bottom() {
			continue
		}
		fill, ok := el.Style("fill")
		if !ok {
			fill, ok = el.Attr("fill")
		}
		if ok && fill != "none" && fill != "" {
			return fill
		}
	}
	return "#ffffff"
}

// ExtendBackground places a rect of fill under everything, covering the
// full viewBox. An existing background rect is updated.
func ExtendBackground(doc *svg.Document, fill string) error {
	root := doc.Root
	vb, ok := svg.ParseViewBox(root.AttrOr("viewBox", ""))
	if !ok {
		return fmt.Errorf("cannot extend background without a viewBox")
	}

	bg, ok := doc.ByID(BackgroundID)
	if !ok {
		bg = svg.NewElement("rect").SetAttr("id", BackgroundID)
		insertAt := 0
		for i, c := range root.Children {
			if el, ok := c.(*svg.Element); ok && stayTopLevel(el) {
				insertAt = i + 1
			}
		}
		root.InsertChild(insertAt, bg)
	}
	bg.SetAttr("x", svg.FormatNumber(vb.X)).
		SetAttr("y", svg.FormatNumber(vb.Y)).
		SetAttr("width", svg.FormatNumber(vb.Width)).
		SetAttr("height", svg.FormatNumber(vb.Height)).
		SetAttr("fill", fill)
	return nil
}

// CropMarks draws, at each trim corner, one horizontal and one vertical
// line pointing away from the page. Every mark starts MarkOffsetMM past the
// corner so none of it lies inside the trim box.
func CropMarks(d Dimensions, cfg Config) *svg.Element {
	stroke := cfg.MarkStrokePt
	if stroke <= 0 {
		stroke = 0.25
	}
	g := svg.NewElement("g").
		SetAttr("id", TrimMarksID).
		SetAttr("stroke", "#000000").
		SetAttr("stroke-width", svg.FormatNumber(stroke)).
		SetAttr("fill", "none")

	b := d.OffsetPt
	off := cfg.MarkOffsetMM * MMToPt
	length := cfg.MarkLengthMM * MMToPt
	corners := []struct{ x, y, dx, dy float64 }{
		{b, b, -1, -1},
		{b + d.TrimPt.Width, b, 1, -1},
		{b, b + d.TrimPt.Height, -1, 1},
		{b + d.TrimPt.Width, b + d.TrimPt.Height, 1, 1},
	}
	for _, c := range corners {
		g.AppendChild(line(c.x+c.dx*off, c.y, c.x+c.dx*(off+length), c.y))
		g.AppendChild(line(c.x, c.y+c.dy*off, c.x, c.y+c.dy*(off+length)))
	}
	return g
}

func line(x1, y1, x2, y2 float64) *svg.Element {
	return svg.NewElement("line").
		SetAttr("x1", svg.FormatNumber(x1)).
		SetAttr("y1", svg.FormatNumber(y1)).
		SetAttr("x2", svg.FormatNumber(x2)).
		SetAttr("y2", svg.FormatNumber(y2))
}

func trimBox(d Dimensions) *svg.Element {
	return svg.NewElement("rect").
		SetAttr("id", TrimBoxID).
		SetAttr("x", svg.FormatNumber(d.OffsetPt)).
		SetAttr("y", svg.FormatNumber(d.OffsetPt)).
		SetAttr("width", svg.FormatNumber(d.TrimPt.Width)).
		SetAttr("height", svg.FormatNumber(d.TrimPt.Height)).
		SetAttr("fill", "none").
		SetAttr("stroke", "#ff00ff").
		SetAttr("stroke-width", "0.5").
		SetAttr("stroke-dasharray", "4 2")
}
