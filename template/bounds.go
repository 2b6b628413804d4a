package template

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/flanksource/tabloide/svg"
)

const defaultFontSize = 12.0

// containers that never paint directly
var nonRendering = map[string]bool{
	"defs": true, "clipPath": true, "mask": true, "pattern": true, "marker": true,
	"symbol": true, "linearGradient": true, "radialGradient": true, "filter": true,
	"title": true, "desc": true, "metadata": true, "style": true, "script": true,
}

// DocumentBounds returns the bounds of el in root coordinates, applying the
// translation of el and every ancestor.
func DocumentBounds(el *svg.Element) svg.Rect {
	r := localBounds(el)
	for p := el.Parent(); p != nil; p = p.Parent() {
		r = r.Translate(svg.TranslateOf(p.AttrOr("transform", "")))
	}
	return r
}

// localBounds is the bbox in the coordinate system of el's parent.
func localBounds(el *svg.Element) svg.Rect {
	var r svg.Rect
	num := func(name string) float64 {
		v, _ := svg.Float(el.AttrOr(name, "0"))
		return v
	}

	switch el.LocalName() {
	case "rect", "image", "use", "foreignObject", "svg":
		r = svg.Rect{X: num("x"), Y: num("y"), Width: num("width"), Height: num("height")}
		if el.LocalName() == "svg" || el.LocalName() == "use" {
			r = r.Union(childrenBounds(el).Translate(r.X, r.Y))
		}
	case "circle":
		rad := num("r")
		r = svg.Rect{X: num("cx") - rad, Y: num("cy") - rad, Width: 2 * rad, Height: 2 * rad}
	case "ellipse":
		rx, ry := num("rx"), num("ry")
		r = svg.Rect{X: num("cx") - rx, Y: num("cy") - ry, Width: 2 * rx, Height: 2 * ry}
	case "line":
		r, _ = svg.PointsBounds([]float64{num("x1"), num("y1"), num("x2"), num("y2")})
	case "polygon", "polyline":
		r, _ = svg.PointsBounds(svg.Numbers(el.AttrOr("points", "")))
	case "path":
		r, _ = svg.PathBounds(el.AttrOr("d", ""))
	case "text":
		r = textBounds(el)
	default:
		if nonRendering[el.LocalName()] {
			return svg.Rect{}
		}
		r = childrenBounds(el)
	}

	return r.Translate(svg.TranslateOf(el.AttrOr("transform", "")))
}

func childrenBounds(el *svg.Element) svg.Rect {
	var r svg.Rect
	for _, c := range el.Elements() {
		r = r.Union(localBounds(c))
	}
	return r
}

// textBounds estimates the box from the anchor position, font size and
// character count. Glyph metrics are not available.
func textBounds(el *svg.Element) svg.Rect {
	x, hasX := firstNumber(el.AttrOr("x", ""))
	y, hasY := firstNumber(el.AttrOr("y", ""))
	if tspan, ok := el.FirstChild("tspan"); ok {
		if !hasX {
			x, _ = firstNumber(tspan.AttrOr("x", ""))
		}
		if !hasY {
			y, _ = firstNumber(tspan.AttrOr("y", ""))
		}
	}

	fs := fontSize(el)
	chars := utf8.RuneCountInString(strings.TrimSpace(el.Text()))
	width := math.Max(float64(chars)*fs*0.6, fs)

	anchor, ok := el.Style("text-anchor")
	if !ok {
		anchor = el.AttrOr("text-anchor", "start")
	}
	switch anchor {
	case "middle":
		x -= width / 2
	case "end":
		x -= width
	}
	return svg.Rect{X: x, Y: y - fs, Width: width, Height: fs * 1.2}
}

func fontSize(el *svg.Element) float64 {
	for e := el; e != nil; e = e.Parent() {
		v, ok := e.Style("font-size")
		if !ok {
			v, ok = e.Attr("font-size")
		}
		if ok {
			if fs, ok := svg.Float(v); ok && fs > 0 {
				return fs
			}
		}
	}
	return defaultFontSize
}

func firstNumber(s string) (float64, bool) {
	n := svg.Numbers(s)
	if len(n) == 0 {
		return 0, false
	}
	return n[0], true
}
