package svg

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Rect is an axis-aligned box in document units.
type Rect struct {
	X, Y, Width, Height float64
}

func (r Rect) Right() float64  { return r.X + r.Width }
func (r Rect) Bottom() float64 { return r.Y + r.Height }

// IsEmpty reports whether the rect has no area.
func (r Rect) IsEmpty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Union returns the smallest rect containing both. An empty operand is ignored.
func (r Rect) Union(o Rect) Rect {
	if r.IsEmpty() {
		return o
	}
	if o.IsEmpty() {
		return r
	}
	x := math.Min(r.X, o.X)
	y := math.Min(r.Y, o.Y)
	return Rect{
		X:      x,
		Y:      y,
		Width:  math.Max(r.Right(), o.Right()) - x,
		Height: math.Max(r.Bottom(), o.Bottom()) - y,
	}
}

// Translate offsets the rect.
func (r Rect) Translate(dx, dy float64) Rect {
	return Rect{X: r.X + dx, Y: r.Y + dy, Width: r.Width, Height: r.Height}
}

var (
	numberPattern    = regexp.MustCompile(`[-+]?(?:\d+\.?\d*|\.\d+)(?:[eE][-+]?\d+)?`)
	transformPattern = regexp.MustCompile(`(translate|matrix)\s*\(([^)]*)\)`)
)

// Numbers extracts every numeric literal from s in order.
func Numbers(s string) []float64 {
	matches := numberPattern.FindAllString(s, -1)
	out := make([]float64, 0, len(matches))
	for _, m := range matches {
		if v, err := strconv.ParseFloat(m, 64); err == nil {
			out = append(out, v)
		}
	}
	return out
}

// TranslateOf returns the translation part of a transform attribute. Only
// translate() and the e/f terms of matrix() contribute; rotation and scale
// are treated as identity.
func TranslateOf(transform string) (dx, dy float64) {
	for _, m := range transformPattern.FindAllStringSubmatch(transform, -1) {
		n := Numbers(m[2])
		switch m[1] {
		case "translate":
			if len(n) > 0 {
				dx += n[0]
			}
			if len(n) > 1 {
				dy += n[1]
			}
		case "matrix":
			if len(n) == 6 {
				dx += n[4]
				dy += n[5]
			}
		}
	}
	return dx, dy
}

// PointsBounds is the bbox of a flat x,y,x,y... list. Fewer than two points
// yields false.
func PointsBounds(nums []float64) (Rect, bool) {
	if len(nums) < 4 {
		return Rect{}, false
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for i := 0; i+1 < len(nums); i += 2 {
		minX = math.Min(minX, nums[i])
		maxX = math.Max(maxX, nums[i])
		minY = math.Min(minY, nums[i+1])
		maxY = math.Max(maxY, nums[i+1])
	}
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}, true
}

// PathBounds estimates a path's bbox by reading its numbers as x,y pairs.
// Relative commands and arc flags make this an approximation.
func PathBounds(d string) (Rect, bool) {
	return PointsBounds(Numbers(d))
}

// FormatNumber renders a coordinate with at most three decimals.
func FormatNumber(v float64) string {
	v = math.Round(v*1000) / 1000
	if v == 0 {
		return "0"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Float parses a numeric attribute, ignoring a trailing unit.
func Float(s string) (float64, bool) {
	v, _, ok := ParseLength(s)
	return v, ok
}

// ParseLength splits "12.5mm" into 12.5 and "mm".
func ParseLength(s string) (float64, string, bool) {
	s = strings.TrimSpace(s)
	loc := numberPattern.FindStringIndex(s)
	if loc == nil || loc[0] != 0 {
		return 0, "", false
	}
	v, err := strconv.ParseFloat(s[:loc[1]], 64)
	if err != nil {
		return 0, "", false
	}
	return v, strings.ToLower(strings.TrimSpace(s[loc[1]:])), true
}

// ToMM converts a length with an optional unit to millimetres. Pixels are
// taken at 96 DPI; a bare number is already millimetres.
func ToMM(s string) (float64, bool) {
	v, unit, ok := ParseLength(s)
	if !ok {
		return 0, false
	}
	switch unit {
	case "mm", "":
		return v, true
	case "cm":
		return v * 10, true
	case "in":
		return v * 25.4, true
	case "pt":
		return v * 0.3528, true
	case "pc":
		return v * 0.3528 * 12, true
	case "px":
		return v / 96 * 25.4, true
	default:
		return 0, false
	}
}

// ParseViewBox reads the four numbers of a viewBox attribute.
func ParseViewBox(s string) (Rect, bool) {
	n := Numbers(s)
	if len(n) != 4 || n[2] <= 0 || n[3] <= 0 {
		return Rect{}, false
	}
	return Rect{X: n[0], Y: n[1], Width: n[2], Height: n[3]}, true
}
