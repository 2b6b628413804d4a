package clippath

import (
	"regexp"
	"slices"

	"github.com/flanksource/commons/logger"
	"github.com/flanksource/tabloide/svg"
)

// DefaultMaxPathLength is the length of path data above which a clip
// shape is replaced by its bounding rectangle.
const DefaultMaxPathLength = 1000

var log = logger.GetLogger("clippath")

var urlRef = regexp.MustCompile(`url\(\s*['"]?#([^'")\s]+)['"]?\s*\)`)

// Options for Repair.
type Options struct {
	MaxPathLength int `yaml:"max_path_length,omitempty" json:"max_path_length,omitempty"`
}

// Report counts the repairs made.
type Report struct {
	Fixed        int `json:"fixed" yaml:"fixed"`
	Simplified   int `json:"simplified" yaml:"simplified"`
	RemovedEmpty int `json:"removed_empty" yaml:"removed_empty"`
}

// Total is the number of changes.
func (r Report) Total() int {
	return r.Fixed + r.Simplified + r.RemovedEmpty
}

// Repair removes empty clipPath definitions, replaces overly complex clip
// paths with their bounding rectangle and drops clip-path references that
// point nowhere. Elements other than empty clipPaths are never removed.
// Running it a second time reports no changes.
func Repair(doc *svg.Document, opts Options) Report {
	if opts.MaxPathLength <= 0 {
		opts.MaxPathLength = DefaultMaxPathLength
	}
	var r Report

	// innermost first, so a clip holding only empty clips empties itself
	clips := doc.Root.FindAll(func(e *svg.Element) bool { return e.Is("clipPath") })
	for _, clip := range slices.Backward(clips) {
		if len(clip.Elements()) > 0 {
			r.Simplified += simplify(clip, opts.MaxPathLength)
			continue
		}
		if parent := clip.Parent(); parent != nil {
			log.Debugf("removing empty clipPath %q", clip.ID())
			parent.RemoveChild(clip)
			r.RemovedEmpty++
		}
	}

	ids := doc.Index()
	doc.Root.Walk(func(el *svg.Element) bool {
		if ref, ok := reference(el.AttrOr("clip-path", "")); ok {
			if _, exists := ids[ref]; !exists {
				log.Debugf("dropping dangling clip-path #%s on %q", ref, el.ID())
				el.RemoveAttr("clip-path")
				r.Fixed++
			}
		}
		if v, ok := el.Style("clip-path"); ok {
			if ref, ok := reference(v); ok {
				if _, exists := ids[ref]; !exists {
					log.Debugf("dropping dangling clip-path style #%s on %q", ref, el.ID())
					el.RemoveStyle("clip-path")
					r.Fixed++
				}
			}
		}
		return true
	})

	if r.Total() > 0 {
		log.Infof("clip paths: %d dangling references fixed, %d simplified, %d empty removed",
			r.Fixed, r.Simplified, r.RemovedEmpty)
	}
	return r
}

func reference(value string) (string, bool) {
	m := urlRef.FindStringSubmatch(value)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// simplify swaps long paths inside clip for rects covering the same
// approximate area. The bbox comes from the path's numbers read as x,y
// pairs, so curves with control points outside the shape grow the box.
func simplify(clip *svg.Element, max int) int {
	n := 0
	paths := clip.FindAll(func(e *svg.Element) bool { return e.Is("path") })
	for _, path := range paths {
		d := path.AttrOr("d", "")
		if len(d) <= max {
			continue
		}
		bounds, ok := svg.PathBounds(d)
		if !ok {
			continue
		}
		rect := svg.NewElement("rect")
		for _, name := range []string{"id", "transform", "clip-rule", "class"} {
			if v, ok := path.Attr(name); ok {
				rect.SetAttr(name, v)
			}
		}
		rect.SetAttr("x", svg.FormatNumber(bounds.X)).
			SetAttr("y", svg.FormatNumber(bounds.Y)).
			SetAttr("width", svg.FormatNumber(bounds.Width)).
			SetAttr("height", svg.FormatNumber(bounds.Height))
		if path.Parent().ReplaceChild(path, rect) {
			n++
		}
	}
	return n
}
