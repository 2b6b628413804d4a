package svg

import (
	"strings"
)

// Node is either an *Element or a *Text.
type Node interface {
	clone(parent *Element) Node
}

// Text is character data inside an element.
type Text struct {
	Data string
}

func (t *Text) clone(_ *Element) Node {
	return &Text{Data: t.Data}
}

// Attr is a single attribute. Name keeps its prefix, e.g. "xlink:href".
type Attr struct {
	Name  string
	Value string
}

// Element is a tag in the document tree. Attribute order is preserved so
// that a parse/serialize cycle keeps the authoring tool's layout.
type Element struct {
	Tag      string
	Attrs    []Attr
	Children []Node
	parent   *Element
}

// NewElement creates a detached element.
func NewElement(tag string) *Element {
	return &Element{Tag: tag}
}

func (e *Element) clone(parent *Element) Node {
	c := &Element{
		Tag:    e.Tag,
		Attrs:  append([]Attr(nil), e.Attrs...),
		parent: parent,
	}
	if len(e.Children) > 0 {
		c.Children = make([]Node, len(e.Children))
		for i, child := range e.Children {
			c.Children[i] = child.clone(c)
		}
	}
	return c
}

// Clone returns a deep copy of the element, detached from any parent.
func (e *Element) Clone() *Element {
	return e.clone(nil).(*Element)
}

// Parent returns the enclosing element, nil for the root or a detached element.
func (e *Element) Parent() *Element {
	return e.parent
}

// LocalName is the tag without its namespace prefix.
func (e *Element) LocalName() string {
	return localName(e.Tag)
}

func localName(name string) string {
	if i := strings.IndexByte(name, ':'); i >= 0 {
		return name[i+1:]
	}
	return name
}

// Is reports whether the element's local name matches tag.
func (e *Element) Is(tag string) bool {
	return e.LocalName() == tag
}

// Attr returns the value of the named attribute.
func (e *Element) Attr(name string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// AttrOr returns the attribute value or def when it is absent.
func (e *Element) AttrOr(name, def string) string {
	if v, ok := e.Attr(name); ok {
		return v
	}
	return def
}

// SetAttr sets or appends an attribute and returns the element for chaining.
func (e *Element) SetAttr(name, value string) *Element {
	for i := range e.Attrs {
		if e.Attrs[i].Name == name {
			e.Attrs[i].Value = value
			return e
		}
	}
	e.Attrs = append(e.Attrs, Attr{Name: name, Value: value})
	return e
}

// RemoveAttr deletes the attribute and reports whether it was present.
func (e *Element) RemoveAttr(name string) bool {
	for i, a := range e.Attrs {
		if a.Name == name {
			e.Attrs = append(e.Attrs[:i], e.Attrs[i+1:]...)
			return true
		}
	}
	return false
}

// ID returns the id attribute, or "" when there is none.
func (e *Element) ID() string {
	return e.AttrOr("id", "")
}

// Elements returns the direct child elements.
func (e *Element) Elements() []*Element {
	var out []*Element
	for _, c := range e.Children {
		if el, ok := c.(*Element); ok {
			out = append(out, el)
		}
	}
	return out
}

// FirstChild returns the first direct child element with the given local name.
func (e *Element) FirstChild(tag string) (*Element, bool) {
	for _, c := range e.Children {
		if el, ok := c.(*Element); ok && el.Is(tag) {
			return el, true
		}
	}
	return nil, false
}

// AppendChild adds n as the last child.
func (e *Element) AppendChild(n Node) {
	e.InsertChild(len(e.Children), n)
}

// InsertChild inserts n at index i, clamped to the valid range.
func (e *Element) InsertChild(i int, n Node) {
	if i < 0 {
		i = 0
	}
	if i > len(e.Children) {
		i = len(e.Children)
	}
	detach(n)
	if el, ok := n.(*Element); ok {
		el.parent = e
	}
	e.Children = append(e.Children, nil)
	copy(e.Children[i+1:], e.Children[i:])
	e.Children[i] = n
}

// IndexOf returns the position of n among the children, or -1.
func (e *Element) IndexOf(n Node) int {
	for i, c := range e.Children {
		if c == n {
			return i
		}
	}
	return -1
}

// RemoveChild removes n and reports whether it was a child.
func (e *Element) RemoveChild(n Node) bool {
	i := e.IndexOf(n)
	if i < 0 {
		return false
	}
	e.Children = append(e.Children[:i], e.Children[i+1:]...)
	if el, ok := n.(*Element); ok {
		el.parent = nil
	}
	return true
}

// ReplaceChild puts n at the position of old.
func (e *Element) ReplaceChild(old, n Node) bool {
	i := e.IndexOf(old)
	if i < 0 {
		return false
	}
	e.RemoveChild(old)
	e.InsertChild(i, n)
	return true
}

func detach(n Node) {
	if el, ok := n.(*Element); ok && el.parent != nil {
		el.parent.RemoveChild(el)
	}
}

// Text returns the concatenated character data of the element and its descendants.
func (e *Element) Text() string {
	var sb strings.Builder
	var walk func(*Element)
	walk = func(el *Element) {
		for _, c := range el.Children {
			switch n := c.(type) {
			case *Text:
				sb.WriteString(n.Data)
			case *Element:
				walk(n)
			}
		}
	}
	walk(e)
	return sb.String()
}

// SetText replaces the element's own character data with s. Child elements
// are left in place.
func (e *Element) SetText(s string) {
	set := false
	kept := e.Children[:0]
	for _, c := range e.Children {
		if t, ok := c.(*Text); ok {
			if set {
				continue
			}
			t.Data = s
			set = true
		}
		kept = append(kept, c)
	}
	e.Children = kept
	if !set {
		e.Children = append(e.Children, &Text{Data: s})
	}
}

// Walk visits the element and its descendants depth first in document
// order. Returning false from fn skips the element's descendants.
func (e *Element) Walk(fn func(*Element) bool) {
	if !fn(e) {
		return
	}
	for _, c := range e.Children {
		if el, ok := c.(*Element); ok {
			el.Walk(fn)
		}
	}
}

// Find returns the first descendant-or-self element accepted by fn.
func (e *Element) Find(fn func(*Element) bool) (*Element, bool) {
	var found *Element
	e.Walk(func(el *Element) bool {
		if found != nil {
			return false
		}
		if fn(el) {
			found = el
			return false
		}
		return true
	})
	return found, found != nil
}

// FindAll returns every descendant-or-self element accepted by fn.
func (e *Element) FindAll(fn func(*Element) bool) []*Element {
	var out []*Element
	e.Walk(func(el *Element) bool {
		if fn(el) {
			out = append(out, el)
		}
		return true
	})
	return out
}

// Style returns a property from the inline style attribute.
func (e *Element) Style(prop string) (string, bool) {
	for _, decl := range splitStyle(e.AttrOr("style", "")) {
		if decl[0] == prop {
			return decl[1], true
		}
	}
	return "", false
}

// SetStyle sets a property in the inline style attribute.
func (e *Element) SetStyle(prop, value string) {
	decls := splitStyle(e.AttrOr("style", ""))
	found := false
	for i := range decls {
		if decls[i][0] == prop {
			decls[i][1] = value
			found = true
		}
	}
	if !found {
		decls = append(decls, [2]string{prop, value})
	}
	e.SetAttr("style", joinStyle(decls))
}

// RemoveStyle deletes a property from the inline style attribute and
// reports whether it was set.
func (e *Element) RemoveStyle(prop string) bool {
	decls := splitStyle(e.AttrOr("style", ""))
	kept := decls[:0]
	for _, d := range decls {
		if d[0] != prop {
			kept = append(kept, d)
		}
	}
	if len(kept) == len(decls) {
		return false
	}
	if len(kept) == 0 {
		e.RemoveAttr("style")
	} else {
		e.SetAttr("style", joinStyle(kept))
	}
	return true
}

func splitStyle(style string) [][2]string {
	var out [][2]string
	for _, part := range strings.Split(style, ";") {
		k, v, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		out = append(out, [2]string{k, strings.TrimSpace(v)})
	}
	return out
}

func joinStyle(decls [][2]string) string {
	parts := make([]string, len(decls))
	for i, d := range decls {
		parts[i] = d[0] + ":" + d[1]
	}
	return strings.Join(parts, ";")
}

// Document owns a parsed tree.
type Document struct {
	Root *Element
}

// Clone deep copies the document.
func (d *Document) Clone() *Document {
	return &Document{Root: d.Root.Clone()}
}

// Index maps every id in the document to its element. The first element
// wins when an id is duplicated.
func (d *Document) Index() map[string]*Element {
	index := map[string]*Element{}
	d.Root.Walk(func(el *Element) bool {
		if id := el.ID(); id != "" {
			if _, ok := index[id]; !ok {
				index[id] = el
			}
		}
		return true
	})
	return index
}

// ByID finds an element by id.
func (d *Document) ByID(id string) (*Element, bool) {
	if id == "" {
		return nil, false
	}
	return d.Root.Find(func(el *Element) bool { return el.ID() == id })
}
