package svg

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// ParseError is returned for input that is not well-formed XML.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("malformed svg at line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("malformed svg: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// internal general entities with a literal value, e.g. the namespace
// shorthands Illustrator writes into its DOCTYPE. SYSTEM and PUBLIC entities
// never match and so are never resolved.
var entityDecl = regexp.MustCompile(`<!ENTITY\s+([A-Za-z_][\w.\-]*)\s+(?:"([^"<&%]*)"|'([^'<&%]*)')\s*>`)

// Parse reads an SVG document. External entities are never resolved and
// nothing is fetched over the network. Comments and processing
// instructions are dropped.
func Parse(r io.Reader) (*Document, error) {
	d := xml.NewDecoder(r)
	d.Strict = true
	entities := map[string]string{}
	for k, v := range xml.HTMLEntity {
		entities[k] = v
	}
	d.Entity = entities

	var root *Element
	var stack []*Element

	for {
		tok, err := d.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			line, _ := d.InputPos()
			return nil, &ParseError{Line: line, Err: err}
		}

		switch t := tok.(type) {
		case xml.StartElement:
			el := &Element{Tag: qualified(t.Name)}
			for _, a := range t.Attr {
				el.Attrs = append(el.Attrs, Attr{Name: qualified(a.Name), Value: a.Value})
			}
			if len(stack) == 0 {
				if root != nil {
					line, _ := d.InputPos()
					return nil, &ParseError{Line: line, Err: errors.New("multiple root elements")}
				}
				root = el
			} else {
				stack[len(stack)-1].AppendChild(el)
			}
			stack = append(stack, el)

		case xml.EndElement:
			name := qualified(t.Name)
			if len(stack) == 0 || stack[len(stack)-1].Tag != name {
				line, _ := d.InputPos()
				return nil, &ParseError{Line: line, Err: fmt.Errorf("unexpected end element </%s>", name)}
			}
			stack = stack[:len(stack)-1]

		case xml.CharData:
			if len(stack) == 0 {
				continue
			}
			stack[len(stack)-1].AppendChild(&Text{Data: string(t)})

		case xml.Directive:
			if bytes.HasPrefix(bytes.TrimSpace(t), []byte("DOCTYPE")) {
				for _, m := range entityDecl.FindAllSubmatch(t, -1) {
					entities[string(m[1])] = string(m[2]) + string(m[3])
				}
			}
		}
	}

	if root == nil {
		return nil, &ParseError{Err: errors.New("no root element")}
	}
	if len(stack) > 0 {
		return nil, &ParseError{Err: fmt.Errorf("unclosed element <%s>", stack[len(stack)-1].Tag)}
	}
	if root.LocalName() != "svg" {
		return nil, &ParseError{Err: fmt.Errorf("root element is <%s>, expected <svg>", root.Tag)}
	}
	return &Document{Root: root}, nil
}

// ParseBytes parses an in-memory document.
func ParseBytes(b []byte) (*Document, error) {
	return Parse(bytes.NewReader(b))
}

// ParseString parses an in-memory document.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

func qualified(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}
