package svg

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

const header = `<?xml version="1.0" encoding="UTF-8" standalone="no"?>` + "\n"

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;",
		"\n", "&#xA;", "\r", "&#xD;", "\t", "&#x9;")
)

// WriteTo serializes the document with an XML declaration.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: bufio.NewWriter(w)}
	cw.WriteString(header)
	writeElement(cw, d.Root)
	if cw.err != nil {
		return cw.n, cw.err
	}
	return cw.n, cw.w.Flush()
}

// Bytes serializes the document.
func (d *Document) Bytes() []byte {
	var buf bytes.Buffer
	_, _ = d.WriteTo(&buf)
	return buf.Bytes()
}

func (d *Document) String() string {
	return string(d.Bytes())
}

// Markup serializes a single element without an XML declaration.
func (e *Element) Markup() string {
	var buf bytes.Buffer
	cw := &countingWriter{w: bufio.NewWriter(&buf)}
	writeElement(cw, e)
	_ = cw.w.Flush()
	return buf.String()
}

func writeElement(w *countingWriter, e *Element) {
	w.WriteString("<")
	w.WriteString(e.Tag)
	for _, a := range e.Attrs {
		w.WriteString(" ")
		w.WriteString(a.Name)
		w.WriteString(`="`)
		w.WriteString(attrEscaper.Replace(a.Value))
		w.WriteString(`"`)
	}
	if len(e.Children) == 0 {
		w.WriteString("/>")
		return
	}
	w.WriteString(">")
	for _, c := range e.Children {
		switch n := c.(type) {
		case *Text:
			w.WriteString(textEscaper.Replace(n.Data))
		case *Element:
			writeElement(w, n)
		}
	}
	w.WriteString("</")
	w.WriteString(e.Tag)
	w.WriteString(">")
}

type countingWriter struct {
	w   *bufio.Writer
	n   int64
	err error
}

func (c *countingWriter) WriteString(s string) {
	if c.err != nil {
		return
	}
	n, err := c.w.WriteString(s)
	c.n += int64(n)
	c.err = err
}
