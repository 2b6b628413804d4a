package trace

import (
	"bytes"
	"fmt"
	"strings"

	svgo "github.com/ajstarks/svgo"
	"github.com/flanksource/tabloide/svg"
	"github.com/yeqown/go-qrcode/v2"
)

const quietZone = 2

// matrixWriter captures the module matrix instead of drawing an image.
type matrixWriter struct {
	mat qrcode.Matrix
	set bool
}

func (w *matrixWriter) Write(mat qrcode.Matrix) error {
	w.mat = mat
	w.set = true
	return nil
}

func (w *matrixWriter) Close() error { return nil }

// qrMarkup encodes payload as a standalone SVG with one unit per module.
func qrMarkup(payload string) ([]byte, int, error) {
	qrc, err := qrcode.New(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to encode qr code: %w", err)
	}
	w := &matrixWriter{}
	if err := qrc.Save(w); err != nil {
		return nil, 0, fmt.Errorf("failed to build qr matrix: %w", err)
	}
	if !w.set {
		return nil, 0, fmt.Errorf("qr encoder produced no matrix")
	}

	var d strings.Builder
	w.mat.Iterate(qrcode.IterDirection_ROW, func(x, y int, v qrcode.QRValue) {
		if v.IsSet() {
			fmt.Fprintf(&d, "M%d %dh1v1h-1z", x+quietZone, y+quietZone)
		}
	})

	size := w.mat.Width() + 2*quietZone
	var buf bytes.Buffer
	canvas := svgo.New(&buf)
	canvas.Startview(size, size, 0, 0, size, size)
	canvas.Rect(0, 0, size, size, "fill:#ffffff")
	canvas.Path(d.String(), "fill:#000000")
	canvas.End()
	return buf.Bytes(), size, nil
}

// qrGroup returns the QR code as a group scaled to size user units.
func qrGroup(payload string, size float64) (*svg.Element, error) {
	markup, modules, err := qrMarkup(payload)
	if err != nil {
		return nil, err
	}
	doc, err := svg.ParseBytes(markup)
	if err != nil {
		return nil, fmt.Errorf("failed to read generated qr code: %w", err)
	}
	g := svg.NewElement("g").
		SetAttr("id", QRID).
		SetAttr("transform", fmt.Sprintf("scale(%s)", svg.FormatNumber(size/float64(modules))))
	for _, el := range doc.Root.Elements() {
		doc.Root.RemoveChild(el)
		g.AppendChild(el)
	}
	return g, nil
}
