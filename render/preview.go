package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"

	"github.com/flanksource/tabloide/svg"
)

// MaxPreviewPixels caps the longer side of a preview.
const MaxPreviewPixels = 6000

// PreviewSize computes the pixel size of a document at dpi from its
// physical width and height.
func PreviewSize(doc *svg.Document, dpi int) (int, int, error) {
	wmm, okw := svg.ToMM(doc.Root.AttrOr("width", ""))
	hmm, okh := svg.ToMM(doc.Root.AttrOr("height", ""))
	if !okw || !okh || wmm <= 0 || hmm <= 0 {
		vb, ok := svg.ParseViewBox(doc.Root.AttrOr("viewBox", ""))
		if !ok {
			return 0, 0, fmt.Errorf("document has neither a physical size nor a viewBox")
		}
		// treat user units as CSS pixels
		wmm, hmm = vb.Width*25.4/96, vb.Height*25.4/96
	}
	w := int(math.Round(wmm / 25.4 * float64(dpi)))
	h := int(math.Round(hmm / 25.4 * float64(dpi)))
	if long := max(w, h); long > MaxPreviewPixels {
		scale := float64(MaxPreviewPixels) / float64(long)
		w, h = int(float64(w)*scale), int(float64(h)*scale)
	}
	return max(w, 1), max(h, 1), nil
}

// Preview rasterizes an SVG in process. Text and embedded images are not
// drawn; previews show layout, marks and vector artwork.
func Preview(ctx context.Context, input, output string, dpi int) error {
	content, err := os.ReadFile(input)
	if err != nil {
		return err
	}
	b, err := PreviewBytes(ctx, content, dpi)
	if err != nil {
		return err
	}
	return os.WriteFile(output, b, 0644)
}

// PreviewBytes renders SVG bytes to PNG bytes.
func PreviewBytes(ctx context.Context, content []byte, dpi int) ([]byte, error) {
	doc, err := svg.ParseBytes(content)
	if err != nil {
		return nil, err
	}
	w, h, err := PreviewSize(doc, dpi)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	icon, err := oksvg.ReadIconStream(bytes.NewReader(content), oksvg.IgnoreErrorMode)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SVG: %w", err)
	}
	icon.SetTarget(0, 0, float64(w), float64(h))

	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(rgba, rgba.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	scanner := rasterx.NewScannerGV(w, h, rgba, rgba.Bounds())
	raster := rasterx.NewDasher(w, h, scanner)
	icon.Draw(raster, 1.0)

	var buf bytes.Buffer
	if err := png.Encode(&buf, rgba); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}
