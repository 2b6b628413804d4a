package render

import (
	"errors"
	"fmt"
	"image/png"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ErrNoOutput is returned when a tool reports success but leaves no usable
// file behind.
var ErrNoOutput = errors.New("render produced no output")

// Output describes a verified render result.
type Output struct {
	Path  string `json:"path" yaml:"path"`
	Size  int64  `json:"size" yaml:"size"`
	Pages int    `json:"pages,omitempty" yaml:"pages,omitempty"`
}

// Verify checks that an output file exists, is not empty and can be read
// back in its format.
func Verify(path string, format Format) (Output, error) {
	out := Output{Path: path}
	st, err := os.Stat(path)
	if err != nil {
		return out, fmt.Errorf("%w: %w", ErrNoOutput, err)
	}
	if st.Size() == 0 {
		return out, fmt.Errorf("%w: %s is empty", ErrNoOutput, path)
	}
	out.Size = st.Size()

	f, err := os.Open(path)
	if err != nil {
		return out, err
	}
	defer f.Close()

	switch format {
	case FormatPDF:
		ctx, err := api.ReadContext(f, model.NewDefaultConfiguration())
		if err != nil {
			return out, fmt.Errorf("output %s is not a valid PDF: %w", path, err)
		}
		out.Pages = ctx.PageCount
	case FormatPNG:
		if _, err := png.DecodeConfig(f); err != nil {
			return out, fmt.Errorf("output %s is not a valid PNG: %w", path, err)
		}
		out.Pages = 1
	}
	return out, nil
}
