package render

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

type ColorModel string

const (
	ColorCMYK ColorModel = "cmyk"
	ColorRGB  ColorModel = "rgb"
)

type Format string

const (
	FormatPDF Format = "pdf"
	FormatPNG Format = "png"
)

const DefaultTimeout = 120 * time.Second

var pdfVersions = []string{"1.3", "1.4", "1.5", "1.6", "1.7"}

// Settings controls how a composed document is turned into an output file.
type Settings struct {
	Format         Format     `yaml:"format" json:"format"`
	DPI            int        `yaml:"dpi" json:"dpi"`
	ColorModel     ColorModel `yaml:"color_model" json:"color_model"`
	PDFVersion     string     `yaml:"pdf_version" json:"pdf_version"`
	EmbedFonts     bool       `yaml:"embed_fonts" json:"embed_fonts"`
	SubsetFonts    bool       `yaml:"subset_fonts" json:"subset_fonts"`
	CompressImages bool       `yaml:"compress_images" json:"compress_images"`
	JPEGQuality    int        `yaml:"jpeg_quality" json:"jpeg_quality"`
	ICCProfile     string     `yaml:"icc_profile,omitempty" json:"icc_profile,omitempty"`
	Overprint      bool       `yaml:"overprint" json:"overprint"`
	// Bleed and CropMarks switch the bleed stage and its marks for this
	// job. BleedMM, when set, replaces the configured bleed width.
	Bleed     bool          `yaml:"bleed" json:"bleed"`
	BleedMM   float64       `yaml:"bleed_mm,omitempty" json:"bleed_mm,omitempty"`
	CropMarks bool          `yaml:"crop_marks" json:"crop_marks"`
	Timeout   time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// DefaultSettings is a press-ready CMYK PDF at 300 DPI.
func DefaultSettings() Settings {
	return Settings{
		Format:         FormatPDF,
		DPI:            300,
		ColorModel:     ColorCMYK,
		PDFVersion:     "1.4",
		EmbedFonts:     true,
		SubsetFonts:    true,
		CompressImages: true,
		JPEGQuality:    95,
		Bleed:          true,
		CropMarks:      true,
		Timeout:        DefaultTimeout,
	}
}

// Validate reports every invalid field.
func (s Settings) Validate() error {
	var errs []error
	switch s.Format {
	case FormatPDF, FormatPNG:
	default:
		errs = append(errs, fmt.Errorf("unsupported output format %q", s.Format))
	}
	if s.DPI < 72 || s.DPI > 2400 {
		errs = append(errs, fmt.Errorf("dpi must be between 72 and 2400, got %d", s.DPI))
	}
	switch s.ColorModel {
	case ColorCMYK, ColorRGB:
	default:
		errs = append(errs, fmt.Errorf("unsupported color model %q", s.ColorModel))
	}
	if s.Format == FormatPDF && !slices.Contains(pdfVersions, s.PDFVersion) {
		errs = append(errs, fmt.Errorf("unsupported pdf version %q, expected one of %s", s.PDFVersion, strings.Join(pdfVersions, ", ")))
	}
	if s.CompressImages && (s.JPEGQuality < 1 || s.JPEGQuality > 100) {
		errs = append(errs, fmt.Errorf("jpeg quality must be between 1 and 100, got %d", s.JPEGQuality))
	}
	if s.BleedMM < 0 {
		errs = append(errs, fmt.Errorf("bleed must not be negative, got %gmm", s.BleedMM))
	}
	return errors.Join(errs...)
}

func (s Settings) timeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return DefaultTimeout
}
