package dpi

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Status of a resolution check.
type Status string

const (
	StatusOK      Status = "OK"
	StatusWarning Status = "WARNING"
	StatusError   Status = "ERROR"
)

// Mode decides how an image below the minimum resolution is treated.
type Mode string

const (
	ModeWarn  Mode = "warn"
	ModeBlock Mode = "block"
)

const (
	Minimum     = 150.0
	Recommended = 300.0
	MaxUpscale  = 4.0
	mmPerInch   = 25.4
)

// Result of checking one image against one slot.
type Result struct {
	Status       Status  `json:"status" yaml:"status"`
	EffectiveDPI float64 `json:"effective_dpi" yaml:"effective_dpi"`
	DPIX         float64 `json:"dpi_x" yaml:"dpi_x"`
	DPIY         float64 `json:"dpi_y" yaml:"dpi_y"`
	RequiredDPI  float64 `json:"required_dpi" yaml:"required_dpi"`
	WidthPx      int     `json:"width_px" yaml:"width_px"`
	HeightPx     int     `json:"height_px" yaml:"height_px"`
	WidthMM      float64 `json:"width_mm" yaml:"width_mm"`
	HeightMM     float64 `json:"height_mm" yaml:"height_mm"`
	Message      string  `json:"message" yaml:"message"`
}

// Validator holds the thresholds. The zero value is not usable, use New.
type Validator struct {
	Minimum     float64
	Recommended float64
	Mode        Mode
}

// New returns a validator with print-shop thresholds.
func New(mode Mode) Validator {
	if mode == "" {
		mode = ModeWarn
	}
	return Validator{Minimum: Minimum, Recommended: Recommended, Mode: mode}
}

// Check computes the effective resolution of a wpx×hpx image printed at
// wmm×hmm using the default thresholds.
func Check(wpx, hpx int, wmm, hmm float64, mode Mode) Result {
	return New(mode).Check(wpx, hpx, wmm, hmm)
}

func axisDPI(px int, mm float64) float64 {
	if mm <= 0 {
		return 0
	}
	return float64(px) / (mm / mmPerInch)
}

// Check classifies the effective resolution, the smaller of the two axes.
func (v Validator) Check(wpx, hpx int, wmm, hmm float64) Result {
	r := Result{
		DPIX:        axisDPI(wpx, wmm),
		DPIY:        axisDPI(hpx, hmm),
		RequiredDPI: v.Recommended,
		WidthPx:     wpx,
		HeightPx:    hpx,
		WidthMM:     wmm,
		HeightMM:    hmm,
	}
	r.EffectiveDPI = math.Min(r.DPIX, r.DPIY)

	switch {
	case wmm <= 0 || hmm <= 0:
		r.Status = v.belowMinimum()
		r.Message = "slot has no physical size"
	case r.EffectiveDPI >= v.Recommended:
		r.Status = StatusOK
		r.Message = fmt.Sprintf("%.0f DPI", r.EffectiveDPI)
	case r.EffectiveDPI >= v.Minimum:
		r.Status = StatusWarning
		r.Message = fmt.Sprintf("%.0f DPI is below the recommended %.0f", r.EffectiveDPI, v.Recommended)
	default:
		r.Status = v.belowMinimum()
		r.Message = fmt.Sprintf("%.0f DPI is below the minimum %.0f, print will be visibly pixelated", r.EffectiveDPI, v.Minimum)
	}
	return r
}

func (v Validator) belowMinimum() Status {
	if v.Mode == ModeBlock {
		return StatusError
	}
	return StatusWarning
}

// Item is one image/slot pair for batch validation.
type Item struct {
	Key      string
	WidthPx  int
	HeightPx int
	WidthMM  float64
	HeightMM float64
}

// ValidateBatch checks every item, keyed by Item.Key.
func (v Validator) ValidateBatch(items []Item) map[string]Result {
	out := make(map[string]Result, len(items))
	for _, it := range items {
		out[it.Key] = v.Check(it.WidthPx, it.HeightPx, it.WidthMM, it.HeightMM)
	}
	return out
}

// UpscaleRefusedError is returned when reaching the target resolution
// would need more than MaxUpscale.
type UpscaleRefusedError struct {
	Factor float64
	Max    float64
}

func (e *UpscaleRefusedError) Error() string {
	return fmt.Sprintf("upscale factor %.2f exceeds the maximum of %.0fx", e.Factor, e.Max)
}

// UpscaleFactor is target/current. Factors above MaxUpscale are returned
// together with an *UpscaleRefusedError and must not be applied.
func UpscaleFactor(current, target float64) (float64, error) {
	if current <= 0 {
		return 0, fmt.Errorf("current resolution must be positive, got %g", current)
	}
	factor := target / current
	if factor > MaxUpscale {
		return factor, &UpscaleRefusedError{Factor: factor, Max: MaxUpscale}
	}
	return factor, nil
}

// SizeForDPI is the largest physical size a wpx×hpx image can be printed
// at while keeping dpi.
func SizeForDPI(wpx, hpx int, dpi float64) (float64, float64) {
	if dpi <= 0 {
		return 0, 0
	}
	return float64(wpx) / dpi * mmPerInch, float64(hpx) / dpi * mmPerInch
}

// PixelsForSize is the pixel size needed to print wmm×hmm at dpi.
func PixelsForSize(wmm, hmm, dpi float64) (int, int) {
	return int(math.Ceil(wmm / mmPerInch * dpi)), int(math.Ceil(hmm / mmPerInch * dpi))
}

// ReadImageSize reads the pixel dimensions from the image header. PNG,
// JPEG, GIF, BMP, TIFF and WEBP are understood.
func ReadImageSize(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read image header of %s: %w", path, err)
	}
	return cfg.Width, cfg.Height, nil
}
