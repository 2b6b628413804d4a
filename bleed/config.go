package bleed

import (
	"errors"
	"fmt"
	"sort"
)

// MMToPt converts millimetres to PostScript points.
const MMToPt = 2.83465

// Config describes the print margins around the trim box.
type Config struct {
	BleedMM       float64 `yaml:"bleed_mm" json:"bleed_mm"`
	SafeZoneMM    float64 `yaml:"safe_zone_mm" json:"safe_zone_mm"`
	ShowTrimMarks bool    `yaml:"show_trim_marks" json:"show_trim_marks"`
	// ShowBleedBox outlines the trim box, for proofs only.
	ShowBleedBox bool    `yaml:"show_bleed_box" json:"show_bleed_box"`
	MarkLengthMM float64 `yaml:"mark_length_mm" json:"mark_length_mm"`
	MarkOffsetMM float64 `yaml:"mark_offset_mm" json:"mark_offset_mm"`
	MarkStrokePt float64 `yaml:"mark_stroke_pt,omitempty" json:"mark_stroke_pt,omitempty"`
	// Background fills the bleed area. Empty means detect it from a
	// full-page rect in the template, falling back to white.
	Background string `yaml:"background,omitempty" json:"background,omitempty"`
}

// DefaultConfig is the standard 3mm bleed with trim marks.
func DefaultConfig() Config {
	return Config{
		BleedMM:       3,
		SafeZoneMM:    5,
		ShowTrimMarks: true,
		MarkLengthMM:  2,
		MarkOffsetMM:  1,
		MarkStrokePt:  0.25,
	}
}

var presets = map[string]Config{
	"standard": DefaultConfig(),
	"wide": func() Config {
		c := DefaultConfig()
		c.BleedMM, c.SafeZoneMM = 5, 8
		return c
	}(),
	"minimal": func() Config {
		c := DefaultConfig()
		c.BleedMM, c.SafeZoneMM = 2, 3
		c.MarkOffsetMM, c.MarkLengthMM = 0.5, 1.5
		return c
	}(),
	"no_bleed": func() Config {
		c := DefaultConfig()
		c.BleedMM, c.SafeZoneMM = 0, 5
		c.ShowTrimMarks = false
		return c
	}(),
	"large_format": func() Config {
		c := DefaultConfig()
		c.BleedMM, c.SafeZoneMM = 10, 15
		c.MarkOffsetMM, c.MarkLengthMM = 3, 6
		return c
	}(),
}

// Preset returns a named configuration.
func Preset(name string) (Config, error) {
	c, ok := presets[name]
	if !ok {
		return Config{}, fmt.Errorf("unknown bleed preset %q, expected one of %v", name, PresetNames())
	}
	return c, nil
}

// PresetNames lists the available presets.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for k := range presets {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Validate rejects negative margins and crop marks that would touch the
// trim box or run off the sheet.
func (c Config) Validate() error {
	var errs []error
	if c.BleedMM < 0 {
		errs = append(errs, fmt.Errorf("bleed must not be negative, got %gmm", c.BleedMM))
	}
	if c.SafeZoneMM < 0 {
		errs = append(errs, fmt.Errorf("safe zone must not be negative, got %gmm", c.SafeZoneMM))
	}
	if c.ShowTrimMarks && c.BleedMM > 0 {
		if c.MarkOffsetMM <= 0 {
			errs = append(errs, fmt.Errorf("trim mark offset must be positive, got %gmm", c.MarkOffsetMM))
		}
		if c.MarkLengthMM <= 0 {
			errs = append(errs, fmt.Errorf("trim mark length must be positive, got %gmm", c.MarkLengthMM))
		}
		if reach := c.MarkOffsetMM + c.MarkLengthMM; reach > c.BleedMM+1e-9 {
			errs = append(errs, fmt.Errorf("trim marks reach %gmm past the trim but the bleed is %gmm", reach, c.BleedMM))
		}
	}
	return errors.Join(errs...)
}
