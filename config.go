package tabloide

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/flanksource/tabloide/bleed"
	"github.com/flanksource/tabloide/clippath"
	"github.com/flanksource/tabloide/color"
	"github.com/flanksource/tabloide/dpi"
	"github.com/flanksource/tabloide/render"
	"github.com/flanksource/tabloide/trace"
)

// BleedConfig selects a named preset or spells the values out. A preset
// wins over explicit values.
type BleedConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Preset       string `yaml:"preset,omitempty"`
	bleed.Config `yaml:",inline"`
}

// Resolve returns the effective bleed settings.
func (b BleedConfig) Resolve() (bleed.Config, error) {
	if b.Preset == "" {
		return b.Config, nil
	}
	return bleed.Preset(b.Preset)
}

// EffectiveBleed merges the bleed section with the job's render flags. The
// stage runs only when both enable it. A render BleedMM replaces the
// configured width and shortens the crop marks when they no longer fit.
func (c Config) EffectiveBleed() (bleed.Config, bool, error) {
	if !c.Bleed.Enabled || !c.Render.Bleed {
		return bleed.Config{}, false, nil
	}
	b, err := c.Bleed.Resolve()
	if err != nil {
		return b, false, err
	}
	if c.Render.BleedMM > 0 {
		b.BleedMM = c.Render.BleedMM
		if reach := b.MarkOffsetMM + b.MarkLengthMM; reach > b.BleedMM {
			f := b.BleedMM / reach
			b.MarkOffsetMM *= f
			b.MarkLengthMM *= f
		}
	}
	b.ShowTrimMarks = b.ShowTrimMarks && c.Render.CropMarks
	return b, true, nil
}

type DPIConfig struct {
	Enabled bool     `yaml:"enabled"`
	Mode    dpi.Mode `yaml:"mode,omitempty"`
}

// ColorConfig enables RGB to CMYK conversion of placed images.
type ColorConfig struct {
	Enabled       bool   `yaml:"enabled"`
	StagingDir    string `yaml:"staging_dir,omitempty"`
	color.Options `yaml:",inline"`
}

type TraceConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Operator      string `yaml:"operator,omitempty"`
	Registry      string `yaml:"registry,omitempty"`
	trace.Options `yaml:",inline"`
}

// Config is the tabloide.yaml file.
type Config struct {
	Bleed    BleedConfig      `yaml:"bleed"`
	Render   render.Settings  `yaml:"render"`
	DPI      DPIConfig        `yaml:"dpi"`
	Color    ColorConfig      `yaml:"color"`
	Trace    TraceConfig      `yaml:"trace"`
	ClipPath clippath.Options `yaml:"clippath"`
	// Workers is the number of render pipelines run in parallel.
	Workers int `yaml:"workers"`
}

// DefaultConfig is a press-ready setup: 3mm bleed with crop marks, CMYK PDF
// at 300 DPI, DPI warnings, color conversion and a traceability stamp.
func DefaultConfig() Config {
	return Config{
		Bleed:   BleedConfig{Enabled: true, Config: bleed.DefaultConfig()},
		Render:  render.DefaultSettings(),
		DPI:     DPIConfig{Enabled: true, Mode: dpi.ModeWarn},
		Color:   ColorConfig{Enabled: true, Options: color.DefaultOptions()},
		Trace:   TraceConfig{Enabled: true},
		Workers: 1,
	}
}

// LoadConfig reads path over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", filepath.Base(path), err)
	}
	if cfg.Color.ProfilesDir != "" && !filepath.IsAbs(cfg.Color.ProfilesDir) {
		cfg.Color.ProfilesDir = filepath.Join(filepath.Dir(path), cfg.Color.ProfilesDir)
	}
	return cfg, cfg.Validate()
}

// Validate reports every invalid section.
func (c Config) Validate() error {
	var errs []error
	if b, ok, err := c.EffectiveBleed(); err != nil {
		errs = append(errs, err)
	} else if ok {
		if err := b.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("bleed: %w", err))
		}
	}
	if err := c.Render.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("render: %w", err))
	}
	switch c.DPI.Mode {
	case "", dpi.ModeWarn, dpi.ModeBlock:
	default:
		errs = append(errs, fmt.Errorf("dpi: unknown mode %q", c.DPI.Mode))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	return errors.Join(errs...)
}

// String renders the effective configuration as YAML.
func (c Config) String() string {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err.Error()
	}
	return string(b)
}
