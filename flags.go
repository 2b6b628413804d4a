package tabloide

import (
	"time"

	"github.com/flanksource/commons/logger"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/flanksource/tabloide/dpi"
	"github.com/flanksource/tabloide/exec"
	"github.com/flanksource/tabloide/render"
)

// Overrides are command line values that win over the config file. Zero
// values leave the file untouched.
type Overrides struct {
	Format      string
	DPI         int
	ColorModel  string
	BleedPreset string
	NoBleed     bool
	BleedMM     float64
	NoMarks     bool
	NoTrace     bool
	NoColor     bool
	DPIMode     string
	Operator    string
	QR          bool
	Workers     int
	Timeout     time.Duration
}

type AllFlags struct {
	logger.Flags
	Overrides
	ConfigFile string
	DryRun     bool
	NoProgress bool
}

var Flags AllFlags = AllFlags{
	Flags: logger.Flags{
		Level:        "info",
		LevelCount:   0,
		JsonLogs:     false,
		ReportCaller: false,
		LogToStderr:  true,
	},
}

// BindAllFlags adds logging, config and override flags to a pflag set (for Cobra)
func BindAllFlags(flags *pflag.FlagSet) AllFlags {
	flags.CountVarP(&Flags.Flags.LevelCount, "loglevel", "v", "Increase logging level")
	flags.StringVar(&Flags.Flags.Level, "log-level", "info", "Set the default log level")
	flags.BoolVar(&Flags.Flags.JsonLogs, "json-logs", false, "Print logs in json format to stderr")
	flags.BoolVar(&Flags.Flags.ReportCaller, "report-caller", false, "Report log caller info")
	flags.BoolVar(&Flags.Flags.LogToStderr, "log-to-stderr", true, "Log to stderr instead of stdout")

	flags.StringVarP(&Flags.ConfigFile, "config", "c", "", "Path to tabloide.yaml")
	flags.BoolVar(&Flags.DryRun, "dry-run", false, "Log external tool invocations instead of running them")
	flags.BoolVar(&Flags.NoProgress, "no-progress", false, "Disable progress display")

	flags.StringVar(&Flags.Format, "format", "", "Output format: pdf or png")
	flags.IntVar(&Flags.DPI, "dpi", 0, "Output resolution")
	flags.StringVar(&Flags.ColorModel, "color-model", "", "Output color model: cmyk or rgb")
	flags.StringVar(&Flags.BleedPreset, "bleed", "", "Bleed preset: standard, wide, minimal, no_bleed, large_format")
	flags.BoolVar(&Flags.NoBleed, "no-bleed", false, "Do not add bleed or crop marks")
	flags.Float64Var(&Flags.BleedMM, "bleed-mm", 0, "Bleed width in mm, overrides the preset")
	flags.BoolVar(&Flags.NoMarks, "no-crop-marks", false, "Add bleed without crop marks")
	flags.BoolVar(&Flags.NoTrace, "no-trace", false, "Do not stamp a traceability code")
	flags.BoolVar(&Flags.NoColor, "no-cmyk", false, "Place images without converting them to CMYK")
	flags.StringVar(&Flags.DPIMode, "dpi-mode", "", "Low resolution images: warn or block")
	flags.StringVar(&Flags.Operator, "operator", "", "Operator recorded in the traceability stamp")
	flags.BoolVar(&Flags.QR, "qr", false, "Add a QR code to the traceability stamp")
	flags.IntVar(&Flags.Workers, "workers", 0, "Number of renders run in parallel")
	flags.DurationVar(&Flags.Timeout, "timeout", 0, "Render timeout per job")
	return Flags
}

func (a AllFlags) String() string {
	b, _ := yaml.Marshal(a)
	return string(b)
}

func (a AllFlags) UseFlags() {
	logger.Configure(a.Flags)
	logger.Debugf("Using flags: %s", a)
}

// Config loads the config file, if any, and applies the overrides.
func (a AllFlags) Config() (Config, error) {
	cfg := DefaultConfig()
	if a.ConfigFile != "" {
		var err error
		if cfg, err = LoadConfig(a.ConfigFile); err != nil {
			return cfg, err
		}
	}
	a.Overrides.Apply(&cfg)
	return cfg, cfg.Validate()
}

// Apply writes the set overrides into cfg.
func (o Overrides) Apply(cfg *Config) {
	if o.Format != "" {
		cfg.Render.Format = render.Format(o.Format)
	}
	if o.DPI > 0 {
		cfg.Render.DPI = o.DPI
	}
	if o.ColorModel != "" {
		cfg.Render.ColorModel = render.ColorModel(o.ColorModel)
	}
	if o.Timeout > 0 {
		cfg.Render.Timeout = o.Timeout
	}
	if o.BleedPreset != "" {
		cfg.Bleed.Enabled = true
		cfg.Render.Bleed = true
		cfg.Bleed.Preset = o.BleedPreset
	}
	if o.NoBleed {
		cfg.Bleed.Enabled = false
		cfg.Render.Bleed = false
	}
	if o.BleedMM > 0 {
		cfg.Render.BleedMM = o.BleedMM
	}
	if o.NoMarks {
		cfg.Render.CropMarks = false
	}
	if o.NoTrace {
		cfg.Trace.Enabled = false
	}
	if o.NoColor {
		cfg.Color.Enabled = false
	}
	if o.DPIMode != "" {
		cfg.DPI.Mode = dpi.Mode(o.DPIMode)
	}
	if o.Operator != "" {
		cfg.Trace.Operator = o.Operator
	}
	if o.QR {
		cfg.Trace.QR = true
	}
	if o.Workers > 0 {
		cfg.Workers = o.Workers
	}
}

// Runner returns the process runner for external tools.
func (a AllFlags) Runner() exec.Runner {
	if a.DryRun {
		return &exec.DryRun{}
	}
	return exec.Local{}
}
