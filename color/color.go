package color

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/flanksource/commons/logger"
	"github.com/flanksource/tabloide/exec"
	"github.com/google/uuid"
)

// ColorSpace of a raster image.
type ColorSpace string

const (
	RGB       ColorSpace = "RGB"
	CMYK      ColorSpace = "CMYK"
	Grayscale ColorSpace = "Grayscale"
	Unknown   ColorSpace = "Unknown"
)

const (
	DefaultTool            = "magick"
	DefaultCMYKProfile     = "CoatedFOGRA39.icc"
	DefaultRGBProfile      = "sRGB.icc"
	DefaultIdentifyTimeout = 10 * time.Second
	DefaultConvertTimeout  = 60 * time.Second
)

var log = logger.GetLogger("color")

// ImageColorInfo is the result of inspecting one file.
type ImageColorInfo struct {
	ColorSpace  ColorSpace `json:"color_space" yaml:"color_space"`
	HasProfile  bool       `json:"has_profile" yaml:"has_profile"`
	ProfileName string     `json:"profile_name,omitempty" yaml:"profile_name,omitempty"`
	Width       int        `json:"width" yaml:"width"`
	Height      int        `json:"height" yaml:"height"`
	BitDepth    int        `json:"bit_depth" yaml:"bit_depth"`
}

// ConversionError reports a failed color conversion. Callers are expected
// to fall back to the original file.
type ConversionError struct {
	Path      string
	Operation string
	Err       error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("color %s of %s failed: %v", e.Operation, filepath.Base(e.Path), e.Err)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

// Options configures a Manager.
type Options struct {
	Tool            string        `yaml:"tool,omitempty"`
	ProfilesDir     string        `yaml:"profiles_dir,omitempty"`
	CMYKProfile     string        `yaml:"cmyk_profile,omitempty"`
	RGBProfile      string        `yaml:"rgb_profile,omitempty"`
	IdentifyTimeout time.Duration `yaml:"identify_timeout,omitempty"`
	ConvertTimeout  time.Duration `yaml:"convert_timeout,omitempty"`
}

// DefaultOptions uses ImageMagick 7 and FOGRA39 coated output.
func DefaultOptions() Options {
	return Options{
		Tool:            DefaultTool,
		CMYKProfile:     DefaultCMYKProfile,
		RGBProfile:      DefaultRGBProfile,
		IdentifyTimeout: DefaultIdentifyTimeout,
		ConvertTimeout:  DefaultConvertTimeout,
	}
}

// Manager inspects and converts raster assets with an external image tool.
type Manager struct {
	runner exec.Runner
	opts   Options
}

// NewManager fills unset options with defaults.
func NewManager(runner exec.Runner, opts Options) *Manager {
	def := DefaultOptions()
	if opts.Tool == "" {
		opts.Tool = def.Tool
	}
	if opts.CMYKProfile == "" {
		opts.CMYKProfile = def.CMYKProfile
	}
	if opts.RGBProfile == "" {
		opts.RGBProfile = def.RGBProfile
	}
	if opts.IdentifyTimeout <= 0 {
		opts.IdentifyTimeout = def.IdentifyTimeout
	}
	if opts.ConvertTimeout <= 0 {
		opts.ConvertTimeout = def.ConvertTimeout
	}
	return &Manager{runner: runner, opts: opts}
}

// Available reports whether the image tool is installed.
func (m *Manager) Available() bool {
	_, err := m.runner.LookPath(m.opts.Tool)
	return err == nil
}

// Detect inspects the first frame of path. A missing tool or an unreadable
// file yields ColorSpace Unknown.
func (m *Manager) Detect(ctx context.Context, path string) ImageColorInfo {
	p := exec.Command(m.opts.Tool, "identify", "-format",
		"%[colorspace]|%[profile:icc]|%w|%h|%z", path+"[0]").
		WithTimeout(m.opts.IdentifyTimeout).
		WithLogger(log)
	if err := m.runner.Run(ctx, p); err != nil {
		log.Debugf("identify %s: %v", path, err)
		return ImageColorInfo{ColorSpace: Unknown}
	}
	return parseIdentify(p.Stdout.String())
}

func parseIdentify(out string) ImageColorInfo {
	info := ImageColorInfo{ColorSpace: Unknown}
	line, _, _ := strings.Cut(strings.TrimSpace(out), "\n")
	parts := strings.Split(line, "|")
	if len(parts) < 5 {
		return info
	}

	cs := strings.ToLower(strings.TrimSpace(parts[0]))
	switch {
	case strings.Contains(cs, "cmyk"):
		info.ColorSpace = CMYK
	case strings.Contains(cs, "gray"):
		info.ColorSpace = Grayscale
	case strings.Contains(cs, "rgb"):
		info.ColorSpace = RGB
	}

	info.ProfileName = strings.TrimSpace(parts[1])
	info.HasProfile = info.ProfileName != ""
	info.Width, _ = strconv.Atoi(strings.TrimSpace(parts[2]))
	info.Height, _ = strconv.Atoi(strings.TrimSpace(parts[3]))
	info.BitDepth, _ = strconv.Atoi(strings.TrimSpace(parts[4]))
	return info
}

// ConvertToCMYK writes a CMYK copy of in to out. Profiles are looked up in
// the profiles directory; without a CMYK profile a plain colorspace
// conversion is used.
func (m *Manager) ConvertToCMYK(ctx context.Context, in, out, cmykProfile, rgbProfile string) error {
	args := []string{in}
	cmyk, hasCMYK := m.profilePath(cmykProfile)
	if hasCMYK {
		if rgb, ok := m.profilePath(rgbProfile); ok {
			args = append(args, "-profile", rgb)
		}
		args = append(args, "-profile", cmyk)
	} else {
		args = append(args, "-colorspace", "CMYK")
	}
	args = append(args, out)

	p := exec.Command(m.opts.Tool, args...).
		WithTimeout(m.opts.ConvertTimeout).
		WithLogger(log)
	if err := m.runner.Run(ctx, p); err != nil {
		return &ConversionError{Path: in, Operation: "conversion", Err: fmt.Errorf("%w: %s", err, strings.TrimSpace(p.Out()))}
	}
	if st, err := os.Stat(out); err != nil || st.Size() == 0 {
		return &ConversionError{Path: in, Operation: "conversion", Err: fmt.Errorf("no output written to %s", out)}
	}
	return nil
}

// EnsureCMYK returns a CMYK version of path, converting RGB files into
// outDir. CMYK, grayscale and undetectable files are returned unchanged.
// On failure the original path is returned with a *ConversionError.
func (m *Manager) EnsureCMYK(ctx context.Context, path, outDir string) (string, bool, error) {
	info := m.Detect(ctx, path)
	if info.ColorSpace != RGB {
		return path, false, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return path, false, &ConversionError{Path: path, Operation: "read", Err: err}
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return path, false, &ConversionError{Path: path, Operation: "staging", Err: err}
	}

	out := filepath.Join(outDir, StagingName(path, content, m.opts.CMYKProfile))
	if st, err := os.Stat(out); err == nil && st.Size() > 0 {
		log.Debugf("reusing staged %s", filepath.Base(out))
		return out, true, nil
	}

	// write under a private name so concurrent jobs never see a partial file
	tmp := filepath.Join(outDir, "."+uuid.NewString()+".tiff")
	defer os.Remove(tmp)
	if err := m.ConvertToCMYK(ctx, path, tmp, m.opts.CMYKProfile, m.opts.RGBProfile); err != nil {
		return path, false, err
	}
	if err := os.Rename(tmp, out); err != nil {
		return path, false, &ConversionError{Path: path, Operation: "staging", Err: err}
	}

	log.Infof("converted %s to CMYK", filepath.Base(path))
	return out, true, nil
}

func (m *Manager) profilePath(name string) (string, bool) {
	if name == "" {
		return "", false
	}
	path := name
	if !filepath.IsAbs(path) && m.opts.ProfilesDir != "" {
		path = filepath.Join(m.opts.ProfilesDir, name)
	}
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}

// StagingName derives the converted file name from the source content and
// the target profile, so identical inputs share one staged file.
func StagingName(path string, content []byte, profile string) string {
	h := sha256.New()
	h.Write(content)
	h.Write([]byte{0})
	h.Write([]byte(profile))
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return fmt.Sprintf("%s_%s_cmyk.tiff", stem, hex.EncodeToString(h.Sum(nil))[:12])
}
