package color

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/flanksource/tabloide/exec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMagick answers identify with colorspace and writes a file for conversions.
func fakeMagick(colorspace string, failConvert bool) *exec.DryRun {
	return &exec.DryRun{
		Handler: func(ctx context.Context, p *exec.Process) error {
			if len(p.Args) > 0 && p.Args[0] == "identify" {
				p.Stdout.WriteString(colorspace + "|sRGB IEC61966-2.1|800|600|8")
				return nil
			}
			if failConvert {
				p.Stderr.WriteString("convert: unable to open image")
				return errors.New("exit status 1")
			}
			return os.WriteFile(p.Args[len(p.Args)-1], []byte("II*\x00cmyk"), 0644)
		},
	}
}

func writeImage(t *testing.T, name string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("\x89PNG fake"), 0644))
	return path
}

func TestParseIdentify(t *testing.T) {
	cases := map[string]ImageColorInfo{
		"sRGB|sRGB IEC61966-2.1|800|600|8": {ColorSpace: RGB, HasProfile: true, ProfileName: "sRGB IEC61966-2.1", Width: 800, Height: 600, BitDepth: 8},
		"CMYK||1200|900|8":                 {ColorSpace: CMYK, Width: 1200, Height: 900, BitDepth: 8},
		"Gray||10|10|16":                   {ColorSpace: Grayscale, Width: 10, Height: 10, BitDepth: 16},
		"Lab||10|10|8":                     {ColorSpace: Unknown, Width: 10, Height: 10, BitDepth: 8},
		"garbage":                          {ColorSpace: Unknown},
	}
	for out, want := range cases {
		assert.Equal(t, want, parseIdentify(out), out)
	}
}

func TestDetect(t *testing.T) {
	m := NewManager(fakeMagick("sRGB", false), Options{})
	info := m.Detect(context.Background(), "a.png")
	assert.Equal(t, RGB, info.ColorSpace)
	assert.Equal(t, 800, info.Width)

	t.Run("missing tool is unknown", func(t *testing.T) {
		m := NewManager(&exec.DryRun{Missing: []string{"magick"}}, Options{})
		assert.False(t, m.Available())
		assert.Equal(t, Unknown, m.Detect(context.Background(), "a.png").ColorSpace)
	})
}

func TestEnsureCMYK(t *testing.T) {
	ctx := context.Background()

	t.Run("rgb is converted and staged by content", func(t *testing.T) {
		runner := fakeMagick("sRGB", false)
		m := NewManager(runner, Options{})
		src := writeImage(t, "arroz.png")
		staging := t.TempDir()

		out, converted, err := m.EnsureCMYK(ctx, src, staging)
		require.NoError(t, err)
		assert.True(t, converted)
		assert.Equal(t, staging, filepath.Dir(out))
		assert.Regexp(t, `^arroz_[0-9a-f]{12}_cmyk\.tiff$`, filepath.Base(out))
		assert.FileExists(t, out)

		// uses -colorspace when no profile is installed
		calls := runner.Calls()
		require.Len(t, calls, 2)
		assert.Contains(t, calls[1].Args, "-colorspace")

		// second call reuses the staged file without converting again
		again, converted, err := m.EnsureCMYK(ctx, src, staging)
		require.NoError(t, err)
		assert.True(t, converted)
		assert.Equal(t, out, again)
		assert.Len(t, runner.Calls(), 3)

		entries, _ := os.ReadDir(staging)
		assert.Len(t, entries, 1, "no temp files left behind")
	})

	t.Run("cmyk is a no-op", func(t *testing.T) {
		runner := fakeMagick("CMYK", false)
		m := NewManager(runner, Options{})
		src := writeImage(t, "a.jpg")

		out, converted, err := m.EnsureCMYK(ctx, src, t.TempDir())
		require.NoError(t, err)
		assert.False(t, converted)
		assert.Equal(t, src, out)
		assert.Len(t, runner.Calls(), 1)
	})

	t.Run("unknown never converts", func(t *testing.T) {
		runner := &exec.DryRun{Missing: []string{"magick"}}
		m := NewManager(runner, Options{})
		src := writeImage(t, "a.jpg")

		out, converted, err := m.EnsureCMYK(ctx, src, t.TempDir())
		require.NoError(t, err)
		assert.False(t, converted)
		assert.Equal(t, src, out)
	})

	t.Run("failure falls back to the original", func(t *testing.T) {
		m := NewManager(fakeMagick("sRGB", true), Options{})
		src := writeImage(t, "a.png")

		out, converted, err := m.EnsureCMYK(ctx, src, t.TempDir())
		require.Error(t, err)
		var cerr *ConversionError
		require.True(t, errors.As(err, &cerr))
		assert.Contains(t, err.Error(), "unable to open image")
		assert.False(t, converted)
		assert.Equal(t, src, out)
	})
}

func TestConvertWithProfiles(t *testing.T) {
	profiles := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(profiles, DefaultCMYKProfile), []byte("icc"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(profiles, DefaultRGBProfile), []byte("icc"), 0644))

	runner := fakeMagick("sRGB", false)
	m := NewManager(runner, Options{ProfilesDir: profiles})
	out := filepath.Join(t.TempDir(), "out.tiff")
	require.NoError(t, m.ConvertToCMYK(context.Background(), "in.png", out, DefaultCMYKProfile, DefaultRGBProfile))

	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{
		"in.png",
		"-profile", filepath.Join(profiles, DefaultRGBProfile),
		"-profile", filepath.Join(profiles, DefaultCMYKProfile),
		out,
	}, calls[0].Args)
}

func TestStagingName(t *testing.T) {
	a := StagingName("/x/foto.png", []byte("abc"), "FOGRA39")
	b := StagingName("/y/foto.png", []byte("abc"), "FOGRA39")
	c := StagingName("/x/foto.png", []byte("abd"), "FOGRA39")
	d := StagingName("/x/foto.png", []byte("abc"), "GRACoL")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)
}
