package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/flanksource/tabloide"
	"github.com/flanksource/tabloide/bleed"
	"github.com/flanksource/tabloide/clippath"
	"github.com/flanksource/tabloide/color"
	"github.com/flanksource/tabloide/dpi"
	"github.com/flanksource/tabloide/preflight"
	"github.com/flanksource/tabloide/svg"
	"github.com/flanksource/tabloide/template"
)

func dpiValidator(cfg tabloide.Config) dpi.Validator {
	return dpi.New(cfg.DPI.Mode)
}

// encode writes v to stdout as JSON or YAML.
func encode(v any, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return yaml.NewEncoder(os.Stdout).Encode(v)
}

func writeDocument(doc *svg.Document, path string) error {
	if path == "" || path == "-" {
		_, err := doc.WriteTo(os.Stdout)
		return err
	}
	return os.WriteFile(path, doc.Bytes(), 0644)
}

func newInspectCommand() *cobra.Command {
	var asJSON, asYAML bool
	cmd := &cobra.Command{
		Use:   "inspect <template.svg>",
		Short: "List the slots and static elements of a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tpl, err := template.ParseFile(args[0])
			if err != nil {
				return err
			}
			if asJSON || asYAML {
				return encode(tpl.Info, asJSON)
			}
			info := tpl.Info
			fmt.Println(ui.heading.Render(fmt.Sprintf("%s %.0fx%.0fmm, viewBox %s %s %s %s",
				or(info.Title, info.Name), info.WidthMM, info.HeightMM,
				svg.FormatNumber(info.ViewBox.X), svg.FormatNumber(info.ViewBox.Y),
				svg.FormatNumber(info.ViewBox.Width), svg.FormatNumber(info.ViewBox.Height))))
			for _, s := range info.Slots {
				w, h := info.SlotSizeMM(s)
				roles := []string{}
				for _, id := range []string{s.ImageID, s.NameID, s.PriceID, s.PriceIntegerID, s.PriceDecimalID, s.PriceDeID, s.PricePorID, s.UnitID} {
					if id != "" {
						roles = append(roles, id)
					}
				}
				line := fmt.Sprintf("  SLOT_%02d %5.1fx%-5.1fmm %s", s.Index, w, h, strings.Join(roles, " "))
				if s.Synthesized {
					line += ui.info.Render(" (no container)")
				}
				fmt.Println(line)
			}
			if len(info.Static) > 0 {
				fmt.Println(ui.info.Render(fmt.Sprintf("  %d static elements", len(info.Static))))
			}
			res := preflight.Check(cmd.Context(), tpl, nil, preflight.Options{})
			printIssues(res.Issues)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the template info as JSON")
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "Print the template info as YAML")
	return cmd
}

func newDPICommand() *cobra.Command {
	var widthMM, heightMM float64
	var mode string
	cmd := &cobra.Command{
		Use:   "dpi <image> --width-mm W --height-mm H",
		Short: "Check whether an image is sharp enough for a printed size",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wpx, hpx, err := dpi.ReadImageSize(args[0])
			if err != nil {
				return err
			}
			v := dpi.New(dpi.Mode(mode))
			res := v.Check(wpx, hpx, widthMM, heightMM)
			style := ui.success
			switch res.Status {
			case dpi.StatusWarning:
				style = ui.warning
			case dpi.StatusError:
				style = ui.failed
			}
			fmt.Println(style.Render(fmt.Sprintf("%s %dx%dpx at %.1fx%.1fmm: %s", res.Status, wpx, hpx, widthMM, heightMM, res.Message)))
			if res.Status != dpi.StatusOK {
				mw, mh := dpi.SizeForDPI(wpx, hpx, v.Recommended)
				pw, ph := dpi.PixelsForSize(widthMM, heightMM, v.Recommended)
				fmt.Println(ui.info.Render(fmt.Sprintf("  at %.0f DPI: print at most %.1fx%.1fmm or supply %dx%dpx",
					v.Recommended, mw, mh, pw, ph)))
				if f, err := dpi.UpscaleFactor(res.EffectiveDPI, v.Recommended); err != nil {
					fmt.Println(ui.failed.Render("  " + err.Error()))
				} else {
					fmt.Println(ui.info.Render(fmt.Sprintf("  upscale by %.2fx to reach %.0f DPI", f, v.Recommended)))
				}
			}
			if res.Status == dpi.StatusError {
				return fmt.Errorf("%s is below the minimum resolution", filepath.Base(args[0]))
			}
			return nil
		},
	}
	cmd.Flags().Float64Var(&widthMM, "width-mm", 0, "Printed width in mm")
	cmd.Flags().Float64Var(&heightMM, "height-mm", 0, "Printed height in mm")
	cmd.Flags().StringVar(&mode, "mode", string(dpi.ModeWarn), "Below minimum: warn or block")
	_ = cmd.MarkFlagRequired("width-mm")
	_ = cmd.MarkFlagRequired("height-mm")
	return cmd
}

func newRepairCommand() *cobra.Command {
	var output string
	var maxPath int
	cmd := &cobra.Command{
		Use:   "repair <in.svg>",
		Short: "Fix dangling, empty and overly complex clip paths",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(args[0])
			if err != nil {
				return err
			}
			rep := clippath.Repair(doc, clippath.Options{MaxPathLength: maxPath})
			fmt.Fprintln(os.Stderr, ui.info.Render(fmt.Sprintf("%d dangling references removed, %d paths simplified, %d empty definitions removed",
				rep.Fixed, rep.Simplified, rep.RemovedEmpty)))
			return writeDocument(doc, output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output SVG, stdout when empty")
	cmd.Flags().IntVar(&maxPath, "max-path-length", 0, "Clip path data longer than this is replaced by its bounding box")
	return cmd
}

func newBleedCommand() *cobra.Command {
	var output, preset string
	var list bool
	cmd := &cobra.Command{
		Use:   "bleed <in.svg>",
		Short: "Add bleed, background extension and crop marks to an SVG",
		Args: func(cmd *cobra.Command, args []string) error {
			if list {
				return nil
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if list {
				for _, name := range bleed.PresetNames() {
					c, _ := bleed.Preset(name)
					fmt.Printf("%-13s bleed %4.1fmm  safe %4.1fmm  marks %t\n", name, c.BleedMM, c.SafeZoneMM, c.ShowTrimMarks)
				}
				return nil
			}
			tpl, err := template.ParseFile(args[0])
			if err != nil {
				return err
			}
			cfg, err := bleed.Preset(preset)
			if err != nil {
				return err
			}
			doc := tpl.Instantiate()
			dims, err := bleed.Apply(doc, tpl.Info.WidthMM, tpl.Info.HeightMM, cfg)
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stderr, ui.info.Render(fmt.Sprintf("trim %.1fx%.1fmm, with bleed %.1fx%.1fmm",
				dims.TrimMM.Width, dims.TrimMM.Height, dims.BleedMM.Width, dims.BleedMM.Height)))
			return writeDocument(doc, output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output SVG, stdout when empty")
	cmd.Flags().StringVar(&preset, "preset", "standard", "Bleed preset")
	cmd.Flags().BoolVar(&list, "list", false, "List the presets")
	return cmd
}

func newSampleCommand() *cobra.Command {
	var output string
	var slots int
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Write an A4 starter template with n slots",
		RunE: func(cmd *cobra.Command, args []string) error {
			if slots < 1 {
				return fmt.Errorf("need at least one slot")
			}
			content := template.Fixture(slots)
			if output == "" {
				_, err := fmt.Print(content)
				return err
			}
			return os.WriteFile(output, []byte(content), 0644)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output SVG, stdout when empty")
	cmd.Flags().IntVarP(&slots, "slots", "n", 6, "Number of slots")
	return cmd
}

func newColorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "color <image>...",
		Short: "Show the color space of images",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := tabloide.Flags.Config()
			if err != nil {
				return err
			}
			m := color.NewManager(tabloide.Flags.Runner(), cfg.Color.Options)
			if !m.Available() {
				return fmt.Errorf("%s is not installed", cfg.Color.Tool)
			}
			for _, path := range args {
				info := m.Detect(cmd.Context(), path)
				line := fmt.Sprintf("%s: %s %dx%d", filepath.Base(path), info.ColorSpace, info.Width, info.Height)
				if info.HasProfile {
					line += " (" + info.ProfileName + ")"
				}
				style := ui.success
				if info.ColorSpace != color.CMYK {
					style = ui.warning
				}
				fmt.Println(style.Render(line))
			}
			return nil
		},
	}
	return cmd
}

func readDocument(path string) (*svg.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return svg.Parse(f)
}

func or(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
