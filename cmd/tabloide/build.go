package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/flanksource/commons/text"
	"github.com/spf13/cobra"

	"github.com/flanksource/tabloide"
	"github.com/flanksource/tabloide/preflight"
	"github.com/flanksource/tabloide/render"
	"github.com/flanksource/tabloide/shutdown"
	"github.com/flanksource/tabloide/template"
	"github.com/flanksource/tabloide/trace"
)

type buildOptions struct {
	products string
	template string
	output   string
	ticket   string
	svg      string
	preview  string
	version  int
	record   bool
	strict   bool
}

// load resolves the catalog and its template.
func (o buildOptions) load() (*tabloide.Catalog, *template.Template, error) {
	if o.products == "" {
		return nil, nil, fmt.Errorf("--products is required")
	}
	catalog, err := tabloide.LoadCatalog(o.products)
	if err != nil {
		return nil, nil, err
	}
	if o.version > 0 {
		catalog.Version = o.version
	}
	path := o.template
	if path == "" {
		path = catalog.TemplatePath()
	}
	if path == "" {
		return nil, nil, fmt.Errorf("no template: pass --template or set template in %s", filepath.Base(o.products))
	}
	tpl, err := template.ParseFile(path)
	if err != nil {
		return nil, nil, err
	}
	return catalog, tpl, nil
}

func newBuildCommand() *cobra.Command {
	var opts buildOptions

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Compose a flyer and render it for print",
		Long: `Fill the template with the catalog products, repair clip paths, add bleed and
crop marks, stamp a traceability code and render the result.

Slot problems never stop the build: affected slots keep their placeholder and
are reported. Use --strict to fail instead.`,
		Example: `  tabloide build -p semana.yaml -o encarte.pdf
  tabloide build -p semana.yaml -t encarte.svg -o encarte.pdf --ticket ficha.pdf --record
  tabloide build -p semana.yaml -o encarte.png --format png --dpi 150`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVarP(&opts.products, "products", "p", "", "Product catalog (YAML)")
	cmd.Flags().StringVarP(&opts.template, "template", "t", "", "SVG template, defaults to the catalog's template")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output file (.pdf or .png)")
	cmd.Flags().StringVar(&opts.ticket, "ticket", "", "Write a PDF job ticket")
	cmd.Flags().StringVar(&opts.svg, "svg", "", "Also write the composed SVG")
	cmd.Flags().StringVar(&opts.preview, "preview", "", "Also write a low resolution PNG preview")
	cmd.Flags().IntVar(&opts.version, "revision", 0, "Override the catalog version")
	cmd.Flags().BoolVar(&opts.record, "record", false, "Record the traceability code in the registry")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "Fail when any slot could not be filled")
	_ = cmd.MarkFlagRequired("products")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func runBuild(parent context.Context, opts buildOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := shutdown.NotifyContext(parent)
	defer stop()

	cfg, err := tabloide.Flags.Config()
	if err != nil {
		return err
	}
	if ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(opts.output)), "."); tabloide.Flags.Format == "" && ext == string(render.FormatPNG) {
		cfg.Render.Format = render.FormatPNG
	}

	catalog, tpl, err := opts.load()
	if err != nil {
		return err
	}

	var copts []tabloide.ComposerOption
	if opts.record || cfg.Trace.Registry != "" {
		registry, err := openRegistry(cfg.Trace.Registry)
		if err != nil {
			return err
		}
		shutdown.AddHookWithPriority("trace registry", shutdown.PriorityRegistry, func() { _ = registry.Close() })
		defer registry.Close()
		copts = append(copts, tabloide.WithRegistry(registry))
	}
	prog := newProgress(tabloide.Flags.NoProgress)
	copts = append(copts, tabloide.WithRenderEvents(prog.handle))

	composer, err := tabloide.NewComposer(cfg, tabloide.Flags.Runner(), copts...)
	if err != nil {
		return err
	}
	shutdown.AddHookWithPriority("render queue", shutdown.PriorityRender, composer.Close)
	defer composer.Close()
	if cfg.Color.StagingDir == "" {
		staging := filepath.Join(os.TempDir(), "tabloide-staging")
		shutdown.AddHookWithPriority("staging", shutdown.PriorityStaging, func() { _ = os.RemoveAll(staging) })
	}

	comp, err := composer.Compose(ctx, tpl, catalog.ProductMap(), tabloide.ComposeOptions{
		Project:  catalog.Project,
		Version:  catalog.Version,
		Operator: cfg.Trace.Operator,
		BaseDir:  catalog.Dir,
	})
	if err != nil {
		return err
	}
	printIssues(comp.Preflight.Issues)
	for _, w := range comp.Injection.Warnings {
		fmt.Fprintln(os.Stderr, ui.warning.Render(w.String()))
	}
	if err := comp.Err(); err != nil {
		fmt.Fprintln(os.Stderr, ui.failed.Render(err.Error()))
		if opts.strict {
			return fmt.Errorf("%d slots could not be filled", len(comp.Injection.Errors))
		}
	}

	if opts.svg != "" {
		if err := os.WriteFile(opts.svg, comp.Document.Bytes(), 0644); err != nil {
			return err
		}
	}
	if opts.preview != "" {
		if b, err := render.PreviewBytes(ctx, comp.Document.Bytes(), 72); err != nil {
			fmt.Fprintln(os.Stderr, ui.warning.Render("preview: "+err.Error()))
		} else if err := os.WriteFile(opts.preview, b, 0644); err != nil {
			return err
		}
	}

	out, err := composer.Render(ctx, comp, opts.output)
	if err != nil {
		return err
	}

	summary := fmt.Sprintf("%s: %d/%d slots, %d pages, %.1f KB, composed in %s", out.Path, len(comp.Injection.Filled),
		len(tpl.Info.Slots), out.Pages, float64(out.Size)/1024, text.HumanizeDuration(comp.Elapsed))
	if comp.Trace != nil {
		summary += ", " + comp.Trace.Label()
	}
	fmt.Fprintln(os.Stderr, ui.success.Render(summary))

	if opts.ticket != "" {
		title := catalog.Title
		if title == "" {
			title = tpl.Info.Title
		}
		t := comp.Ticket(title, tpl.Info.Name, out.Path, cfg.Render)
		if err := t.Save(opts.ticket); err != nil {
			return err
		}
	}
	return nil
}

func openRegistry(path string) (*trace.Registry, error) {
	if path == "" {
		var err error
		if path, err = trace.DefaultRegistryPath(); err != nil {
			return nil, err
		}
	}
	return trace.OpenRegistry(path)
}

func newPreflightCommand() *cobra.Command {
	var opts buildOptions
	cmd := &cobra.Command{
		Use:   "preflight",
		Short: "Check a template and catalog before rendering",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := tabloide.Flags.Config()
			if err != nil {
				return err
			}
			catalog, tpl, err := opts.load()
			if err != nil {
				return err
			}
			popts := preflight.Options{BaseDir: catalog.Dir}
			if cfg.DPI.Enabled {
				v := dpiValidator(cfg)
				popts.DPI = &v
			}
			if b, err := cfg.Bleed.Resolve(); err == nil && cfg.Bleed.Enabled {
				popts.SafeZoneMM = b.SafeZoneMM
			}
			res := preflight.Check(cmd.Context(), tpl, catalog.ProductMap(), popts)
			printIssues(res.Issues)
			if !res.OK() {
				return fmt.Errorf("preflight found %d errors", len(res.Filter(preflight.SeverityError)))
			}
			fmt.Fprintln(os.Stderr, ui.success.Render(fmt.Sprintf("%d slots, %d products: ready", len(tpl.Info.Slots), len(catalog.Products))))
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.products, "products", "p", "", "Product catalog (YAML)")
	cmd.Flags().StringVarP(&opts.template, "template", "t", "", "SVG template, defaults to the catalog's template")
	_ = cmd.MarkFlagRequired("products")
	return cmd
}
