package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/flanksource/tabloide"
)

// Build information (set by goreleaser)
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tabloide",
		Short: "Compose retail flyers from SVG templates and render print-ready PDFs",
		Long: `tabloide fills the SLOT_<n> positions of an SVG template with products,
repairs clip paths, adds bleed and crop marks, stamps a traceability code
and renders a press-ready CMYK PDF through Ghostscript.`,
		Example: `  tabloide sample -n 6 -o encarte.svg
  tabloide inspect encarte.svg
  tabloide build -p semana.yaml -t encarte.svg -o encarte.pdf --ticket ficha.pdf
  tabloide trace code encarte.pdf`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			tabloide.Flags.UseFlags()
		},
	}
	tabloide.BindAllFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(newInspectCommand())
	rootCmd.AddCommand(newBuildCommand())
	rootCmd.AddCommand(newPreflightCommand())
	rootCmd.AddCommand(newDPICommand())
	rootCmd.AddCommand(newRepairCommand())
	rootCmd.AddCommand(newBleedCommand())
	rootCmd.AddCommand(newTraceCommand())
	rootCmd.AddCommand(newColorCommand())
	rootCmd.AddCommand(newSampleCommand())
	rootCmd.AddCommand(newVersionCommand())
	return rootCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("tabloide %s (commit %s, built %s, %s)\n",
				version, commit, date, runtime.Version())
		},
	}
}
