package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/flanksource/tabloide"
	"github.com/flanksource/tabloide/trace"
)

func newTraceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Read and look up traceability codes",
	}
	cmd.AddCommand(newTraceCodeCommand(), newTraceHistoryCommand())
	return cmd
}

func newTraceCodeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "code <file.svg|file.pdf>",
		Short: "Print the traceability code of a composed SVG or rendered PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			var code string
			if strings.EqualFold(filepath.Ext(path), ".pdf") {
				c, err := trace.ExtractFromPDF(path)
				if err != nil {
					return err
				}
				code = c
			} else {
				doc, err := readDocument(path)
				if err != nil {
					return err
				}
				info, ok := trace.Extract(doc)
				if !ok {
					return fmt.Errorf("no valid traceability record in %s", path)
				}
				code = info.Code()
				printInfo(info)
			}
			fmt.Println(trace.CodePrefix + code)

			cfg, err := tabloide.Flags.Config()
			if err != nil {
				return err
			}
			registry, err := openRegistry(cfg.Trace.Registry)
			if err != nil {
				return nil
			}
			defer registry.Close()
			rec, err := registry.Lookup(cmd.Context(), code)
			if errors.Is(err, trace.ErrUnknownCode) {
				fmt.Println(ui.warning.Render("  not in the registry"))
				return nil
			} else if err != nil {
				return err
			}
			printInfo(rec.Info)
			fmt.Println(ui.info.Render(fmt.Sprintf("  output:   %s (recorded %s)", rec.Output, rec.RecordedAt.Local().Format(time.DateTime))))
			return nil
		},
	}
}

func newTraceHistoryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "history <project>",
		Short: "List the recorded renders of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := tabloide.Flags.Config()
			if err != nil {
				return err
			}
			registry, err := openRegistry(cfg.Trace.Registry)
			if err != nil {
				return err
			}
			defer registry.Close()
			records, err := registry.History(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println(ui.info.Render("no renders recorded for " + args[0]))
			}
			for _, r := range records {
				fmt.Printf("%s  v%-3d %s  %s\n", r.Info.Label(), r.Info.Version,
					r.Info.CreatedAt.Local().Format(time.DateTime), r.Output)
			}
			return nil
		},
	}
}

func printInfo(info trace.Info) {
	fmt.Println(ui.info.Render(fmt.Sprintf("  project:  %s v%d", info.ProjectID, info.Version)))
	fmt.Println(ui.info.Render(fmt.Sprintf("  created:  %s", info.CreatedAt.Local().Format(time.DateTime))))
	if info.Operator != "" {
		fmt.Println(ui.info.Render("  operator: " + info.Operator))
	}
	if info.MachineID != "" {
		fmt.Println(ui.info.Render("  machine:  " + info.MachineID))
	}
}
