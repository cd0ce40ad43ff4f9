package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func (rt *session) runExport(cmd *cobra.Command, args []string) error {
	sectionID, _ := cmd.Flags().GetInt64("section")
	outPath, _ := cmd.Flags().GetString("out")

	ctx, cancel := rt.callerContext(cmd)
	defer cancel()
	svc, err := rt.services(ctx)
	if err != nil {
		return err
	}

	var out io.Writer = cmd.OutOrStdout()
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create %s: %w", outPath, err)
		}
		defer f.Close()
		out = f
	}

	summary, err := svc.Reconciler.Export(ctx, sectionID, out)
	if err != nil {
		return err
	}
	if outPath != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d rows (%d components) for section %d to %s\n",
			summary.Rows, summary.Components, sectionID, outPath)
	}
	return nil
}

func (rt *session) runImport(cmd *cobra.Command, args []string) error {
	sectionID, _ := cmd.Flags().GetInt64("section")

	src := cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		src = f
	}

	ctx, cancel := rt.callerContext(cmd)
	defer cancel()
	svc, err := rt.services(ctx)
	if err != nil {
		return err
	}

	report, err := svc.Reconciler.Import(ctx, sectionID, src)
	if report != nil {
		fmt.Fprintln(cmd.OutOrStdout(), report.Summary())
	}
	return err
}
