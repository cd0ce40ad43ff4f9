package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"univ_erp/backend/internal/grading"
)

func (rt *session) runTotal(cmd *cobra.Command, args []string) error {
	enrollmentID, _ := cmd.Flags().GetInt64("enrollment")

	ctx, cancel := rt.callerContext(cmd)
	defer cancel()
	svc, err := rt.services(ctx)
	if err != nil {
		return err
	}

	plain, err := svc.Engine.WeightedTotalPercent(ctx, enrollmentID)
	if err != nil {
		return err
	}
	ev, err := svc.Engine.Evaluate(ctx, enrollmentID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !ev.Total.Available {
		fmt.Fprintf(out, "Enrollment %d: no weights configured for its section\n", enrollmentID)
		return nil
	}
	fmt.Fprintf(out, "Enrollment %d\n", enrollmentID)
	fmt.Fprintf(out, "  weight sum:       %s\n", ev.Total.WeightSum.String())
	fmt.Fprintf(out, "  plain total:      %s\n", plain.Percent.StringFixed(2))
	fmt.Fprintf(out, "  normalized total: %s\n", ev.Total.Percent.StringFixed(2))
	fmt.Fprintf(out, "  computed grade:   %s\n", ev.ComputedLetter)
	if ev.CGPA != nil {
		fmt.Fprintf(out, "  cgpa:             %s\n", ev.CGPA.StringFixed(2))
	}
	if ev.Letter != "" {
		fmt.Fprintf(out, "  grade:            %s (%s)\n", ev.Letter, ev.LetterSource)
	}
	return nil
}

func (rt *session) runFinalize(cmd *cobra.Command, args []string) error {
	enrollmentID, _ := cmd.Flags().GetInt64("enrollment")
	sectionID, _ := cmd.Flags().GetInt64("section")

	ctx, cancel := rt.callerContext(cmd)
	defer cancel()
	svc, err := rt.services(ctx)
	if err != nil {
		return err
	}

	if enrollmentID != 0 {
		res, err := svc.Engine.Finalize(ctx, enrollmentID)
		if err != nil {
			return err
		}
		printResults(cmd, []grading.FinalizeResult{res})
		return nil
	}

	// Rows finalized before a failure are still reported.
	results, err := svc.Engine.FinalizeSection(ctx, sectionID)
	printResults(cmd, results)
	return err
}

func printResults(cmd *cobra.Command, results []grading.FinalizeResult) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ENROLLMENT\tSTATUS\tPERCENT\tPREVIOUS\tGRADE")
	for _, r := range results {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", r.EnrollmentID, r.Status, r.Percent.StringFixed(2), r.Previous, r.Letter)
	}
	w.Flush()
}

func (rt *session) runListComponents(cmd *cobra.Command, args []string) error {
	ctx, cancel := rt.callerContext(cmd)
	defer cancel()
	svc, err := rt.services(ctx)
	if err != nil {
		return err
	}

	list, err := svc.Components.List(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME")
	for _, c := range list {
		fmt.Fprintf(w, "%d\t%s\n", c.ID, c.Name)
	}
	return w.Flush()
}

func (rt *session) runAddComponent(cmd *cobra.Command, args []string) error {
	ctx, cancel := rt.callerContext(cmd)
	defer cancel()
	svc, err := rt.services(ctx)
	if err != nil {
		return err
	}

	c, err := svc.Components.Create(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created component %d %q\n", c.ID, c.Name)
	return nil
}
