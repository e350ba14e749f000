package main

import (
	"io"

	"github.com/spf13/cobra"
)

func newPlanCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "plan <goal>",
		Short: "Show which tool would be installed for a goal, without installing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := opts.format()
			if err != nil {
				return err
			}
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			plan, err := a.orchestrator.Plan(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), format, plan, func(w io.Writer) { printPlan(w, plan) })
		},
	}
}
