package main

import (
	"io"

	"addonplan/internal/services"

	"github.com/spf13/cobra"
)

func newInstallCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "install <tool-or-goal>",
		Short: "Install a tool by key, or the best fit for a goal category",
		Example: `  addonplan install prometheus
  addonplan install monitoring --dry-run`,
		Args: cobra.ExactArgs(1),
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

			result, err := a.orchestrator.Install(cmd.Context(), args[0], services.InstallOptions{
				Namespace: opts.namespace,
				DryRun:    opts.dryRun,
			})
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), format, result, func(w io.Writer) { printResult(w, "Installed", result) })
		},
	}
}
