package main

import (
	"io"

	"github.com/spf13/cobra"
)

func newUninstallCmd(opts *globalOptions) *cobra.Command {
	var release releaseOptions

	cmd := &cobra.Command{
		Use:   "uninstall <tool>",
		Short: "Uninstall a tool and record it in the ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := opts.format()
			if err != nil {
				return err
			}
			installOpts, err := release.installOptions(opts)
			if err != nil {
				return err
			}
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.orchestrator.Uninstall(cmd.Context(), args[0], installOpts)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), format, result, func(w io.Writer) { printResult(w, "Uninstalled", result) })
		},
	}
	release.register(cmd, true)
	return cmd
}
