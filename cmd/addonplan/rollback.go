package main

import (
	"errors"
	"io"

	"github.com/spf13/cobra"
)

func newRollbackCmd(opts *globalOptions) *cobra.Command {
	var (
		release  releaseOptions
		revision string
	)

	cmd := &cobra.Command{
		Use:   "rollback <tool> [revision]",
		Short: "Roll a tool's release back to a revision, or the previous one",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := opts.format()
			if err != nil {
				return err
			}
			if len(args) == 2 {
				if revision != "" && revision != args[1] {
					return errors.New("revision given both as argument and --revision")
				}
				revision = args[1]
			}
			rev := 0
			if revision != "" {
				if rev, err = parseRevision(revision); err != nil {
					return err
				}
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

			result, err := a.orchestrator.Rollback(cmd.Context(), args[0], rev, installOpts)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), format, result, func(w io.Writer) { printResult(w, "Rolled back", result) })
		},
	}
	cmd.Flags().StringVar(&revision, "revision", "", "revision to roll back to (defaults to the previous one)")
	release.register(cmd, false)
	return cmd
}
