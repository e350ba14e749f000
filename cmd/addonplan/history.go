package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"
)

func newHistoryCmd(opts *globalOptions) *cobra.Command {
	var (
		release      releaseOptions
		helm         bool
		maxRevisions int
	)

	cmd := &cobra.Command{
		Use:   "history <tool>",
		Short: "Show the ledger events of a tool, newest first",
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

			if helm {
				installOpts, err := release.installOptions(opts)
				if err != nil {
					return err
				}
				revisions, err := a.orchestrator.ReleaseHistory(cmd.Context(), args[0], maxRevisions, installOpts)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), format, json.RawMessage(revisions), func(w io.Writer) {
					printRawJSON(w, "Helm revisions", revisions)
				})
			}

			events, err := a.orchestrator.History(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), format, events, func(w io.Writer) { printHistory(w, events) })
		},
	}
	cmd.Flags().BoolVar(&helm, "helm", false, "show helm release revisions instead of ledger events")
	cmd.Flags().IntVar(&maxRevisions, "max", 10, "maximum number of helm revisions to show")
	cmd.Flags().StringVar(&release.release, "release", "", "helm release name (defaults to the recorded release, then the tool key)")
	return cmd
}
