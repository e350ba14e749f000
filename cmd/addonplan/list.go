package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newListCmd(opts *globalOptions) *cobra.Command {
	var full, helm bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List every known tool and whether it is installed",
		Args:    cobra.NoArgs,
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
			ctx := cmd.Context()

			tools, table, err := listTools(ctx, a, full)
			if err != nil {
				return err
			}
			if !helm {
				return render(cmd.OutOrStdout(), format, tools, table)
			}

			releases, err := a.orchestrator.HelmReleases(ctx, opts.namespace)
			if err != nil {
				return err
			}
			out := map[string]any{"tools": tools, "helmReleases": json.RawMessage(releases)}
			return render(cmd.OutOrStdout(), format, out, func(w io.Writer) {
				table(w)
				printRawJSON(w, "Helm releases", releases)
			})
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "print the full registry instead of the tool table")
	cmd.Flags().BoolVar(&helm, "helm", false, "also show helm releases (filtered by --namespace)")
	return cmd
}

// listTools returns the registry itself with full, or the tool statuses otherwise,
// together with the human rendering of whichever was chosen
func listTools(ctx context.Context, a *app, full bool) (any, func(io.Writer), error) {
	if full {
		registry, err := a.orchestrator.Registry(ctx)
		if err != nil {
			return nil, nil, err
		}
		return registry, func(w io.Writer) {
			data, _ := json.MarshalIndent(registry, "", "  ")
			fmt.Fprintln(w, string(data))
		}, nil
	}

	statuses, err := a.orchestrator.List(ctx)
	if err != nil {
		return nil, nil, err
	}
	return statuses, func(w io.Writer) { printTools(w, statuses) }, nil
}
