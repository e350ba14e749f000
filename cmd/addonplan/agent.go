package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"addonplan/internal/config"
	"addonplan/internal/services"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newAgentCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Publish node capabilities for later planning",
	}
	cmd.AddCommand(newAgentPublishCmd(opts))
	return cmd
}

func newAgentPublishCmd(opts *globalOptions) *cobra.Command {
	var node, namespace string

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Write one labelled ConfigMap of capabilities per node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := opts.format()
			if err != nil {
				return err
			}
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			level := cfg.Log.Level
			if opts.logLevel != "" {
				level = opts.logLevel
			}
			logger, err := newLogger(level)
			if err != nil {
				return err
			}
			defer logger.Sync()

			if namespace == "" {
				namespace = cfg.Capabilities.AgentNamespace
			}
			kube, err := services.NewKubernetesService(cfg.Kube.Config, cfg.Kube.Context, logger.Named("kubernetes"))
			if err != nil {
				return err
			}

			names, err := publishCapabilities(cmd.Context(), kube, namespace, node, opts.dryRun, logger.Named("agent"))
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), format, names, func(w io.Writer) {
				for _, name := range names {
					fmt.Fprintf(w, "%s/%s\n", namespace, name)
				}
			})
		},
	}
	cmd.Flags().StringVar(&node, "node", os.Getenv("ADDONPLAN_NODE_NAME"), "publish only this node (defaults to $ADDONPLAN_NODE_NAME, else every node)")
	cmd.Flags().StringVar(&namespace, "agent-namespace", "", "namespace of the capability ConfigMaps (defaults to capabilities.agent_namespace)")
	return cmd
}

// publishCapabilities discovers nodes and upserts their ConfigMaps. With dryRun it
// only reports the ConfigMap names that would be written.
func publishCapabilities(ctx context.Context, kube *services.KubernetesService, namespace, node string, dryRun bool, logger *zap.Logger) ([]string, error) {
	records, err := kube.NodeCapabilities(ctx)
	if err != nil {
		return nil, err
	}
	if node != "" {
		filtered := records[:0]
		for _, r := range records {
			if r.NodeName == node {
				filtered = append(filtered, r)
			}
		}
		if len(filtered) == 0 {
			return nil, fmt.Errorf("node %q not found", node)
		}
		records = filtered
	}

	if dryRun {
		names := make([]string, 0, len(records))
		for _, r := range records {
			names = append(names, services.CapabilityConfigMapName(r.NodeName))
		}
		logger.Info("dry run, not publishing", zap.Strings("configmaps", names))
		return names, nil
	}

	publisher := services.NewCapabilityPublisher(kube.Client(), namespace, logger)
	if err := publisher.EnsureNamespace(ctx); err != nil {
		return nil, err
	}
	return publisher.Publish(ctx, records)
}
