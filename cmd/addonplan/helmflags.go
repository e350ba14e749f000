package main

import (
	"fmt"
	"strconv"
	"time"

	"addonplan/internal/services"

	"github.com/spf13/cobra"
)

// releaseOptions are the helm-facing flags of uninstall and rollback
type releaseOptions struct {
	release string
	wait    bool
	timeout string
	noHooks bool
}

func (r *releaseOptions) register(cmd *cobra.Command, withNoHooks bool) {
	flags := cmd.Flags()
	flags.StringVar(&r.release, "release", "", "helm release name (defaults to the recorded release, then the tool key)")
	flags.BoolVar(&r.wait, "wait", false, "wait for helm to finish before returning")
	flags.StringVar(&r.timeout, "timeout", "", "helm timeout, e.g. 5m or 2m30s")
	if withNoHooks {
		flags.BoolVar(&r.noHooks, "no-hooks", false, "skip helm hooks")
	}
}

func (r *releaseOptions) installOptions(opts *globalOptions) (services.InstallOptions, error) {
	if r.timeout != "" {
		if _, err := time.ParseDuration(r.timeout); err != nil {
			return services.InstallOptions{}, fmt.Errorf("invalid --timeout %q: %w", r.timeout, err)
		}
	}
	return services.InstallOptions{
		Namespace: opts.namespace,
		Release:   r.release,
		DryRun:    opts.dryRun,
		Helm:      services.HelmFlags{Wait: r.wait, Timeout: r.timeout, NoHooks: r.noHooks},
	}, nil
}

// parseRevision accepts a positive helm revision number
func parseRevision(s string) (int, error) {
	revision, err := strconv.Atoi(s)
	if err != nil || revision < 1 {
		return 0, fmt.Errorf("invalid revision %q: must be a positive integer", s)
	}
	return revision, nil
}
