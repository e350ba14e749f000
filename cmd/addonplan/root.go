package main

import (
	"errors"
	"fmt"
	"os"

	"addonplan/internal/services"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Exit codes
const (
	ExitCodeSuccess     = 0
	ExitCodeError       = 1
	ExitCodeUnknownTool = 2
)

// globalOptions are the persistent flags shared by every command
type globalOptions struct {
	configPath string
	logLevel   string
	namespace  string
	dryRun     bool
	json       bool
	output     string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "addonplan",
		Short: "Plan, install and track Kubernetes add-ons",
		Long: `addonplan picks the add-on that fits a goal on the current cluster,
installs it with helm and records every install in a cluster-scoped ledger.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate(`{{printf "addonplan version %s\n" .Version}}`)

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVarP(&opts.namespace, "namespace", "n", "", "target namespace (defaults to the tool's namespace)")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "print the commands without running them or recording anything")
	flags.BoolVar(&opts.json, "json", false, "print JSON output")
	flags.StringVarP(&opts.output, "output", "o", outputTable, "output format (table, json, yaml)")

	root.AddCommand(
		newInstallCmd(opts),
		newPlanCmd(opts),
		newStatusCmd(opts),
		newListCmd(opts),
		newUninstallCmd(opts),
		newHistoryCmd(opts),
		newRollbackCmd(opts),
		newServeCmd(opts),
		newAgentCmd(opts),
		newVersionCmd(),
	)
	return root
}

// format resolves --json and --output into one output format
func (o *globalOptions) format() (string, error) {
	if o.json {
		return outputJSON, nil
	}
	switch o.output {
	case outputTable, outputJSON, outputYAML:
		return o.output, nil
	default:
		return "", fmt.Errorf("unsupported output format %q", o.output)
	}
}

// exitCode maps an error to the process exit status
func exitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}
	if errors.Is(err, services.ErrUnknownTool) {
		return ExitCodeUnknownTool
	}
	return ExitCodeError
}

// newLogger builds a console logger on stderr
func newLogger(level string) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
	}

	encoderCfg := zap.NewDevelopmentEncoderConfig()
	encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.Lock(os.Stderr),
		lvl,
	)
	return zap.New(core), nil
}
