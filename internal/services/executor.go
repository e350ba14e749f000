package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"addonplan/internal/models"

	"go.uber.org/zap"
)

// CommandExecutor runs external commands
type CommandExecutor interface {
	// Run executes argv. With capture stdout is returned instead of streamed
	// and stderr is folded into the error.
	Run(ctx context.Context, argv []string, capture bool) (string, error)
}

// ExecExecutor runs commands as child processes
type ExecExecutor struct {
	DryRun bool
	Stdout io.Writer
	Stderr io.Writer
	logger *zap.Logger
}

// NewExecExecutor creates an executor that streams to the process stdout and stderr
func NewExecExecutor(dryRun bool, logger *zap.Logger) *ExecExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExecExecutor{DryRun: dryRun, Stdout: os.Stdout, Stderr: os.Stderr, logger: logger}
}

func (e *ExecExecutor) Run(ctx context.Context, argv []string, capture bool) (string, error) {
	if len(argv) == 0 {
		return "", fmt.Errorf("empty command")
	}
	if e.DryRun {
		e.logger.Info("dry run, not executing", zap.String("command", strings.Join(argv, " ")))
		return "", nil
	}

	e.logger.Debug("executing", zap.Strings("argv", argv))
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)

	if capture {
		var out, errOut bytes.Buffer
		cmd.Stdout = &out
		cmd.Stderr = &errOut
		if err := cmd.Run(); err != nil {
			if msg := strings.TrimSpace(errOut.String()); msg != "" {
				return out.String(), fmt.Errorf("failed to run %s: %w: %s", argv[0], err, msg)
			}
			return out.String(), fmt.Errorf("failed to run %s: %w", argv[0], err)
		}
		if errOut.Len() > 0 {
			e.logger.Debug("command stderr", zap.String("command", argv[0]), zap.String("stderr", errOut.String()))
		}
		return out.String(), nil
	}

	cmd.Stdout = e.Stdout
	cmd.Stderr = e.Stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("failed to run %s: %w", strings.Join(argv, " "), err)
	}
	return "", nil
}

// Helm argv builders

func HelmRepoAdd(tool models.ToolDescriptor) []string {
	return []string{"helm", "repo", "add", tool.HelmRepoName, tool.HelmRepoURL, "--force-update"}
}

func HelmRepoUpdate(tool models.ToolDescriptor) []string {
	return []string{"helm", "repo", "update", tool.HelmRepoName}
}

func HelmUpgradeInstall(release, chart, namespace string) []string {
	return []string{"helm", "upgrade", "--install", release, chart, "--namespace", namespace, "--create-namespace"}
}

// HelmFlags are the optional flags shared by helm uninstall and rollback
type HelmFlags struct {
	Wait    bool
	Timeout string
	NoHooks bool
}

func (f HelmFlags) apply(argv []string) []string {
	if f.Wait {
		argv = append(argv, "--wait")
	}
	if f.Timeout != "" {
		argv = append(argv, "--timeout", f.Timeout)
	}
	if f.NoHooks {
		argv = append(argv, "--no-hooks")
	}
	return argv
}

func HelmUninstall(release, namespace string, flags HelmFlags) []string {
	return flags.apply([]string{"helm", "uninstall", release, "--namespace", namespace})
}

func HelmStatus(release, namespace string) []string {
	return []string{"helm", "status", release, "--namespace", namespace, "--output", "json"}
}

// HelmRollback rolls back to revision, or to the previous release when revision is zero
func HelmRollback(release string, revision int, namespace string, flags HelmFlags) []string {
	argv := []string{"helm", "rollback", release}
	if revision > 0 {
		argv = append(argv, strconv.Itoa(revision))
	}
	return flags.apply(append(argv, "--namespace", namespace))
}

// HelmList lists releases in namespace, or across all namespaces when it is empty
func HelmList(namespace string) []string {
	argv := []string{"helm", "list", "--output", "json"}
	if namespace == "" {
		return append(argv, "--all-namespaces")
	}
	return append(argv, "--namespace", namespace)
}

// HelmHistory shows at most max revisions of release. Zero leaves the limit to helm.
func HelmHistory(release, namespace string, max int) []string {
	argv := []string{"helm", "history", release, "--namespace", namespace, "--output", "json"}
	if max > 0 {
		argv = append(argv, "--max", strconv.Itoa(max))
	}
	return argv
}

// installCommands is the full command sequence for installing tool.
// OCI charts are pulled directly and need no repo.
func installCommands(tool models.ToolDescriptor, release, namespace string) [][]string {
	upgrade := HelmUpgradeInstall(release, tool.ChartRef(), namespace)
	if strings.HasPrefix(tool.HelmChart, "oci://") {
		return [][]string{upgrade}
	}
	return [][]string{
		HelmRepoAdd(tool),
		HelmRepoUpdate(tool),
		upgrade,
	}
}
