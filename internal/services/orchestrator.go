package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"addonplan/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultNamespace is used when neither the caller nor the tool names one
const DefaultNamespace = "default"

// Orchestrator wires summarize, decide, resolve, execute and record
type Orchestrator struct {
	registry     *RegistryCache
	capabilities CapabilitySource
	engine       DecisionEngine
	ledger       *Ledger
	executor     CommandExecutor
	logger       *zap.Logger
	newID        func() string
	now          func() time.Time
}

// OrchestratorOptions holds the collaborators of an Orchestrator
type OrchestratorOptions struct {
	Registry     *RegistryCache
	Capabilities CapabilitySource
	Engine       DecisionEngine
	Ledger       *Ledger
	Executor     CommandExecutor
	Logger       *zap.Logger
}

// InstallOptions are the per-call overrides of install-like operations.
// Release and the helm flags only apply to uninstall and rollback.
type InstallOptions struct {
	Namespace string
	Release   string
	DryRun    bool
	Helm      HelmFlags
}

// NewOrchestrator creates an orchestrator; the deterministic engine is used when none is given
func NewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	o := &Orchestrator{
		registry:     opts.Registry,
		capabilities: opts.Capabilities,
		engine:       opts.Engine,
		ledger:       opts.Ledger,
		executor:     opts.Executor,
		logger:       opts.Logger,
		newID:        uuid.NewString,
		now:          time.Now,
	}
	if o.engine == nil {
		o.engine = DeterministicEngine{}
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

// Registry returns the resolved tool registry
func (o *Orchestrator) Registry(ctx context.Context) (*models.ToolRegistry, error) {
	return o.registry.Resolve(ctx)
}

// Cluster discovers node capabilities, summarizes them and guesses the cluster profile
func (o *Orchestrator) Cluster(ctx context.Context) (*models.ClusterReport, error) {
	records, err := o.discover(ctx)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []models.NodeCapability{}
	}
	return &models.ClusterReport{
		Summary: Summarize(records),
		Profile: DetectClusterProfile(records),
		Nodes:   records,
	}, nil
}

func (o *Orchestrator) discover(ctx context.Context) ([]models.NodeCapability, error) {
	if o.capabilities == nil {
		return nil, nil
	}
	records, err := o.capabilities.NodeCapabilities(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to discover node capabilities: %w", err)
	}
	return records, nil
}

// Plan decides which tool of the goal category fits the cluster, without side effects
func (o *Orchestrator) Plan(ctx context.Context, goal string) (*models.Plan, error) {
	registry, err := o.registry.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	candidates, ok := registry.Category(goal)
	if !ok || len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no category %q", ErrUnknownTool, goal)
	}

	records, err := o.discover(ctx)
	if err != nil {
		return nil, err
	}
	summary := Summarize(records)
	profile := DetectClusterProfile(records)

	decision, err := o.engine.Decide(ctx, goal, summary, candidates)
	if err != nil {
		return nil, fmt.Errorf("failed to decide for %s: %w", goal, err)
	}

	var chosen *models.ToolDescriptor
	for i := range candidates {
		if candidates[i].Key == decision.ChartKey {
			chosen = &candidates[i]
			break
		}
	}
	if chosen == nil {
		return nil, fmt.Errorf("%w: decision chose %q outside %s", ErrUnknownTool, decision.ChartKey, goal)
	}

	o.logger.Debug("plan decided",
		zap.String("goal", goal),
		zap.String("chartKey", decision.ChartKey),
		zap.Float64("confidence", decision.Confidence),
		zap.String("engine", decision.Engine),
		zap.String("profile", profile),
	)

	return &models.Plan{
		Goal:     goal,
		Category: goal,
		Summary:  summary,
		Profile:  profile,
		Decision: decision,
		Tool:     *chosen,
	}, nil
}

// Install installs target, a tool key or a category name to decide within.
// Dry-run reports the commands and records nothing.
func (o *Orchestrator) Install(ctx context.Context, target string, opts InstallOptions) (*models.InstallResult, error) {
	registry, err := o.registry.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	result := &models.InstallResult{OperationID: o.newID(), DryRun: opts.DryRun}

	if entry, ok := registry.Find(target); ok {
		result.Tool = entry.Tool
		result.Category = entry.Category
	} else if _, ok := registry.Category(target); ok {
		plan, err := o.Plan(ctx, target)
		if err != nil {
			return nil, err
		}
		result.Plan = plan
		result.Tool = plan.Tool
		result.Category = plan.Category
	} else {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, target)
	}

	tool := result.Tool
	result.Namespace = namespaceFor(opts.Namespace, tool.Namespace)
	result.Release = tool.Key
	result.Commands = installCommands(tool, result.Release, result.Namespace)

	logger := o.logger.With(zap.String("operation", result.OperationID), zap.String("tool", tool.Key))
	if opts.DryRun {
		logger.Info("dry run, skipping install", zap.String("namespace", result.Namespace))
		return result, nil
	}

	if err := o.runAll(ctx, result.Commands); err != nil {
		return nil, err
	}

	chart := tool.ChartRef()
	event := models.InstallEvent{
		ToolKey:    tool.Key,
		Namespace:  result.Namespace,
		Chart:      &chart,
		Release:    result.Release,
		LastAction: models.ActionInstallOrUpgrade,
		Timestamp:  o.now().UTC(),
	}
	if _, err := o.ledger.Append(ctx, event); err != nil {
		return nil, err
	}
	result.Event = &event

	logger.Info("installed", zap.String("namespace", result.Namespace), zap.String("chart", chart))
	return result, nil
}

// Uninstall removes the release of key. The namespace comes from opts, then the
// most recent ledger event, then the tool default.
func (o *Orchestrator) Uninstall(ctx context.Context, key string, opts InstallOptions) (*models.InstallResult, error) {
	entry, namespace, release, err := o.releaseOf(ctx, key, opts)
	if err != nil {
		return nil, err
	}

	result := &models.InstallResult{
		OperationID: o.newID(),
		Tool:        entry.Tool,
		Category:    entry.Category,
		Namespace:   namespace,
		Release:     release,
		Commands:    [][]string{HelmUninstall(release, namespace, opts.Helm)},
		DryRun:      opts.DryRun,
	}
	if opts.DryRun {
		return result, nil
	}

	if err := o.runAll(ctx, result.Commands); err != nil {
		return nil, err
	}

	event := models.InstallEvent{
		ToolKey:    key,
		Namespace:  namespace,
		Release:    release,
		LastAction: models.ActionUninstall,
		Timestamp:  o.now().UTC(),
	}
	if _, err := o.ledger.Append(ctx, event); err != nil {
		return nil, err
	}
	result.Event = &event
	return result, nil
}

// Status reports what the ledger knows about key and what helm reports for its release.
// A failing status command is reported in the result.
func (o *Orchestrator) Status(ctx context.Context, key string) (*models.ToolStatus, error) {
	entry, err := o.registry.FindTool(ctx, key)
	if err != nil {
		return nil, err
	}

	latest, err := o.ledger.Latest(ctx, key)
	if err != nil {
		return nil, err
	}

	status := &models.ToolStatus{
		Tool:      entry.Tool,
		Category:  entry.Category,
		Installed: latest != nil && latest.LastAction == models.ActionInstallOrUpgrade,
		LastEvent: latest,
	}

	if status.Installed && o.executor != nil {
		out, err := o.executor.Run(ctx, HelmStatus(latest.Release, latest.Namespace), true)
		if err != nil {
			status.StatusError = err.Error()
		}
		status.ReleaseStatus = strings.TrimSpace(out)
	}
	return status, nil
}

// List returns every registry tool with its installed state
func (o *Orchestrator) List(ctx context.Context) ([]models.ToolStatus, error) {
	entries, err := o.registry.ListTools(ctx)
	if err != nil {
		return nil, err
	}

	ledger, err := o.ledger.Read(ctx)
	if err != nil {
		return nil, err
	}
	latest := latestByTool(ledger)

	statuses := make([]models.ToolStatus, 0, len(entries))
	for _, entry := range entries {
		status := models.ToolStatus{Tool: entry.Tool, Category: entry.Category}
		if e, ok := latest[entry.Tool.Key]; ok {
			event := e
			status.LastEvent = &event
			status.Installed = e.LastAction == models.ActionInstallOrUpgrade
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// History returns the ledger events of a known tool, newest first
func (o *Orchestrator) History(ctx context.Context, key string) ([]models.InstallEvent, error) {
	if _, err := o.registry.FindTool(ctx, key); err != nil {
		return nil, err
	}
	return o.ledger.History(ctx, key, true)
}

// Ledger returns the full install ledger
func (o *Orchestrator) Ledger(ctx context.Context) (*models.InstallLedger, error) {
	return o.ledger.Read(ctx)
}

// Rollback rolls the release of key back to revision, or the previous one when zero.
// The ledger has no rollback action so nothing is recorded.
func (o *Orchestrator) Rollback(ctx context.Context, key string, revision int, opts InstallOptions) (*models.InstallResult, error) {
	if revision < 0 {
		return nil, fmt.Errorf("invalid revision %d", revision)
	}
	entry, namespace, release, err := o.releaseOf(ctx, key, opts)
	if err != nil {
		return nil, err
	}

	result := &models.InstallResult{
		OperationID: o.newID(),
		Tool:        entry.Tool,
		Category:    entry.Category,
		Namespace:   namespace,
		Release:     release,
		Commands:    [][]string{HelmRollback(release, revision, namespace, opts.Helm)},
		DryRun:      opts.DryRun,
	}
	if opts.DryRun {
		return result, nil
	}

	if err := o.runAll(ctx, result.Commands); err != nil {
		return nil, err
	}
	return result, nil
}

// HelmReleases returns the raw JSON of helm list for namespace, or all namespaces when empty.
// Dry-run executors return an empty list.
func (o *Orchestrator) HelmReleases(ctx context.Context, namespace string) (string, error) {
	if o.executor == nil {
		return "", fmt.Errorf("no command executor configured")
	}
	out, err := o.executor.Run(ctx, HelmList(namespace), true)
	if err != nil {
		return "", err
	}
	if out = strings.TrimSpace(out); out == "" {
		return "[]", nil
	}
	return out, nil
}

// ReleaseHistory returns the raw JSON of helm history for the release of key, at most max revisions
func (o *Orchestrator) ReleaseHistory(ctx context.Context, key string, max int, opts InstallOptions) (string, error) {
	if o.executor == nil {
		return "", fmt.Errorf("no command executor configured")
	}
	_, namespace, release, err := o.releaseOf(ctx, key, opts)
	if err != nil {
		return "", err
	}
	out, err := o.executor.Run(ctx, HelmHistory(release, namespace, max), true)
	if err != nil {
		return "", err
	}
	if out = strings.TrimSpace(out); out == "" {
		return "[]", nil
	}
	return out, nil
}

// releaseOf locates the deployed release of key. Explicit options win, then the
// most recent ledger event, then tool defaults.
func (o *Orchestrator) releaseOf(ctx context.Context, key string, opts InstallOptions) (models.ToolEntry, string, string, error) {
	entry, err := o.registry.FindTool(ctx, key)
	if err != nil {
		return models.ToolEntry{}, "", "", err
	}

	latest, err := o.ledger.Latest(ctx, key)
	if err != nil {
		return models.ToolEntry{}, "", "", err
	}

	namespace := opts.Namespace
	release := opts.Release
	if latest != nil {
		if namespace == "" {
			namespace = latest.Namespace
		}
		if release == "" {
			release = latest.Release
		}
	}
	if release == "" {
		release = entry.Tool.Key
	}
	return entry, namespaceFor(namespace, entry.Tool.Namespace), release, nil
}

func (o *Orchestrator) runAll(ctx context.Context, commands [][]string) error {
	if o.executor == nil {
		return fmt.Errorf("no command executor configured")
	}
	for _, argv := range commands {
		if _, err := o.executor.Run(ctx, argv, false); err != nil {
			return err
		}
	}
	return nil
}

func namespaceFor(requested, toolDefault string) string {
	if requested != "" {
		return requested
	}
	if toolDefault != "" {
		return toolDefault
	}
	return DefaultNamespace
}
