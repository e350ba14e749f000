package services

import (
	"context"
	"errors"
	"testing"

	"addonplan/internal/models"
	"addonplan/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/client-go/kubernetes/fake"
)

const monitoringRegistry = `{
	"monitoring": [
		{"key": "prometheus", "name": "Prometheus", "namespace": "monitoring",
		 "helm_repo_name": "prometheus-community", "helm_repo_url": "https://prometheus-community.github.io/helm-charts",
		 "helm_chart": "kube-prometheus-stack"},
		{"key": "opentelemetry", "name": "OpenTelemetry", "namespace": "observability",
		 "helm_repo_name": "open-telemetry", "helm_repo_url": "https://open-telemetry.github.io/opentelemetry-helm-charts",
		 "helm_chart": "opentelemetry-collector"}
	],
	"logging": [
		{"key": "loki", "name": "Loki", "namespace": "logging",
		 "helm_repo_name": "grafana", "helm_repo_url": "https://grafana.github.io/helm-charts", "helm_chart": "loki"}
	]
}`

// staticCapabilities serves fixed node records
type staticCapabilities struct {
	records []models.NodeCapability
	err     error
}

func (s staticCapabilities) NodeCapabilities(context.Context) ([]models.NodeCapability, error) {
	return s.records, s.err
}

var twoCPUNode = staticCapabilities{records: []models.NodeCapability{
	{NodeName: "node-1", Arch: "amd64", OS: "linux", Capacity: models.NodeCapacity{CPU: "2", Memory: "8Gi"}},
}}

type orchestratorFixture struct {
	orchestrator *Orchestrator
	executor     *recordingExecutor
	ledger       *Ledger
}

func newOrchestratorFixture(t *testing.T, s store.KeyValueStore) *orchestratorFixture {
	t.Helper()
	if s == nil {
		s = store.NewMemoryStore()
	}
	executor := &recordingExecutor{}
	ledger := NewLedger(s, DefaultLedgerKey, nil, nil)
	registry := NewRegistryCache(RegistryCacheOptions{Packaged: []byte(monitoringRegistry)})

	o := NewOrchestrator(OrchestratorOptions{
		Registry:     registry,
		Capabilities: twoCPUNode,
		Engine:       DeterministicEngine{},
		Ledger:       ledger,
		Executor:     executor,
	})
	o.newID = func() string { return "op-1" }
	return &orchestratorFixture{orchestrator: o, executor: executor, ledger: ledger}
}

func TestOrchestratorInstallByGoal(t *testing.T) {
	ctx := context.Background()
	f := newOrchestratorFixture(t, nil)

	result, err := f.orchestrator.Install(ctx, "monitoring", InstallOptions{})
	require.NoError(t, err)
	require.NotNil(t, result.Plan)
	assert.Equal(t, "prometheus", result.Plan.Decision.ChartKey)
	assert.Equal(t, 1, result.Plan.Summary.Nodes)
	assert.Equal(t, 2, result.Plan.Summary.TotalCPU)
	assert.Equal(t, "op-1", result.OperationID)
	assert.Equal(t, "monitoring", result.Namespace)

	require.Len(t, f.executor.commands, 3)
	assert.Equal(t, HelmUpgradeInstall("prometheus", "prometheus-community/kube-prometheus-stack", "monitoring"), f.executor.commands[2])

	ledger, err := f.ledger.Read(ctx)
	require.NoError(t, err)
	require.Len(t, ledger.Installs, 1)
	event := ledger.Installs[0]
	assert.Equal(t, "prometheus", event.ToolKey)
	assert.Equal(t, models.ActionInstallOrUpgrade, event.LastAction)
	require.NotNil(t, event.Chart)
	assert.Equal(t, "prometheus-community/kube-prometheus-stack", *event.Chart)
}

func TestOrchestratorInstallByKeyOnConfigMapStore(t *testing.T) {
	ctx := context.Background()
	f := newOrchestratorFixture(t, store.NewConfigMapStore(fake.NewSimpleClientset()))

	_, err := f.orchestrator.Install(ctx, "loki", InstallOptions{Namespace: "observability"})
	require.NoError(t, err)
	_, err = f.orchestrator.Install(ctx, "opentelemetry", InstallOptions{})
	require.NoError(t, err)

	ledger, err := f.ledger.Read(ctx)
	require.NoError(t, err)
	require.Len(t, ledger.Installs, 2)
	assert.Equal(t, "observability", ledger.Installs[0].Namespace)
	assert.Equal(t, "opentelemetry", ledger.Installs[1].ToolKey)
}

func TestOrchestratorUnknownToolWritesNothing(t *testing.T) {
	ctx := context.Background()
	f := newOrchestratorFixture(t, nil)

	_, err := f.orchestrator.Install(ctx, "does-not-exist", InstallOptions{})
	assert.ErrorIs(t, err, ErrUnknownTool)

	for _, call := range []func() error{
		func() error { _, err := f.orchestrator.Uninstall(ctx, "does-not-exist", InstallOptions{}); return err },
		func() error { _, err := f.orchestrator.Status(ctx, "does-not-exist"); return err },
		func() error { _, err := f.orchestrator.History(ctx, "does-not-exist"); return err },
		func() error { _, err := f.orchestrator.Rollback(ctx, "does-not-exist", 0, InstallOptions{}); return err },
		func() error { _, err := f.orchestrator.Plan(ctx, "does-not-exist"); return err },
	} {
		assert.ErrorIs(t, call(), ErrUnknownTool)
	}

	assert.Empty(t, f.executor.commands)
	ledger, err := f.ledger.Read(ctx)
	require.NoError(t, err)
	assert.Empty(t, ledger.Installs)
}

func TestOrchestratorDryRun(t *testing.T) {
	ctx := context.Background()
	f := newOrchestratorFixture(t, nil)

	result, err := f.orchestrator.Install(ctx, "prometheus", InstallOptions{DryRun: true})
	require.NoError(t, err)
	assert.True(t, result.DryRun)
	assert.Len(t, result.Commands, 3)
	assert.Nil(t, result.Event)
	assert.Empty(t, f.executor.commands)

	ledger, err := f.ledger.Read(ctx)
	require.NoError(t, err)
	assert.Empty(t, ledger.Installs)
}

func TestOrchestratorFailedInstallWritesNothing(t *testing.T) {
	ctx := context.Background()
	f := newOrchestratorFixture(t, nil)
	f.executor.failOn = "upgrade --install"

	_, err := f.orchestrator.Install(ctx, "prometheus", InstallOptions{})
	assert.Error(t, err)

	ledger, err := f.ledger.Read(ctx)
	require.NoError(t, err)
	assert.Empty(t, ledger.Installs)
}

func TestOrchestratorUninstallUsesLedgerNamespace(t *testing.T) {
	ctx := context.Background()
	f := newOrchestratorFixture(t, nil)

	_, err := f.orchestrator.Install(ctx, "prometheus", InstallOptions{Namespace: "metrics"})
	require.NoError(t, err)

	result, err := f.orchestrator.Uninstall(ctx, "prometheus", InstallOptions{})
	require.NoError(t, err)
	assert.Equal(t, "metrics", result.Namespace)
	assert.Equal(t, HelmUninstall("prometheus", "metrics", HelmFlags{}), f.executor.commands[len(f.executor.commands)-1])
	require.NotNil(t, result.Event)
	assert.Nil(t, result.Event.Chart)

	history, err := f.orchestrator.History(ctx, "prometheus")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.ActionUninstall, history[0].LastAction)

	status, err := f.orchestrator.Status(ctx, "prometheus")
	require.NoError(t, err)
	assert.False(t, status.Installed)
}

func TestOrchestratorStatusAndList(t *testing.T) {
	ctx := context.Background()
	f := newOrchestratorFixture(t, nil)

	_, err := f.orchestrator.Install(ctx, "loki", InstallOptions{})
	require.NoError(t, err)

	f.executor.output = `{"info":{"status":"deployed"}}` + "\n"
	status, err := f.orchestrator.Status(ctx, "loki")
	require.NoError(t, err)
	assert.True(t, status.Installed)
	assert.Equal(t, `{"info":{"status":"deployed"}}`, status.ReleaseStatus)
	assert.Equal(t, HelmStatus("loki", "logging"), f.executor.commands[len(f.executor.commands)-1])

	f.executor.failOn = "helm status"
	status, err = f.orchestrator.Status(ctx, "loki")
	require.NoError(t, err)
	assert.NotEmpty(t, status.StatusError)

	list, err := f.orchestrator.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "prometheus", list[0].Tool.Key)
	assert.False(t, list[0].Installed)
	assert.Equal(t, "loki", list[2].Tool.Key)
	assert.True(t, list[2].Installed)
}

func TestOrchestratorRollbackRecordsNothing(t *testing.T) {
	ctx := context.Background()
	f := newOrchestratorFixture(t, nil)

	_, err := f.orchestrator.Install(ctx, "loki", InstallOptions{})
	require.NoError(t, err)

	result, err := f.orchestrator.Rollback(ctx, "loki", 2, InstallOptions{})
	require.NoError(t, err)
	assert.Equal(t, HelmRollback("loki", 2, "logging", HelmFlags{}), result.Commands[0])

	_, err = f.orchestrator.Rollback(ctx, "loki", -1, InstallOptions{})
	assert.Error(t, err)

	ledger, err := f.ledger.Read(ctx)
	require.NoError(t, err)
	assert.Len(t, ledger.Installs, 1)
}

func TestOrchestratorCapabilityFailure(t *testing.T) {
	f := newOrchestratorFixture(t, nil)
	f.orchestrator.capabilities = staticCapabilities{err: errors.New("forbidden")}

	_, err := f.orchestrator.Plan(context.Background(), "monitoring")
	assert.Error(t, err)
}

func TestOrchestratorReleaseOverrides(t *testing.T) {
	ctx := context.Background()
	f := newOrchestratorFixture(t, nil)

	_, err := f.orchestrator.Install(ctx, "loki", InstallOptions{})
	require.NoError(t, err)

	flags := HelmFlags{Wait: true, Timeout: "5m", NoHooks: true}
	result, err := f.orchestrator.Uninstall(ctx, "loki", InstallOptions{Release: "loki-prod", DryRun: true, Helm: flags})
	require.NoError(t, err)
	assert.Equal(t, "loki-prod", result.Release)
	assert.Equal(t, "logging", result.Namespace)
	assert.Equal(t,
		[]string{"helm", "uninstall", "loki-prod", "--namespace", "logging", "--wait", "--timeout", "5m", "--no-hooks"},
		result.Commands[0])

	result, err = f.orchestrator.Rollback(ctx, "loki", 0, InstallOptions{Release: "loki-prod", DryRun: true, Helm: HelmFlags{Wait: true, Timeout: "2m30s"}})
	require.NoError(t, err)
	assert.Equal(t,
		[]string{"helm", "rollback", "loki-prod", "--namespace", "logging", "--wait", "--timeout", "2m30s"},
		result.Commands[0])
}

func TestOrchestratorHelmPassthrough(t *testing.T) {
	ctx := context.Background()
	f := newOrchestratorFixture(t, nil)

	out, err := f.orchestrator.HelmReleases(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "[]", out)
	assert.Equal(t, HelmList(""), f.executor.commands[len(f.executor.commands)-1])

	f.executor.output = `[{"name":"loki","namespace":"logging"}]`
	out, err = f.orchestrator.HelmReleases(ctx, "logging")
	require.NoError(t, err)
	assert.Equal(t, `[{"name":"loki","namespace":"logging"}]`, out)

	f.executor.output = `[{"revision":1,"status":"deployed"}]`
	out, err = f.orchestrator.ReleaseHistory(ctx, "loki", 5, InstallOptions{})
	require.NoError(t, err)
	assert.Equal(t, `[{"revision":1,"status":"deployed"}]`, out)
	assert.Equal(t, HelmHistory("loki", "logging", 5), f.executor.commands[len(f.executor.commands)-1])

	_, err = f.orchestrator.ReleaseHistory(ctx, "does-not-exist", 5, InstallOptions{})
	assert.True(t, errors.Is(err, ErrUnknownTool))

	f.executor.failOn = "helm list"
	_, err = f.orchestrator.HelmReleases(ctx, "")
	assert.Error(t, err)
}

func TestOrchestratorReportsClusterProfile(t *testing.T) {
	ctx := context.Background()
	f := newOrchestratorFixture(t, nil)
	f.orchestrator.capabilities = staticCapabilities{records: []models.NodeCapability{
		{NodeName: "kind-control-plane", Arch: "amd64", OS: "linux", Capacity: models.NodeCapacity{CPU: "4"}},
	}}

	plan, err := f.orchestrator.Plan(ctx, "monitoring")
	require.NoError(t, err)
	assert.Equal(t, ProfileKind, plan.Profile)

	report, err := f.orchestrator.Cluster(ctx)
	require.NoError(t, err)
	assert.Equal(t, ProfileKind, report.Profile)
	assert.Equal(t, 4, report.Summary.TotalCPU)
	require.Len(t, report.Nodes, 1)
}
