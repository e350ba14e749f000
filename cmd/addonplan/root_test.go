package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"addonplan/internal/models"
	"addonplan/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

// offlineEnv points every collaborator at local state so no cluster is needed
func offlineEnv(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("ADDONPLAN_CACHE_DIR", dir)
	t.Setenv("ADDONPLAN_LEDGER_BACKEND", "bolt")
	t.Setenv("ADDONPLAN_LEDGER_PATH", filepath.Join(dir, "ledger.db"))
	t.Setenv("ADDONPLAN_CAPABILITIES_SOURCE", "store")
	t.Setenv("ADDONPLAN_REGISTRY_URL", "")
	t.Setenv("ADDONPLAN_LOG_LEVEL", "error")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRootHasCommands(t *testing.T) {
	root := newRootCmd()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"install", "plan", "status", "list", "uninstall", "history", "rollback", "serve", "agent", "version"} {
		assert.Contains(t, names, want)
	}
	for _, flag := range []string{"namespace", "dry-run", "json", "config", "log-level", "output"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), flag)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: ExitCodeSuccess},
		{name: "generic", err: errors.New("boom"), want: ExitCodeError},
		{name: "unknown tool", err: fmt.Errorf("wrapped: %w", services.ErrUnknownTool), want: ExitCodeUnknownTool},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestListJSON(t *testing.T) {
	offlineEnv(t)

	out, err := run(t, "list", "--json")
	require.NoError(t, err)

	var statuses []models.ToolStatus
	require.NoError(t, json.Unmarshal([]byte(out), &statuses))
	require.NotEmpty(t, statuses)
	assert.Equal(t, "prometheus", statuses[0].Tool.Key)
	for _, s := range statuses {
		assert.False(t, s.Installed)
	}
}

func TestPlanYAML(t *testing.T) {
	offlineEnv(t)

	out, err := run(t, "plan", "monitoring", "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "chartKey: prometheus")
	assert.Contains(t, out, "engine: deterministic")
}

func TestPlanTable(t *testing.T) {
	offlineEnv(t)

	out, err := run(t, "plan", "monitoring")
	require.NoError(t, err)
	assert.Contains(t, out, "kube-prometheus-stack")
}

func TestInstallDryRun(t *testing.T) {
	offlineEnv(t)

	out, err := run(t, "install", "prometheus", "--dry-run", "--json", "--namespace", "metrics")
	require.NoError(t, err)

	var result models.InstallResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.True(t, result.DryRun)
	assert.Equal(t, "metrics", result.Namespace)
	require.Len(t, result.Commands, 3)
	assert.Equal(t, "helm upgrade --install prometheus prometheus-community/kube-prometheus-stack --namespace metrics --create-namespace",
		strings.Join(result.Commands[2], " "))
	assert.Nil(t, result.Event)

	out, err = run(t, "history", "prometheus", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)
}

func TestUnknownTool(t *testing.T) {
	offlineEnv(t)

	_, err := run(t, "install", "does-not-exist")
	require.Error(t, err)
	assert.Equal(t, ExitCodeUnknownTool, exitCode(err))

	_, err = run(t, "status", "does-not-exist")
	assert.ErrorIs(t, err, services.ErrUnknownTool)
}

func TestInvalidOutputFormat(t *testing.T) {
	offlineEnv(t)

	_, err := run(t, "list", "-o", "xml")
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "addonplan version dev"))
}

func TestRunServerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	server := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}

	done := make(chan error, 1)
	go func() { done <- runServer(ctx, server, zap.NewNop()) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRollbackRejectsBadRevision(t *testing.T) {
	offlineEnv(t)

	tests := []struct {
		name string
		args []string
	}{
		{name: "word", args: []string{"abc"}},
		{name: "zero", args: []string{"0"}},
		{name: "fraction", args: []string{"1.5"}},
		{name: "negative flag", args: []string{"--revision=-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"rollback", "loki", "--dry-run"}, tt.args...)
			_, err := run(t, args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid revision")
		})
	}

	_, err := run(t, "rollback", "loki", "2", "--revision", "3", "--dry-run")
	assert.Error(t, err)
}

func TestRollbackDryRunFlags(t *testing.T) {
	offlineEnv(t)

	out, err := run(t, "rollback", "loki", "--revision", "2", "--release", "loki-prod", "--wait", "--timeout", "5m", "--dry-run", "--json")
	require.NoError(t, err)

	var result models.InstallResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Len(t, result.Commands, 1)
	assert.Equal(t, "helm rollback loki-prod 2 --namespace logging --wait --timeout 5m", strings.Join(result.Commands[0], " "))

	_, err = run(t, "rollback", "loki", "--timeout", "soon", "--dry-run")
	assert.Error(t, err)
}

func TestUninstallDryRunFlags(t *testing.T) {
	offlineEnv(t)

	out, err := run(t, "uninstall", "loki", "--release", "loki-prod", "--wait", "--timeout", "2m30s", "--no-hooks", "--dry-run", "--json")
	require.NoError(t, err)

	var result models.InstallResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Len(t, result.Commands, 1)
	assert.Equal(t, "helm uninstall loki-prod --namespace logging --wait --timeout 2m30s --no-hooks", strings.Join(result.Commands[0], " "))
}

func TestListHelmAndFull(t *testing.T) {
	offlineEnv(t)

	out, err := run(t, "list", "--helm", "--dry-run", "--json")
	require.NoError(t, err)
	var combined struct {
		Tools        []models.ToolStatus `json:"tools"`
		HelmReleases []any               `json:"helmReleases"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &combined))
	assert.NotEmpty(t, combined.Tools)
	assert.Empty(t, combined.HelmReleases)

	out, err = run(t, "list", "--full", "--json")
	require.NoError(t, err)
	var registry models.ToolRegistry
	require.NoError(t, json.Unmarshal([]byte(out), &registry))
	_, ok := registry.Category("monitoring")
	assert.True(t, ok)
}

func TestHistoryHelmDryRun(t *testing.T) {
	offlineEnv(t)

	out, err := run(t, "history", "loki", "--helm", "--max", "3", "--dry-run", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)
}

func TestPublishCapabilities(t *testing.T) {
	ctx := context.Background()
	client := fake.NewSimpleClientset(
		&corev1.Node{ObjectMeta: metav1.ObjectMeta{Name: "kind-control-plane"}},
		&corev1.Node{ObjectMeta: metav1.ObjectMeta{Name: "kind-worker"}},
	)
	kube := services.NewKubernetesServiceForClient(client, nil)

	names, err := publishCapabilities(ctx, kube, "addonplan", "", true, zap.NewNop())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"addonplan-node-kind-control-plane", "addonplan-node-kind-worker"}, names)
	_, err = client.CoreV1().Namespaces().Get(ctx, "addonplan", metav1.GetOptions{})
	assert.Error(t, err)

	names, err = publishCapabilities(ctx, kube, "addonplan", "kind-worker", false, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{"addonplan-node-kind-worker"}, names)

	source := services.NewConfigMapCapabilitySource(client, "addonplan", kube, nil)
	records, err := source.NodeCapabilities(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "kind-worker", records[0].NodeName)
	assert.Equal(t, services.ProfileKind, services.DetectClusterProfile(records))

	_, err = publishCapabilities(ctx, kube, "addonplan", "missing", false, zap.NewNop())
	assert.Error(t, err)
}
