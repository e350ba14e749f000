package services

import (
	"context"
	"testing"

	"addonplan/internal/models"
	"addonplan/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarizeToleratesBadCPU(t *testing.T) {
	records := []models.NodeCapability{
		{NodeName: "a", Arch: "amd64", OS: "linux", Capacity: models.NodeCapacity{CPU: "4"}},
		{NodeName: "b", Arch: "amd64", OS: "linux", Capacity: models.NodeCapacity{CPU: "not-a-number"}},
		{NodeName: "c", Arch: "arm64", OS: "linux", Capacity: models.NodeCapacity{CPU: "2"}},
		{NodeName: "d"},
	}

	summary := Summarize(records)
	assert.Equal(t, 4, summary.Nodes)
	assert.Equal(t, 6, summary.TotalCPU)
	assert.Equal(t, []string{"amd64", "arm64"}, summary.Arches)
	assert.Equal(t, []string{"linux"}, summary.OSes)
}

func TestSummarizeEmpty(t *testing.T) {
	summary := Summarize(nil)
	assert.Equal(t, 0, summary.Nodes)
	assert.Equal(t, 0, summary.TotalCPU)
	assert.NotNil(t, summary.Arches)
	assert.NotNil(t, summary.OSes)
	assert.Empty(t, summary.Arches)
}

func TestSummarizeIsOrderIndependent(t *testing.T) {
	a := []models.NodeCapability{
		{Arch: "arm64", OS: "linux", Capacity: models.NodeCapacity{CPU: " 8 "}},
		{Arch: "amd64", OS: "windows", Capacity: models.NodeCapacity{CPU: "1"}},
	}
	b := []models.NodeCapability{a[1], a[0]}

	assert.Equal(t, Summarize(a), Summarize(b))
	assert.Equal(t, 9, Summarize(a).TotalCPU)
}

func TestStoreCapabilitySource(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	key := store.Key{Namespace: "kube-system", Name: "addonplan-nodes", Field: "nodes.json"}
	source := NewStoreCapabilitySource(s, key)

	records, err := source.NodeCapabilities(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)

	payload := `[{"nodeName":"n1","arch":"amd64","os":"linux","capacity":{"cpu":"2","memory":"4Gi"}}]`
	require.NoError(t, s.Put(ctx, key, []byte(payload), true))

	records, err = source.NodeCapabilities(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "n1", records[0].NodeName)
	assert.Equal(t, "2", records[0].Capacity.CPU)

	require.NoError(t, s.Put(ctx, key, []byte("{broken"), false))
	_, err = source.NodeCapabilities(ctx)
	assert.Error(t, err)
}
