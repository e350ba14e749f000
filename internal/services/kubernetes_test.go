package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

// TestFormatAge tests the FormatAge helper function
func TestFormatAge(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		expected string
	}{
		{
			name:     "seconds",
			duration: 30 * time.Second,
			expected: "30s",
		},
		{
			name:     "minutes",
			duration: 15 * time.Minute,
			expected: "15m",
		},
		{
			name:     "hours",
			duration: 5 * time.Hour,
			expected: "5h",
		},
		{
			name:     "days",
			duration: 3 * 24 * time.Hour,
			expected: "3d",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testTime := time.Now().Add(-tt.duration)
			result := FormatAge(testTime)
			if result != tt.expected {
				t.Errorf("FormatAge() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func testNode(name, arch, cpu string) *corev1.Node {
	return &corev1.Node{
		ObjectMeta: metav1.ObjectMeta{Name: name},
		Status: corev1.NodeStatus{
			NodeInfo: corev1.NodeSystemInfo{
				Architecture:    arch,
				OperatingSystem: "linux",
				KernelVersion:   "6.1.0",
				KubeletVersion:  "v1.29.0",
			},
			Capacity: corev1.ResourceList{
				corev1.ResourceCPU:    resource.MustParse(cpu),
				corev1.ResourceMemory: resource.MustParse("8Gi"),
			},
		},
	}
}

func TestNodeCapabilities(t *testing.T) {
	client := fake.NewSimpleClientset(
		testNode("node-a", "amd64", "4"),
		testNode("node-b", "arm64", "500m"),
	)
	svc := NewKubernetesServiceForClient(client, nil)

	records, err := svc.NodeCapabilities(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	byName := map[string]string{}
	for _, r := range records {
		byName[r.NodeName] = r.Capacity.CPU
		assert.Equal(t, "linux", r.OS)
		assert.Equal(t, "v1.29.0", r.KubeletVersion)
		assert.Equal(t, "8Gi", r.Capacity.Memory)
	}
	assert.Equal(t, "4", byName["node-a"])
	assert.Equal(t, "500m", byName["node-b"])

	// Millicore capacity is not an integer and is skipped by the summary
	summary := Summarize(records)
	assert.Equal(t, 2, summary.Nodes)
	assert.Equal(t, 4, summary.TotalCPU)
	assert.Equal(t, []string{"amd64", "arm64"}, summary.Arches)
}

func TestNodeCapabilityFallsBackToLabels(t *testing.T) {
	node := corev1.Node{
		ObjectMeta: metav1.ObjectMeta{
			Name: "bare",
			Labels: map[string]string{
				corev1.LabelArchStable: "arm64",
				corev1.LabelOSStable:   "linux",
			},
		},
	}

	record := nodeCapability(node)
	assert.Equal(t, "arm64", record.Arch)
	assert.Equal(t, "linux", record.OS)
	assert.Empty(t, record.Capacity.CPU)
}

func TestCheckConnectivity(t *testing.T) {
	svc := NewKubernetesServiceForClient(fake.NewSimpleClientset(), nil)
	assert.True(t, svc.CheckConnectivity(context.Background()))
}
