package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"addonplan/internal/models"

	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
)

// KubernetesService talks to the target cluster
type KubernetesService struct {
	client kubernetes.Interface
	logger *zap.Logger
}

// NewKubernetesService builds a client from kubeconfig, optionally overriding the context
func NewKubernetesService(kubeconfig, kubeContext string, logger *zap.Logger) (*KubernetesService, error) {
	if kubeconfig == "" {
		kubeconfig = os.Getenv("KUBECONFIG")
	}
	if kubeconfig == "" {
		homeDir, _ := os.UserHomeDir()
		kubeconfig = filepath.Join(homeDir, ".kube", "config")
	}

	config, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
		&clientcmd.ClientConfigLoadingRules{ExplicitPath: kubeconfig},
		&clientcmd.ConfigOverrides{CurrentContext: kubeContext},
	).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load kubeconfig %s: %w", kubeconfig, err)
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}

	return NewKubernetesServiceForClient(clientset, logger), nil
}

// NewKubernetesServiceForClient wraps an existing client
func NewKubernetesServiceForClient(client kubernetes.Interface, logger *zap.Logger) *KubernetesService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KubernetesService{client: client, logger: logger}
}

// Client returns the underlying cluster client
func (s *KubernetesService) Client() kubernetes.Interface {
	return s.client
}

// CheckConnectivity verifies the cluster is reachable
func (s *KubernetesService) CheckConnectivity(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := s.client.CoreV1().Nodes().List(ctx, metav1.ListOptions{Limit: 1})
	return err == nil
}

// NodeCapabilities lists every node and maps its reported info to a capability record
func (s *KubernetesService) NodeCapabilities(ctx context.Context) ([]models.NodeCapability, error) {
	nodeList, err := s.client.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}

	records := make([]models.NodeCapability, 0, len(nodeList.Items))
	for _, n := range nodeList.Items {
		records = append(records, nodeCapability(n))
	}

	s.logger.Debug("discovered node capabilities", zap.Int("nodes", len(records)))
	return records, nil
}

func nodeCapability(node corev1.Node) models.NodeCapability {
	info := node.Status.NodeInfo

	arch := info.Architecture
	if arch == "" {
		arch = node.Labels[corev1.LabelArchStable]
	}
	osName := info.OperatingSystem
	if osName == "" {
		osName = node.Labels[corev1.LabelOSStable]
	}

	record := models.NodeCapability{
		NodeName:       node.Name,
		Arch:           arch,
		OS:             osName,
		Kernel:         info.KernelVersion,
		KubeletVersion: info.KubeletVersion,
	}
	if cpu, ok := node.Status.Capacity[corev1.ResourceCPU]; ok {
		record.Capacity.CPU = cpu.String()
	}
	if mem, ok := node.Status.Capacity[corev1.ResourceMemory]; ok {
		record.Capacity.Memory = mem.String()
	}
	return record
}

// FormatAge renders the time elapsed since t in kubectl style
func FormatAge(t time.Time) string {
	duration := time.Since(t)
	if duration.Hours() > 24 {
		days := int(duration.Hours() / 24)
		return fmt.Sprintf("%dd", days)
	}
	if duration.Hours() >= 1 {
		return fmt.Sprintf("%dh", int(duration.Hours()))
	}
	if duration.Minutes() >= 1 {
		return fmt.Sprintf("%dm", int(duration.Minutes()))
	}
	return fmt.Sprintf("%ds", int(duration.Seconds()))
}
