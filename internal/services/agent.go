package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"addonplan/internal/models"

	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/client-go/kubernetes"
)

// Per-node capability ConfigMaps written by the publishing agent
const (
	CapabilityLabelKey   = "app"
	CapabilityLabelValue = "addonplan-node-capabilities"
	CapabilityField      = "capabilities.json"
	capabilityNamePrefix = "addonplan-node-"
)

// Cluster profiles reported by DetectClusterProfile
const (
	ProfileMinikube = "minikube"
	ProfileKind     = "kind"
	ProfileEKS      = "eks"
	ProfileGeneric  = "generic"
)

// ConfigMapCapabilitySource reads per-node records published as labelled ConfigMaps.
// When none are published yet it asks fallback.
type ConfigMapCapabilitySource struct {
	client    kubernetes.Interface
	namespace string
	fallback  CapabilitySource
	logger    *zap.Logger
}

// NewConfigMapCapabilitySource creates a source reading namespace; fallback may be nil
func NewConfigMapCapabilitySource(client kubernetes.Interface, namespace string, fallback CapabilitySource, logger *zap.Logger) *ConfigMapCapabilitySource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConfigMapCapabilitySource{client: client, namespace: namespace, fallback: fallback, logger: logger}
}

// NodeCapabilities returns the published records ordered by node name.
// ConfigMaps without the field or with a malformed record are skipped.
func (s *ConfigMapCapabilitySource) NodeCapabilities(ctx context.Context) ([]models.NodeCapability, error) {
	selector := labels.Set{CapabilityLabelKey: CapabilityLabelValue}.AsSelector().String()
	list, err := s.client.CoreV1().ConfigMaps(s.namespace).List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil && !apierrors.IsNotFound(err) {
		return nil, fmt.Errorf("failed to list capability configmaps in %s: %w", s.namespace, err)
	}

	records := []models.NodeCapability{}
	if list != nil {
		for _, cm := range list.Items {
			data := strings.TrimSpace(cm.Data[CapabilityField])
			if data == "" {
				continue
			}
			var record models.NodeCapability
			if err := json.Unmarshal([]byte(data), &record); err != nil {
				s.logger.Warn("skipping malformed capability record", zap.String("configmap", cm.Name), zap.Error(err))
				continue
			}
			records = append(records, record)
		}
	}

	if len(records) > 0 {
		sort.Slice(records, func(i, j int) bool { return records[i].NodeName < records[j].NodeName })
		s.logger.Debug("read published capabilities", zap.Int("nodes", len(records)))
		return records, nil
	}
	if s.fallback == nil {
		return records, nil
	}
	s.logger.Debug("no published capabilities, querying nodes", zap.String("namespace", s.namespace))
	return s.fallback.NodeCapabilities(ctx)
}

// CapabilityPublisher writes one labelled ConfigMap per node record
type CapabilityPublisher struct {
	client    kubernetes.Interface
	namespace string
	logger    *zap.Logger
}

// NewCapabilityPublisher creates a publisher writing into namespace
func NewCapabilityPublisher(client kubernetes.Interface, namespace string, logger *zap.Logger) *CapabilityPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CapabilityPublisher{client: client, namespace: namespace, logger: logger}
}

// EnsureNamespace creates the target namespace unless it already exists
func (p *CapabilityPublisher) EnsureNamespace(ctx context.Context) error {
	ns := &corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: p.namespace}}
	_, err := p.client.CoreV1().Namespaces().Create(ctx, ns, metav1.CreateOptions{})
	switch {
	case err == nil:
		p.logger.Info("created namespace", zap.String("namespace", p.namespace))
		return nil
	case apierrors.IsAlreadyExists(err):
		return nil
	default:
		return fmt.Errorf("failed to create namespace %s: %w", p.namespace, err)
	}
}

// Publish upserts the ConfigMap of every record and returns their names
func (p *CapabilityPublisher) Publish(ctx context.Context, records []models.NodeCapability) ([]string, error) {
	names := make([]string, 0, len(records))
	for _, record := range records {
		if record.NodeName == "" {
			return names, fmt.Errorf("capability record without node name")
		}
		name, err := p.upsert(ctx, record)
		if err != nil {
			return names, err
		}
		names = append(names, name)
	}
	return names, nil
}

func (p *CapabilityPublisher) upsert(ctx context.Context, record models.NodeCapability) (string, error) {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode capabilities of %s: %w", record.NodeName, err)
	}

	cm := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:      CapabilityConfigMapName(record.NodeName),
			Namespace: p.namespace,
			Labels:    map[string]string{CapabilityLabelKey: CapabilityLabelValue},
		},
		Data: map[string]string{CapabilityField: string(data)},
	}

	configMaps := p.client.CoreV1().ConfigMaps(p.namespace)
	_, err = configMaps.Create(ctx, cm, metav1.CreateOptions{})
	if err == nil {
		p.logger.Info("published capabilities", zap.String("node", record.NodeName), zap.String("configmap", cm.Name))
		return cm.Name, nil
	}
	if !apierrors.IsAlreadyExists(err) {
		return "", fmt.Errorf("failed to create configmap %s/%s: %w", p.namespace, cm.Name, err)
	}

	if _, err := configMaps.Update(ctx, cm, metav1.UpdateOptions{}); err != nil {
		return "", fmt.Errorf("failed to update configmap %s/%s: %w", p.namespace, cm.Name, err)
	}
	p.logger.Info("updated capabilities", zap.String("node", record.NodeName), zap.String("configmap", cm.Name))
	return cm.Name, nil
}

// CapabilityConfigMapName is the ConfigMap holding the record of node
func CapabilityConfigMapName(node string) string {
	return capabilityNamePrefix + strings.ToLower(node)
}

// DetectClusterProfile guesses the distribution from node names alone
func DetectClusterProfile(records []models.NodeCapability) string {
	names := make([]string, 0, len(records))
	for _, r := range records {
		names = append(names, strings.ToLower(r.NodeName))
	}

	for _, n := range names {
		if strings.HasPrefix(n, "minikube") {
			return ProfileMinikube
		}
	}
	for _, n := range names {
		if strings.Contains(n, "kind-control-plane") || strings.HasPrefix(n, "kind-") {
			return ProfileKind
		}
	}
	for _, n := range names {
		// EC2 private DNS names
		if strings.HasPrefix(n, "ip-") {
			return ProfileEKS
		}
	}
	return ProfileGeneric
}
