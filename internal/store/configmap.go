package store

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

const managedByLabel = "app.kubernetes.io/managed-by"

// ConfigMapStore keeps values in Kubernetes ConfigMaps, one data field per key
type ConfigMapStore struct {
	client kubernetes.Interface
}

// NewConfigMapStore creates a store backed by the given cluster client
func NewConfigMapStore(client kubernetes.Interface) *ConfigMapStore {
	return &ConfigMapStore{client: client}
}

// Get reads the field of the addressed ConfigMap
func (s *ConfigMapStore) Get(ctx context.Context, key Key) ([]byte, bool, error) {
	cm, err := s.client.CoreV1().ConfigMaps(key.Namespace).Get(ctx, key.Name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read configmap %s/%s: %w", key.Namespace, key.Name, err)
	}

	value, ok := cm.Data[key.Field]
	if !ok {
		return nil, false, nil
	}
	return []byte(value), true, nil
}

// Put creates the ConfigMap when expectAbsent is set, otherwise replaces the field
func (s *ConfigMapStore) Put(ctx context.Context, key Key, value []byte, expectAbsent bool) error {
	if expectAbsent {
		return s.create(ctx, key, value)
	}

	configMaps := s.client.CoreV1().ConfigMaps(key.Namespace)
	cm, err := configMaps.Get(ctx, key.Name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return s.create(ctx, key, value)
	}
	if err != nil {
		return fmt.Errorf("failed to read configmap %s/%s: %w", key.Namespace, key.Name, err)
	}

	if cm.Data == nil {
		cm.Data = map[string]string{}
	}
	cm.Data[key.Field] = string(value)

	if _, err := configMaps.Update(ctx, cm, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("failed to update configmap %s/%s: %w", key.Namespace, key.Name, err)
	}
	return nil
}

func (s *ConfigMapStore) create(ctx context.Context, key Key, value []byte) error {
	cm := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:      key.Name,
			Namespace: key.Namespace,
			Labels:    map[string]string{managedByLabel: "addonplan"},
		},
		Data: map[string]string{key.Field: string(value)},
	}

	_, err := s.client.CoreV1().ConfigMaps(key.Namespace).Create(ctx, cm, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to create configmap %s/%s: %w", key.Namespace, key.Name, err)
	}
	return nil
}
