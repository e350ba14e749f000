package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"addonplan/internal/models"
	"addonplan/internal/store"
)

// CapabilitySource produces the per-node capability records of a cluster
type CapabilitySource interface {
	NodeCapabilities(ctx context.Context) ([]models.NodeCapability, error)
}

// Summarize reduces node records to a cluster summary. It never fails:
// unparsable CPU values contribute zero.
func Summarize(records []models.NodeCapability) models.ClusterSummary {
	arches := map[string]struct{}{}
	oses := map[string]struct{}{}
	total := 0

	for _, r := range records {
		if r.Arch != "" {
			arches[r.Arch] = struct{}{}
		}
		if r.OS != "" {
			oses[r.OS] = struct{}{}
		}
		if cpu, err := strconv.Atoi(strings.TrimSpace(r.Capacity.CPU)); err == nil {
			total += cpu
		}
	}

	return models.ClusterSummary{
		Nodes:    len(records),
		Arches:   sortedKeys(arches),
		OSes:     sortedKeys(oses),
		TotalCPU: total,
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// StoreCapabilitySource reads records an external discovery agent wrote to the store
type StoreCapabilitySource struct {
	store store.KeyValueStore
	key   store.Key
}

// NewStoreCapabilitySource reads a JSON array of node records stored under key
func NewStoreCapabilitySource(s store.KeyValueStore, key store.Key) *StoreCapabilitySource {
	return &StoreCapabilitySource{store: s, key: key}
}

// NodeCapabilities returns the stored records, or none when nothing has been written yet
func (s *StoreCapabilitySource) NodeCapabilities(ctx context.Context) ([]models.NodeCapability, error) {
	data, ok, err := s.store.Get(ctx, s.key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []models.NodeCapability{}, nil
	}

	var records []models.NodeCapability
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse capability records at %s: %w", s.key, err)
	}
	return records, nil
}
