package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ToolDescriptor is the static metadata of one installable add-on
type ToolDescriptor struct {
	Key          string            `json:"key"`
	Name         string            `json:"name"`
	Namespace    string            `json:"namespace"`
	HelmRepoName string            `json:"helm_repo_name"`
	HelmRepoURL  string            `json:"helm_repo_url"`
	HelmChart    string            `json:"helm_chart"`
	Category     string            `json:"category,omitempty"`
	Strengths    []string          `json:"strengths,omitempty"`
	Requirements *ToolRequirements `json:"requirements,omitempty"`
}

// ChartRef returns the chart reference in "<repo>/<chart>" form.
// Charts that are already qualified or OCI references are returned as is.
func (t ToolDescriptor) ChartRef() string {
	if strings.HasPrefix(t.HelmChart, "oci://") || strings.Contains(t.HelmChart, "/") || t.HelmRepoName == "" {
		return t.HelmChart
	}
	return t.HelmRepoName + "/" + t.HelmChart
}

// ToolRequirements are optional constraints a cluster must meet for a tool to fit
type ToolRequirements struct {
	MinNodes int      `json:"min_nodes,omitempty"`
	MinCPU   int      `json:"min_cpu,omitempty"`
	Arches   []string `json:"arches,omitempty"`
	OSes     []string `json:"oses,omitempty"`
}

// Satisfied reports whether the summary meets every requirement.
// A nil receiver always fits.
func (r *ToolRequirements) Satisfied(s ClusterSummary) bool {
	if r == nil {
		return true
	}
	if r.MinNodes > 0 && s.Nodes < r.MinNodes {
		return false
	}
	if r.MinCPU > 0 && s.TotalCPU < r.MinCPU {
		return false
	}
	if len(r.Arches) > 0 && !subset(s.Arches, r.Arches) {
		return false
	}
	if len(r.OSes) > 0 && !subset(s.OSes, r.OSes) {
		return false
	}
	return true
}

// subset reports whether every element of have appears in allowed
func subset(have, allowed []string) bool {
	for _, h := range have {
		found := false
		for _, a := range allowed {
			if h == a {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// ToolCategory is one named group of tools, in registry order
type ToolCategory struct {
	Name  string
	Tools []ToolDescriptor
}

// ToolEntry pairs a tool with the category it was found in
type ToolEntry struct {
	Category string         `json:"category"`
	Tool     ToolDescriptor `json:"tool"`
}

// ToolRegistry maps category names to ordered tool lists.
// Category order follows the source JSON object so lookups are deterministic.
type ToolRegistry struct {
	Categories []ToolCategory
}

// Category returns the tools of a named category
func (r *ToolRegistry) Category(name string) ([]ToolDescriptor, bool) {
	for _, c := range r.Categories {
		if c.Name == name {
			return c.Tools, true
		}
	}
	return nil, false
}

// Find scans every category in order and returns the first tool with the given key.
// Duplicate keys across categories are undefined: whichever comes first wins.
func (r *ToolRegistry) Find(key string) (ToolEntry, bool) {
	for _, c := range r.Categories {
		for _, t := range c.Tools {
			if t.Key == key {
				return ToolEntry{Category: c.Name, Tool: t}, true
			}
		}
	}
	return ToolEntry{}, false
}

// Tools returns every tool paired with its category, in registry order
func (r *ToolRegistry) Tools() []ToolEntry {
	var entries []ToolEntry
	for _, c := range r.Categories {
		for _, t := range c.Tools {
			entries = append(entries, ToolEntry{Category: c.Name, Tool: t})
		}
	}
	return entries
}

// UnmarshalJSON decodes a top-level object of category -> tool array, keeping key order
func (r *ToolRegistry) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("registry must be a JSON object")
	}

	var categories []ToolCategory
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected registry key %v", tok)
		}

		var tools []ToolDescriptor
		if err := dec.Decode(&tools); err != nil {
			return fmt.Errorf("category %s: %w", name, err)
		}
		for i, t := range tools {
			if t.Key == "" {
				return fmt.Errorf("category %s: tool %d has no key", name, i)
			}
		}
		categories = append(categories, ToolCategory{Name: name, Tools: tools})
	}

	if _, err := dec.Token(); err != nil {
		return err
	}

	r.Categories = categories
	return nil
}

// MarshalJSON encodes the registry as an object, preserving category order
func (r ToolRegistry) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.Categories {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(c.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')

		tools := c.Tools
		if tools == nil {
			tools = []ToolDescriptor{}
		}
		encoded, err := json.Marshal(tools)
		if err != nil {
			return nil, err
		}
		buf.Write(encoded)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// CacheMetadata tracks the staleness of the on-disk registry cache
type CacheMetadata struct {
	FetchedAt *float64 `json:"fetchedAt"`
	ETag      *string  `json:"etag"`
}
