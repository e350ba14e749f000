package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"addonplan/internal/metrics"
	"addonplan/internal/models"

	"go.uber.org/zap"
)

// Engine names reported on decisions
const (
	EngineDeterministic = "deterministic"
	EngineAssisted      = "assisted"
)

const (
	// DefaultMaxReasonLength caps the reason accepted from the inference collaborator
	DefaultMaxReasonLength = 300
	defaultConfidence      = 0.5
	maxReasonSentences     = 2
)

// DecisionEngine chooses one candidate tool for a goal
type DecisionEngine interface {
	Decide(ctx context.Context, goal string, summary models.ClusterSummary, candidates []models.ToolDescriptor) (models.Decision, error)
}

// DeterministicEngine applies a fixed policy: the first candidate whose requirements
// the cluster meets, or the first candidate when none fit.
type DeterministicEngine struct{}

// Decide never fails for a non-empty candidate list
func (DeterministicEngine) Decide(_ context.Context, goal string, summary models.ClusterSummary, candidates []models.ToolDescriptor) (models.Decision, error) {
	if len(candidates) == 0 {
		return models.Decision{}, ErrNoCandidates
	}

	for _, c := range candidates {
		if c.Requirements.Satisfied(summary) {
			return models.Decision{
				ChartKey:   c.Key,
				Reason:     fmt.Sprintf("%s is the first %s option that fits a %d-node cluster", c.Name, goal, summary.Nodes),
				Confidence: 0.8,
				Engine:     EngineDeterministic,
			}, nil
		}
	}

	first := candidates[0]
	return models.Decision{
		ChartKey:   first.Key,
		Reason:     fmt.Sprintf("no %s option meets its cluster requirements; defaulting to %s", goal, first.Name),
		Confidence: 0.3,
		Engine:     EngineDeterministic,
	}, nil
}

// Inference is a text-generation collaborator
type Inference interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// AssistedEngine asks an inference collaborator to choose and validates the answer.
// Every failure path degrades to the deterministic policy with zero confidence.
type AssistedEngine struct {
	inference       Inference
	fallback        DeterministicEngine
	maxReasonLength int
	logger          *zap.Logger
	metrics         *metrics.Metrics
}

// NewAssistedEngine creates an engine; a nil inference makes every decision degrade
func NewAssistedEngine(inference Inference, maxReasonLength int, logger *zap.Logger, m *metrics.Metrics) *AssistedEngine {
	if maxReasonLength <= 0 {
		maxReasonLength = DefaultMaxReasonLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.Nop()
	}
	return &AssistedEngine{
		inference:       inference,
		maxReasonLength: maxReasonLength,
		logger:          logger,
		metrics:         m,
	}
}

const assistedSystemPrompt = "You select Kubernetes add-ons. Reply with a single JSON object only, " +
	"matching output_schema, choosing chartKey from allowed_tool_keys. " +
	"Keep reason to at most two sentences."

// Decide returns a validated decision whose ChartKey is always one of the candidates
func (e *AssistedEngine) Decide(ctx context.Context, goal string, summary models.ClusterSummary, candidates []models.ToolDescriptor) (models.Decision, error) {
	if len(candidates) == 0 {
		return models.Decision{}, ErrNoCandidates
	}

	if e.inference == nil {
		return e.degrade(ctx, goal, summary, candidates, "assisted decision unavailable: no inference provider configured")
	}

	prompt, err := buildDecisionRequest(goal, summary, candidates)
	if err != nil {
		return e.degrade(ctx, goal, summary, candidates, fmt.Sprintf("assisted decision unavailable: %v", err))
	}

	raw, err := e.inference.Complete(ctx, assistedSystemPrompt, prompt)
	if err != nil {
		e.logger.Warn("inference call failed", zap.Error(err))
		return e.degrade(ctx, goal, summary, candidates, fmt.Sprintf("assisted decision unavailable: %v", err))
	}

	obj, ok := parseDecisionObject(raw)
	if !ok {
		e.logger.Warn("inference output unparsable", zap.Int("length", len(raw)))
		return e.degrade(ctx, goal, summary, candidates, "assisted output unparsable")
	}

	key, _ := obj["chartKey"].(string)
	if !containsKey(candidates, key) {
		e.logger.Warn("inference chose a key outside the candidates", zap.String("chartKey", key))
		return e.degrade(ctx, goal, summary, candidates, fmt.Sprintf("assisted output chose invalid key %q", key))
	}

	reason, _ := obj["reason"].(string)
	e.metrics.ObserveAssistedDecision(false)
	return models.Decision{
		ChartKey:   key,
		Reason:     truncateRunes(strings.TrimSpace(reason), e.maxReasonLength),
		Confidence: clampConfidence(obj["confidence"]),
		Engine:     EngineAssisted,
	}, nil
}

// degrade returns the deterministic decision with zero confidence and the cause in the reason
func (e *AssistedEngine) degrade(ctx context.Context, goal string, summary models.ClusterSummary, candidates []models.ToolDescriptor, cause string) (models.Decision, error) {
	decision, err := e.fallback.Decide(ctx, goal, summary, candidates)
	if err != nil {
		return models.Decision{}, err
	}
	decision.Confidence = 0.0
	decision.Reason = degradedReason(cause, decision.Reason, e.maxReasonLength)
	e.metrics.ObserveAssistedDecision(true)
	return decision, nil
}

// degradedReason joins cause and the fallback reason within max runes.
// The cause is cut first so the fallback explanation survives.
func degradedReason(cause, fallback string, max int) string {
	cause = strings.Join(strings.Fields(cause), " ")
	budget := max - utf8.RuneCountInString(fallback) - 2
	if budget > 0 {
		cause = strings.TrimSpace(truncateRunes(cause, budget))
	}
	return truncateRunes(cause+"; "+fallback, max)
}

// decisionRequest is the payload sent to the inference collaborator
type decisionRequest struct {
	Goal            string                `json:"goal"`
	ClusterSummary  models.ClusterSummary `json:"cluster_summary"`
	AllowedToolKeys []string              `json:"allowed_tool_keys"`
	Tools           []toolMetadata        `json:"tools"`
	OutputSchema    map[string]any        `json:"output_schema"`
	Constraints     decisionConstraints   `json:"constraints"`
}

type decisionConstraints struct {
	JSONOnly              bool `json:"json_only"`
	ReasonSentencesMax    int  `json:"reason_sentences_max"`
	ChartKeyMustBeAllowed bool `json:"chartKey_must_be_in_allowed_tool_keys"`
}

// toolMetadata is the subset of a descriptor shared with the collaborator
type toolMetadata struct {
	Key          string                   `json:"key"`
	Name         string                   `json:"name"`
	Namespace    string                   `json:"namespace"`
	HelmRepoName string                   `json:"helm_repo_name"`
	HelmRepoURL  string                   `json:"helm_repo_url"`
	HelmChart    string                   `json:"helm_chart"`
	Category     string                   `json:"category,omitempty"`
	Strengths    []string                 `json:"strengths,omitempty"`
	Requirements *models.ToolRequirements `json:"requirements,omitempty"`
}

var decisionOutputSchema = map[string]any{
	"type":     "object",
	"required": []string{"chartKey", "reason"},
	"properties": map[string]any{
		"chartKey":   map[string]any{"type": "string", "description": "one of allowed_tool_keys"},
		"reason":     map[string]any{"type": "string", "description": "short justification"},
		"confidence": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
	},
}

func buildDecisionRequest(goal string, summary models.ClusterSummary, candidates []models.ToolDescriptor) (string, error) {
	req := decisionRequest{
		Goal:           goal,
		ClusterSummary: summary,
		OutputSchema:   decisionOutputSchema,
		Constraints: decisionConstraints{
			JSONOnly:              true,
			ReasonSentencesMax:    maxReasonSentences,
			ChartKeyMustBeAllowed: true,
		},
	}
	for _, c := range candidates {
		req.AllowedToolKeys = append(req.AllowedToolKeys, c.Key)
		req.Tools = append(req.Tools, toolMetadata{
			Key:          c.Key,
			Name:         c.Name,
			Namespace:    c.Namespace,
			HelmRepoName: c.HelmRepoName,
			HelmRepoURL:  c.HelmRepoURL,
			HelmChart:    c.HelmChart,
			Category:     c.Category,
			Strengths:    c.Strengths,
			Requirements: c.Requirements,
		})
	}

	data, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// parseDecisionObject parses raw as a JSON object, or else the first balanced
// object found inside it
func parseDecisionObject(raw string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &obj); err == nil && obj != nil {
		return obj, true
	}

	candidate, ok := firstBalancedObject(raw)
	if !ok {
		return nil, false
	}
	obj = nil
	if err := json.Unmarshal([]byte(candidate), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

// firstBalancedObject finds the first {...} span with balanced braces, skipping
// braces inside JSON strings
func firstBalancedObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// clampConfidence maps any value into [0,1]; absent or non-numeric values become 0.5
func clampConfidence(v any) float64 {
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return defaultConfidence
		}
		f = parsed
	default:
		return defaultConfidence
	}

	if math.IsNaN(f) {
		return defaultConfidence
	}
	return math.Max(0, math.Min(1, f))
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

func containsKey(candidates []models.ToolDescriptor, key string) bool {
	if key == "" {
		return false
	}
	for _, c := range candidates {
		if c.Key == key {
			return true
		}
	}
	return false
}
