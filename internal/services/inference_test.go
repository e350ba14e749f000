package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInferenceValidation(t *testing.T) {
	tests := []struct {
		name string
		opts InferenceOptions
	}{
		{name: "missing key", opts: InferenceOptions{Provider: ProviderOpenAI, Model: "gpt-4o-mini"}},
		{name: "missing model", opts: InferenceOptions{Provider: ProviderOpenAI, APIKey: "sk-test"}},
		{name: "unknown provider", opts: InferenceOptions{Provider: "llama", APIKey: "k", Model: "m"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewInference(tt.opts)
			assert.Error(t, err)
		})
	}
}

func TestOpenAIInferenceComplete(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "{\"chartKey\":\"prometheus\",\"reason\":\"ok\"}"}}]
		}`))
	}))
	defer server.Close()

	inference, err := NewInference(InferenceOptions{
		Provider:        ProviderOpenAI,
		BaseURL:         server.URL + "/",
		APIKey:          "sk-test",
		Model:           "gpt-4o-mini",
		Temperature:     0.2,
		MaxOutputTokens: 128,
	})
	require.NoError(t, err)

	out, err := inference.Complete(context.Background(), "system", "pick one")
	require.NoError(t, err)
	assert.JSONEq(t, `{"chartKey":"prometheus","reason":"ok"}`, out)
	assert.Equal(t, "gpt-4o-mini", body["model"])
}

func TestAnthropicInferenceComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant-test", r.Header.Get("X-Api-Key"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-test",
			"content": [{"type": "text", "text": "{\"chartKey\":\"opentelemetry\"}"}],
			"stop_reason": "end_turn", "usage": {"input_tokens": 1, "output_tokens": 1}
		}`))
	}))
	defer server.Close()

	inference, err := NewInference(InferenceOptions{
		Provider: ProviderAnthropic,
		BaseURL:  server.URL + "/",
		APIKey:   "sk-ant-test",
		Model:    "claude-test",
	})
	require.NoError(t, err)

	out, err := inference.Complete(context.Background(), "system", "pick one")
	require.NoError(t, err)
	assert.Equal(t, `{"chartKey":"opentelemetry"}`, out)
}

func TestInferenceUnreachableDegrades(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	inference, err := NewInference(InferenceOptions{Provider: ProviderOpenAI, BaseURL: url + "/", APIKey: "k", Model: "m"})
	require.NoError(t, err)

	engine := NewAssistedEngine(inference, 0, nil, nil)
	decision, err := engine.Decide(context.Background(), "monitoring", smallCluster, monitoringCandidates)
	require.NoError(t, err)
	assert.Equal(t, "prometheus", decision.ChartKey)
	assert.Equal(t, 0.0, decision.Confidence)
	assert.Contains(t, decision.Reason, "unavailable")
}

func TestInferenceTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		server.Close()
	})

	for _, provider := range []string{ProviderOpenAI, ProviderAnthropic} {
		t.Run(provider, func(t *testing.T) {
			inference, err := NewInference(InferenceOptions{
				Provider: provider,
				BaseURL:  server.URL + "/",
				APIKey:   "k",
				Model:    "m",
				Timeout:  100 * time.Millisecond,
			})
			require.NoError(t, err)

			start := time.Now()
			engine := NewAssistedEngine(inference, 0, nil, nil)
			decision, err := engine.Decide(context.Background(), "monitoring", smallCluster, monitoringCandidates)
			require.NoError(t, err)
			assert.Less(t, time.Since(start), 5*time.Second)
			assert.Equal(t, "prometheus", decision.ChartKey)
			assert.Equal(t, 0.0, decision.Confidence)
			assert.Contains(t, decision.Reason, "unavailable")
		})
	}
}
