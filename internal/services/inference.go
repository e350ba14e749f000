package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	aoption "github.com/anthropics/anthropic-sdk-go/option"
	openai "github.com/openai/openai-go"
	ooption "github.com/openai/openai-go/option"
)

// Inference providers
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// DefaultInferenceTimeout bounds one completion call when no timeout is configured
const DefaultInferenceTimeout = 15 * time.Second

// InferenceOptions configures a text-generation provider
type InferenceOptions struct {
	Provider        string
	BaseURL         string
	APIKey          string
	Model           string
	Temperature     float64
	MaxOutputTokens int64
	// Timeout bounds each Complete call
	Timeout time.Duration
}

// NewInference builds the collaborator for the configured provider
func NewInference(opts InferenceOptions) (Inference, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("missing provider api key")
	}
	if strings.TrimSpace(opts.Model) == "" {
		return nil, errors.New("missing model")
	}
	if opts.MaxOutputTokens <= 0 {
		opts.MaxOutputTokens = 512
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultInferenceTimeout
	}

	switch strings.ToLower(strings.TrimSpace(opts.Provider)) {
	case "", ProviderOpenAI:
		reqOpts := []ooption.RequestOption{
			ooption.WithAPIKey(strings.TrimSpace(opts.APIKey)),
			ooption.WithMaxRetries(0),
		}
		if strings.TrimSpace(opts.BaseURL) != "" {
			reqOpts = append(reqOpts, ooption.WithBaseURL(strings.TrimSpace(opts.BaseURL)))
		}
		return &OpenAIInference{client: openai.NewClient(reqOpts...), opts: opts}, nil
	case ProviderAnthropic:
		reqOpts := []aoption.RequestOption{
			aoption.WithAPIKey(strings.TrimSpace(opts.APIKey)),
			aoption.WithMaxRetries(0),
		}
		if strings.TrimSpace(opts.BaseURL) != "" {
			reqOpts = append(reqOpts, aoption.WithBaseURL(strings.TrimSpace(opts.BaseURL)))
		}
		return &AnthropicInference{client: anthropic.NewClient(reqOpts...), opts: opts}, nil
	default:
		return nil, fmt.Errorf("unsupported inference provider %q", opts.Provider)
	}
}

// OpenAIInference completes prompts with the chat completions API
type OpenAIInference struct {
	client openai.Client
	opts   InferenceOptions
}

func (p *OpenAIInference) Complete(ctx context.Context, system, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.opts.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(prompt),
		},
		Temperature:         openai.Float(p.opts.Temperature),
		MaxCompletionTokens: openai.Int(p.opts.MaxOutputTokens),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty completion")
	}
	return resp.Choices[0].Message.Content, nil
}

// AnthropicInference completes prompts with the messages API
type AnthropicInference struct {
	client anthropic.Client
	opts   InferenceOptions
}

func (p *AnthropicInference) Complete(ctx context.Context, system, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(p.opts.Model),
		MaxTokens:   p.opts.MaxOutputTokens,
		Temperature: anthropic.Float(p.opts.Temperature),
		System:      []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", err
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return text.String(), nil
}
