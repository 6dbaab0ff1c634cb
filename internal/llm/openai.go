package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider adapts an OpenAI-compatible chat-completions endpoint to
// Client. It backs the fast tier by default (spec.md GLOSSARY), but may
// also back the smart tier for deployments with a single model.
type OpenAIProvider struct {
	Inner *openai.Client
	Model string
}

// NewOpenAIProvider builds a provider against baseURL (empty for the public
// OpenAI API) using apiKey, mirroring the teacher's transport setup in
// internal/app/app.go.
func NewOpenAIProvider(apiKey, baseURL, model string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{Inner: openai.NewClientWithConfig(cfg), Model: model}
}

func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (Response, error) {
	if p.Inner == nil || p.Model == "" {
		return Response{}, fmt.Errorf("openai provider not configured")
	}
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	resp, err := p.Inner.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		N:           1,
	})
	if err != nil {
		return Response{}, fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, fmt.Errorf("openai completion: no choices")
	}
	return Response{
		Content:      resp.Choices[0].Message.Content,
		Model:        resp.Model,
		FinishReason: string(resp.Choices[0].FinishReason),
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

// ListModels exposes the underlying client's model-listing call. No
// component in this module calls it.
func (p *OpenAIProvider) ListModels(ctx context.Context) (openai.ModelsList, error) {
	return p.Inner.ListModels(ctx)
}
