// Package llm provides the two logical model tiers the core depends on
// (spec.md §6): a smart model for decisions, extraction, and summarization,
// and a fast model for classification, relevance checks, and validation.
// Both tiers speak the same minimal request/response contract so every
// component depends on the Client interface, never a concrete SDK.
package llm

import "context"

// Role identifies the speaker of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn in a chat-style prompt.
type Message struct {
	Role    Role
	Content string
}

// Request is a single-shot structured-JSON ask. Every component in this
// repository (intent, planner, decision, linkextract, content, dateparse,
// validate, dedup, reflect, summarize) issues Requests; none hold a
// multi-turn tool-calling loop.
type Request struct {
	Messages    []Message
	Temperature float32
	MaxTokens   int
}

// Response is the model's reply. Usage is advisory and may be zero for
// providers that do not report it.
type Response struct {
	Content      string
	Model        string
	FinishReason string
	Usage        Usage
}

// Usage reports token counts when the provider exposes them.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Client is the minimal interface core logic depends on to call a chat
// model. Any OpenAI-compatible or Anthropic-compatible backend can adapt to
// it; see OpenAIProvider and AnthropicProvider.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// Tier selects which logical model a component should call.
type Tier int

const (
	// TierFast is used for classification, relevance checks, and small
	// judgments (spec.md GLOSSARY: "fast model").
	TierFast Tier = iota
	// TierSmart is used for reasoning, extraction, and long-form output
	// (spec.md GLOSSARY: "smart model").
	TierSmart
)

// Models bundles the two tiers behind one value so components can request
// the tier they need without knowing which concrete provider backs it.
type Models struct {
	Fast  Client
	Smart Client
}

// Pick returns the Client for the requested tier, falling back to whichever
// tier is configured when the requested one is nil (e.g. a deployment that
// only wires one model).
func (m Models) Pick(tier Tier) Client {
	if tier == TierSmart && m.Smart != nil {
		return m.Smart
	}
	if tier == TierFast && m.Fast != nil {
		return m.Fast
	}
	if m.Smart != nil {
		return m.Smart
	}
	return m.Fast
}
