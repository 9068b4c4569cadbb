// Package llm provides the completion clients the agents talk to.
//
// Every host is reduced to one operation: given the conversation so far,
// return the next assistant turn as plain text. Tool use is carried in the
// text itself, so no provider-specific tool calling is involved.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/snagasuri/deebo-prototype/internal/config"
)

// Role of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversation turn.
type Message struct {
	Role    Role
	Content string
}

// Client completes a conversation.
type Client interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// ErrNoChoices is returned when a host answers without any completion.
var ErrNoChoices = errors.New("llm: host returned no completion")

// Base URLs of the OpenAI-compatible hosts.
const (
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
	AnthropicBaseURL  = "https://api.anthropic.com/v1/"
)

// New builds the client for one agent's configuration.
func New(ctx context.Context, cfg config.AgentConfig) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: no API key for provider %q", cfg.Provider)
	}
	switch cfg.Provider {
	case config.ProviderOpenRouter:
		return newOpenAI(cfg, OpenRouterBaseURL), nil
	case config.ProviderAnthropic:
		return newOpenAI(cfg, AnthropicBaseURL), nil
	case config.ProviderOpenAI:
		return newOpenAI(cfg, ""), nil
	case config.ProviderGemini:
		return newGemini(ctx, cfg)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}
