package paimon

import (
	"context"
	"fmt"
	"strings"
)

// ServiceLLMProviderRegistry is the service registry key for LLM providers.
const ServiceLLMProviderRegistry = "paimon.llm_provider_registry"

// LLMProviderRegistry resolves providers by profile name. Implementations are
// safe for concurrent use.
type LLMProviderRegistry interface {
	Resolve(provider string) (LLMProvider, error)
}

// LLMProvider generates a complete text answer for one request.
type LLMProvider interface {
	Generate(ctx context.Context, req LLMGenerateRequest) (string, error)
}

// LLMMessageRole identifies the author of one request message.
type LLMMessageRole string

const (
	// LLMMessageRoleSystem carries instructions.
	LLMMessageRoleSystem LLMMessageRole = "system"
	// LLMMessageRoleUser carries user turns.
	LLMMessageRoleUser LLMMessageRole = "user"
	// LLMMessageRoleAssistant carries earlier model turns.
	LLMMessageRoleAssistant LLMMessageRole = "assistant"
)

// LLMMessage is one ordered request message.
type LLMMessage struct {
	Role    LLMMessageRole
	Content string
}

// Validate checks role and content.
func (m LLMMessage) Validate() error {
	switch m.Role {
	case LLMMessageRoleSystem, LLMMessageRoleUser, LLMMessageRoleAssistant:
	default:
		return fmt.Errorf("validate llm message: unsupported role %q", m.Role)
	}
	if strings.TrimSpace(m.Content) == "" {
		return fmt.Errorf("validate llm message: missing content")
	}

	return nil
}

// LLMGenerateRequest describes one generation call.
type LLMGenerateRequest struct {
	Model    string
	Messages []LLMMessage
	// MaxOutputTokens bounds the answer; zero keeps the provider default.
	MaxOutputTokens int
	// Temperature is ignored when zero.
	Temperature float64
}

// Validate checks the request before it reaches a provider.
func (r LLMGenerateRequest) Validate() error {
	if strings.TrimSpace(r.Model) == "" {
		return fmt.Errorf("validate llm generate request: missing model")
	}
	if len(r.Messages) == 0 {
		return fmt.Errorf("validate llm generate request: missing messages")
	}
	for index, message := range r.Messages {
		if err := message.Validate(); err != nil {
			return fmt.Errorf("validate llm generate request messages[%d]: %w", index, err)
		}
	}
	if r.MaxOutputTokens < 0 {
		return fmt.Errorf("validate llm generate request: max_output_tokens must be >= 0")
	}
	if r.Temperature < 0 {
		return fmt.Errorf("validate llm generate request: temperature must be >= 0")
	}

	return nil
}

// SplitSystemMessages separates system instructions from conversation turns,
// joining the instructions with blank lines.
func SplitSystemMessages(messages []LLMMessage) (system string, turns []LLMMessage) {
	var instructions []string
	for _, message := range messages {
		if message.Role == LLMMessageRoleSystem {
			instructions = append(instructions, message.Content)
			continue
		}
		turns = append(turns, message)
	}

	return strings.Join(instructions, "\n\n"), turns
}
