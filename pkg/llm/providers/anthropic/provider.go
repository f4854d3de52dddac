package anthropic

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"ex-paimon/pkg/paimon"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultMaxTokens = 1024
	contentTypeText  = "text"
)

// ProviderConfig configures one Anthropic-backed provider instance.
type ProviderConfig struct {
	// APIKey is the credential used to authenticate requests.
	APIKey string
	// BaseURL optionally overrides the Anthropic endpoint.
	BaseURL string
	// DefaultMaxTokens applies when a request leaves MaxOutputTokens unset.
	DefaultMaxTokens int
}

// Provider is a paimon LLM provider backed by the Anthropic Messages API.
type Provider struct {
	messages         anthropicMessagesClient
	defaultMaxTokens int64
}

type anthropicMessagesClient interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// New builds one Anthropic Messages API provider instance.
func New(cfg ProviderConfig) (*Provider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("new anthropic provider: missing api_key")
	}
	if cfg.DefaultMaxTokens < 0 {
		return nil, fmt.Errorf("new anthropic provider: default_max_tokens must be >= 0")
	}

	options := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		parsed, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("new anthropic provider: parse base_url: %w", err)
		}
		if parsed.Scheme == "" || parsed.Host == "" {
			return nil, fmt.Errorf("new anthropic provider: parse base_url: must include scheme and host")
		}
		options = append(options, option.WithBaseURL(baseURL))
	}

	maxTokens := int64(cfg.DefaultMaxTokens)
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	client := anthropic.NewClient(options...)

	return &Provider{messages: &client.Messages, defaultMaxTokens: maxTokens}, nil
}

// Generate sends one Messages request and concatenates the returned text
// blocks.
func (p *Provider) Generate(ctx context.Context, req paimon.LLMGenerateRequest) (string, error) {
	if p == nil {
		return "", fmt.Errorf("anthropic generate: nil provider")
	}
	if ctx == nil {
		return "", fmt.Errorf("anthropic generate: nil context")
	}
	if p.messages == nil {
		return "", fmt.Errorf("anthropic generate: messages client is nil")
	}
	if err := req.Validate(); err != nil {
		return "", fmt.Errorf("anthropic generate validate request: %w", err)
	}

	params, err := p.mapGenerateRequest(req)
	if err != nil {
		return "", fmt.Errorf("anthropic generate map request: %w", err)
	}

	message, err := p.messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic generate: %w", err)
	}
	if message == nil {
		return "", fmt.Errorf("anthropic generate: nil message")
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == contentTypeText {
			text.WriteString(block.Text)
		}
	}
	answer := strings.TrimSpace(text.String())
	if answer == "" {
		return "", fmt.Errorf("anthropic generate: empty response content")
	}

	return answer, nil
}

func (p *Provider) mapGenerateRequest(req paimon.LLMGenerateRequest) (anthropic.MessageNewParams, error) {
	system, turns := paimon.SplitSystemMessages(req.Messages)

	messages := make([]anthropic.MessageParam, 0, len(turns))
	for index, message := range turns {
		switch message.Role {
		case paimon.LLMMessageRoleUser:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(message.Content)))
		case paimon.LLMMessageRoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(message.Content)))
		default:
			return anthropic.MessageNewParams{}, fmt.Errorf("messages[%d] role: unsupported role %q", index, message.Role)
		}
	}
	if len(messages) == 0 {
		return anthropic.MessageNewParams{}, fmt.Errorf("missing non-system messages")
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(strings.TrimSpace(req.Model)),
		MaxTokens: p.defaultMaxTokens,
		Messages:  messages,
	}
	if req.MaxOutputTokens > 0 {
		params.MaxTokens = int64(req.MaxOutputTokens)
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	return params, nil
}

var _ paimon.LLMProvider = (*Provider)(nil)
