package openai

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"ex-paimon/pkg/paimon"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
)

// ProviderConfig configures one OpenAI-backed provider instance.
type ProviderConfig struct {
	// APIKey is the credential used to authenticate requests.
	APIKey string
	// BaseURL optionally overrides the OpenAI endpoint.
	BaseURL string
	// Organization optionally sets the OpenAI organization header.
	Organization string
	// Project optionally sets the OpenAI project header.
	Project string
	// MaxRetries optionally overrides the SDK retry count.
	//
	// Nil keeps the SDK default behavior.
	MaxRetries *int
}

// Provider is a paimon LLM provider backed by the OpenAI Responses API.
type Provider struct {
	responses openAIResponsesClient
}

type openAIResponsesClient interface {
	New(ctx context.Context, body responses.ResponseNewParams, opts ...option.RequestOption) (*responses.Response, error)
}

// New builds one OpenAI Responses API provider instance.
func New(cfg ProviderConfig) (*Provider, error) {
	normalized, err := normalizeProviderConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("new openai provider: %w", err)
	}

	options := make([]option.RequestOption, 0, 5)
	options = append(options, option.WithAPIKey(normalized.APIKey))
	if normalized.BaseURL != "" {
		options = append(options, option.WithBaseURL(normalized.BaseURL))
	}
	if normalized.Organization != "" {
		options = append(options, option.WithOrganization(normalized.Organization))
	}
	if normalized.Project != "" {
		options = append(options, option.WithProject(normalized.Project))
	}
	if normalized.MaxRetries != nil {
		options = append(options, option.WithMaxRetries(*normalized.MaxRetries))
	}

	client := openai.NewClient(options...)

	return &Provider{responses: &client.Responses}, nil
}

// Generate runs one Responses request and returns the concatenated output
// text.
func (p *Provider) Generate(ctx context.Context, req paimon.LLMGenerateRequest) (string, error) {
	if p == nil {
		return "", fmt.Errorf("openai generate: nil provider")
	}
	if ctx == nil {
		return "", fmt.Errorf("openai generate: nil context")
	}
	if p.responses == nil {
		return "", fmt.Errorf("openai generate: responses client is nil")
	}
	if err := req.Validate(); err != nil {
		return "", fmt.Errorf("openai generate validate request: %w", err)
	}

	params, err := mapGenerateRequest(req)
	if err != nil {
		return "", fmt.Errorf("openai generate map request: %w", err)
	}

	response, err := p.responses.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai generate: %w", err)
	}
	if response == nil {
		return "", fmt.Errorf("openai generate: nil response")
	}

	text := strings.TrimSpace(response.OutputText())
	if text == "" {
		return "", fmt.Errorf("openai generate: empty output text")
	}

	return text, nil
}

func mapGenerateRequest(req paimon.LLMGenerateRequest) (responses.ResponseNewParams, error) {
	items := make(responses.ResponseInputParam, 0, len(req.Messages))
	for index, message := range req.Messages {
		role, err := mapMessageRole(message.Role)
		if err != nil {
			return responses.ResponseNewParams{}, fmt.Errorf("messages[%d] role: %w", index, err)
		}
		items = append(items, responses.ResponseInputItemParamOfMessage(message.Content, role))
	}

	params := responses.ResponseNewParams{
		Model: strings.TrimSpace(req.Model),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: items,
		},
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxOutputTokens > 0 {
		params.MaxOutputTokens = openai.Int(int64(req.MaxOutputTokens))
	}

	return params, nil
}

func mapMessageRole(role paimon.LLMMessageRole) (responses.EasyInputMessageRole, error) {
	switch role {
	case paimon.LLMMessageRoleSystem:
		return responses.EasyInputMessageRoleSystem, nil
	case paimon.LLMMessageRoleUser:
		return responses.EasyInputMessageRoleUser, nil
	case paimon.LLMMessageRoleAssistant:
		return responses.EasyInputMessageRoleAssistant, nil
	default:
		return "", fmt.Errorf("unsupported role %q", role)
	}
}

func normalizeProviderConfig(cfg ProviderConfig) (ProviderConfig, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.Organization = strings.TrimSpace(cfg.Organization)
	cfg.Project = strings.TrimSpace(cfg.Project)

	if cfg.APIKey == "" {
		return ProviderConfig{}, fmt.Errorf("missing api_key")
	}
	if cfg.BaseURL != "" {
		parsed, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return ProviderConfig{}, fmt.Errorf("parse base_url: %w", err)
		}
		if parsed.Scheme == "" || parsed.Host == "" {
			return ProviderConfig{}, fmt.Errorf("parse base_url: must include scheme and host")
		}
	}
	if cfg.MaxRetries != nil && *cfg.MaxRetries < 0 {
		return ProviderConfig{}, fmt.Errorf("max_retries must be >= 0")
	}

	return cfg, nil
}

var _ paimon.LLMProvider = (*Provider)(nil)
