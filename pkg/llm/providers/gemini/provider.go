package gemini

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strings"
	"unicode"

	"ex-paimon/pkg/paimon"

	"google.golang.org/genai"
)

const defaultAPIVersion = "v1beta"

// ProviderConfig configures one Gemini-backed provider instance.
type ProviderConfig struct {
	// APIKey is the credential used to authenticate requests.
	APIKey string
	// BaseURL optionally overrides the Gemini endpoint.
	BaseURL string
	// APIVersion optionally overrides Gemini API version.
	//
	// Zero defaults to v1beta.
	APIVersion string
	// GoogleSearch enables the Google Search tool for all requests.
	GoogleSearch bool
	// ThinkingBudget optionally sets thinking token budget.
	ThinkingBudget *int
}

// Provider is a paimon LLM provider backed by the Gemini Developer API.
type Provider struct {
	models         geminiModelsClient
	googleSearch   bool
	thinkingBudget *int32
}

type geminiModelsClient interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// New builds one Gemini API provider instance.
func New(cfg ProviderConfig) (*Provider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("new gemini provider: missing api_key")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL != "" {
		parsed, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("new gemini provider: parse base_url: %w", err)
		}
		if parsed.Scheme == "" || parsed.Host == "" {
			return nil, fmt.Errorf("new gemini provider: parse base_url: must include scheme and host")
		}
	}
	apiVersion := strings.TrimSpace(cfg.APIVersion)
	if apiVersion == "" {
		apiVersion = defaultAPIVersion
	}
	if !isValidAPIVersion(apiVersion) {
		return nil, fmt.Errorf("new gemini provider: invalid api_version %q", cfg.APIVersion)
	}
	thinkingBudget, err := normalizeThinkingBudget(cfg.ThinkingBudget)
	if err != nil {
		return nil, fmt.Errorf("new gemini provider: thinking_budget: %w", err)
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    baseURL,
			APIVersion: apiVersion,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("new gemini client: %w", err)
	}
	if client == nil || client.Models == nil {
		return nil, fmt.Errorf("new gemini client: models client is nil")
	}

	return &Provider{
		models:         client.Models,
		googleSearch:   cfg.GoogleSearch,
		thinkingBudget: thinkingBudget,
	}, nil
}

// Generate runs one GenerateContent request and returns the answer text
// without thought parts.
func (p *Provider) Generate(ctx context.Context, req paimon.LLMGenerateRequest) (string, error) {
	if p == nil {
		return "", fmt.Errorf("gemini generate: nil provider")
	}
	if ctx == nil {
		return "", fmt.Errorf("gemini generate: nil context")
	}
	if p.models == nil {
		return "", fmt.Errorf("gemini generate: models client is nil")
	}
	if err := req.Validate(); err != nil {
		return "", fmt.Errorf("gemini generate validate request: %w", err)
	}

	contents, config, err := p.mapGenerateRequest(req)
	if err != nil {
		return "", fmt.Errorf("gemini generate map request: %w", err)
	}

	response, err := p.models.GenerateContent(ctx, strings.TrimSpace(req.Model), contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	text := strings.TrimSpace(responseText(response))
	if text == "" {
		return "", fmt.Errorf("gemini generate: empty response text")
	}

	return text, nil
}

func (p *Provider) mapGenerateRequest(req paimon.LLMGenerateRequest) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	system, turns := paimon.SplitSystemMessages(req.Messages)

	contents := make([]*genai.Content, 0, len(turns))
	for index, message := range turns {
		role, err := mapMessageRole(message.Role)
		if err != nil {
			return nil, nil, fmt.Errorf("messages[%d] role: %w", index, err)
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: message.Content}},
		})
	}
	if len(contents) == 0 {
		return nil, nil, fmt.Errorf("missing non-system messages")
	}

	config := &genai.GenerateContentConfig{}
	if system != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}
	if req.Temperature > 0 {
		temperature := float32(req.Temperature)
		config.Temperature = &temperature
	}
	if req.MaxOutputTokens > 0 {
		if req.MaxOutputTokens > math.MaxInt32 {
			return nil, nil, fmt.Errorf("max_output_tokens exceeds int32 range")
		}
		config.MaxOutputTokens = int32(req.MaxOutputTokens)
	}
	if p.googleSearch {
		config.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}
	if p.thinkingBudget != nil {
		budget := *p.thinkingBudget
		config.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: &budget}
	}

	return contents, config, nil
}

func responseText(response *genai.GenerateContentResponse) string {
	if response == nil || len(response.Candidates) == 0 {
		return ""
	}
	candidate := response.Candidates[0]
	if candidate == nil || candidate.Content == nil {
		return ""
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		text.WriteString(part.Text)
	}

	return text.String()
}

func mapMessageRole(role paimon.LLMMessageRole) (string, error) {
	switch role {
	case paimon.LLMMessageRoleUser:
		return string(genai.RoleUser), nil
	case paimon.LLMMessageRoleAssistant:
		return string(genai.RoleModel), nil
	default:
		return "", fmt.Errorf("unsupported role %q", role)
	}
}

func normalizeThinkingBudget(raw *int) (*int32, error) {
	if raw == nil {
		return nil, nil
	}
	if *raw < 0 {
		return nil, fmt.Errorf("must be >= 0")
	}
	if *raw > math.MaxInt32 {
		return nil, fmt.Errorf("must fit int32")
	}
	normalized := int32(*raw)
	return &normalized, nil
}

func isValidAPIVersion(raw string) bool {
	if raw == "" {
		return false
	}
	for _, r := range raw {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			continue
		}
		switch r {
		case '-', '.', '_':
			continue
		default:
			return false
		}
	}
	return true
}

var _ paimon.LLMProvider = (*Provider)(nil)
