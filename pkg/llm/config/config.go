package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"text/template"
	"time"
	"unicode"
)

const (
	defaultRequestTimeout = 90 * time.Second

	// ProviderTypeOpenAI selects the OpenAI Responses provider.
	ProviderTypeOpenAI = "openai"
	// ProviderTypeGemini selects the Gemini Developer API provider.
	ProviderTypeGemini = "gemini"
	// ProviderTypeAnthropic selects the Anthropic Messages provider.
	ProviderTypeAnthropic = "anthropic"

	defaultGeminiAPIVersion   = "v1beta"
	defaultAnthropicMaxTokens = 1024
)

// Config is the runtime LLM configuration of the bot.
type Config struct {
	// RequestTimeout bounds one LLM request lifecycle.
	RequestTimeout time.Duration
	// Providers contains provider profiles keyed by profile name.
	Providers map[string]ProviderProfile
	// Ask configures the /ask command agent.
	Ask Agent
}

// ProviderProfile describes one named provider profile.
type ProviderProfile struct {
	// Type identifies provider implementation kind.
	Type string
	// APIKey is the provider credential.
	APIKey string
	// BaseURL optionally overrides provider API endpoint.
	BaseURL string
	// OpenAI carries OpenAI-specific options.
	OpenAI *OpenAIOptions
	// Gemini carries Gemini-specific options.
	Gemini *GeminiOptions
	// Anthropic carries Anthropic-specific options.
	Anthropic *AnthropicOptions
}

// OpenAIOptions carries OpenAI-specific profile options.
type OpenAIOptions struct {
	// Organization optionally scopes requests to one OpenAI organization.
	Organization string
	// Project optionally scopes requests to one OpenAI project.
	Project string
	// MaxRetries optionally overrides SDK retry count.
	MaxRetries *int
}

// GeminiOptions carries Gemini-specific profile options.
type GeminiOptions struct {
	// APIVersion selects the Gemini Developer API version.
	APIVersion string
	// GoogleSearch enables the Google Search tool.
	GoogleSearch bool
	// ThinkingBudget optionally sets thinking token budget.
	ThinkingBudget *int
}

// AnthropicOptions carries Anthropic-specific profile options.
type AnthropicOptions struct {
	// DefaultMaxTokens is sent when a request leaves MaxOutputTokens unset;
	// the Messages API requires a limit.
	DefaultMaxTokens int
}

// Agent describes the configured question-answering agent.
type Agent struct {
	// Provider identifies which provider profile to resolve.
	Provider string
	// Model identifies which provider model name to call.
	Model string
	// SystemPromptTemplate is rendered with the asking actor and chat.
	SystemPromptTemplate string
	// MaxOutputTokens optionally limits generated token count.
	MaxOutputTokens int
	// Temperature optionally controls output randomness.
	Temperature float64
	// RequestTimeout bounds one request of this agent.
	RequestTimeout time.Duration
}

type fileConfig struct {
	RequestTimeout string                       `json:"request_timeout"`
	Providers      map[string]fileProviderEntry `json:"providers"`
	Ask            fileAgent                    `json:"ask"`
}

type fileProviderEntry struct {
	Type      string              `json:"type"`
	APIKey    string              `json:"api_key"`
	BaseURL   string              `json:"base_url"`
	OpenAI    *fileOpenAIEntry    `json:"openai"`
	Gemini    *fileGeminiEntry    `json:"gemini"`
	Anthropic *fileAnthropicEntry `json:"anthropic"`
}

type fileOpenAIEntry struct {
	Organization string `json:"organization"`
	Project      string `json:"project"`
	MaxRetries   *int   `json:"max_retries"`
}

type fileGeminiEntry struct {
	APIVersion     string `json:"api_version"`
	GoogleSearch   bool   `json:"google_search"`
	ThinkingBudget *int   `json:"thinking_budget"`
}

type fileAnthropicEntry struct {
	DefaultMaxTokens int `json:"default_max_tokens"`
}

type fileAgent struct {
	Provider             string  `json:"provider"`
	Model                string  `json:"model"`
	SystemPromptTemplate string  `json:"system_prompt_template"`
	MaxOutputTokens      int     `json:"max_output_tokens"`
	Temperature          float64 `json:"temperature"`
	RequestTimeout       string  `json:"request_timeout"`
}

type rootRaw struct {
	Providers json.RawMessage `json:"providers"`
}

// LoadFile reads and validates LLM configuration from a standalone file.
func LoadFile(path string) (Config, error) {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return Config{}, fmt.Errorf("load llm config: empty path")
	}

	data, err := os.ReadFile(trimmedPath)
	if err != nil {
		return Config{}, fmt.Errorf("load llm config read %s: %w", trimmedPath, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("load llm config %s: %w", trimmedPath, err)
	}

	return cfg, nil
}

// Parse decodes and validates one `llm` JSON section. Unknown fields are
// rejected.
func Parse(data []byte) (Config, error) {
	if err := validateDuplicateProviderKeys(data); err != nil {
		return Config{}, fmt.Errorf("parse llm config: %w", err)
	}

	var parsed fileConfig
	if err := decodeStrictJSON(data, &parsed); err != nil {
		return Config{}, fmt.Errorf("parse llm config: %w", err)
	}

	cfg := Config{
		RequestTimeout: defaultRequestTimeout,
		Providers:      make(map[string]ProviderProfile, len(parsed.Providers)),
	}
	if rawTimeout := strings.TrimSpace(parsed.RequestTimeout); rawTimeout != "" {
		timeout, err := parsePositiveDuration(rawTimeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse llm config request_timeout: %w", err)
		}
		cfg.RequestTimeout = timeout
	}

	for key, rawProvider := range parsed.Providers {
		profileKey := strings.TrimSpace(key)
		if profileKey == "" {
			return Config{}, fmt.Errorf("parse llm config providers: empty provider key")
		}
		cfg.Providers[profileKey] = parseProviderProfile(rawProvider)
	}

	cfg.Ask = Agent{
		Provider:             strings.TrimSpace(parsed.Ask.Provider),
		Model:                strings.TrimSpace(parsed.Ask.Model),
		SystemPromptTemplate: strings.TrimSpace(parsed.Ask.SystemPromptTemplate),
		MaxOutputTokens:      parsed.Ask.MaxOutputTokens,
		Temperature:          parsed.Ask.Temperature,
		RequestTimeout:       cfg.RequestTimeout,
	}
	if rawTimeout := strings.TrimSpace(parsed.Ask.RequestTimeout); rawTimeout != "" {
		timeout, err := parsePositiveDuration(rawTimeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse llm config ask request_timeout: %w", err)
		}
		cfg.Ask.RequestTimeout = timeout
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks configuration coherence.
func (cfg Config) Validate() error {
	if cfg.RequestTimeout <= 0 {
		return fmt.Errorf("validate llm config: request_timeout must be > 0")
	}
	if len(cfg.Providers) == 0 {
		return fmt.Errorf("validate llm config: providers is required")
	}

	for key, profile := range cfg.Providers {
		if err := validateProviderProfile(key, profile); err != nil {
			return fmt.Errorf("validate llm config providers[%s]: %w", key, err)
		}
	}

	if err := validateAgent(cfg.Ask); err != nil {
		return fmt.Errorf("validate llm config ask: %w", err)
	}
	if _, exists := cfg.Providers[cfg.Ask.Provider]; !exists {
		return fmt.Errorf("validate llm config ask: provider %s is not configured", cfg.Ask.Provider)
	}
	if cfg.Ask.RequestTimeout > cfg.RequestTimeout {
		return fmt.Errorf(
			"validate llm config ask: request_timeout %s exceeds global request_timeout %s",
			cfg.Ask.RequestTimeout,
			cfg.RequestTimeout,
		)
	}

	return nil
}

// SystemPrompt renders the agent system prompt template with vars.
func (a Agent) SystemPrompt(vars map[string]string) (string, error) {
	tmpl, err := template.New("system-prompt").Option("missingkey=error").Parse(a.SystemPromptTemplate)
	if err != nil {
		return "", fmt.Errorf("parse system_prompt_template: %w", err)
	}

	var rendered bytes.Buffer
	if err := tmpl.Execute(&rendered, vars); err != nil {
		return "", fmt.Errorf("render system_prompt_template: %w", err)
	}

	return strings.TrimSpace(rendered.String()), nil
}

func parseProviderProfile(raw fileProviderEntry) ProviderProfile {
	profile := ProviderProfile{
		Type:    strings.ToLower(strings.TrimSpace(raw.Type)),
		APIKey:  strings.TrimSpace(raw.APIKey),
		BaseURL: strings.TrimSpace(raw.BaseURL),
	}
	if raw.OpenAI != nil {
		profile.OpenAI = &OpenAIOptions{
			Organization: strings.TrimSpace(raw.OpenAI.Organization),
			Project:      strings.TrimSpace(raw.OpenAI.Project),
			MaxRetries:   cloneIntPointer(raw.OpenAI.MaxRetries),
		}
	}
	if raw.Gemini != nil {
		profile.Gemini = &GeminiOptions{
			APIVersion:     strings.TrimSpace(raw.Gemini.APIVersion),
			GoogleSearch:   raw.Gemini.GoogleSearch,
			ThinkingBudget: cloneIntPointer(raw.Gemini.ThinkingBudget),
		}
	}
	if raw.Anthropic != nil {
		profile.Anthropic = &AnthropicOptions{DefaultMaxTokens: raw.Anthropic.DefaultMaxTokens}
	}

	switch profile.Type {
	case ProviderTypeGemini:
		if profile.Gemini == nil {
			profile.Gemini = &GeminiOptions{}
		}
		if profile.Gemini.APIVersion == "" {
			profile.Gemini.APIVersion = defaultGeminiAPIVersion
		}
	case ProviderTypeAnthropic:
		if profile.Anthropic == nil {
			profile.Anthropic = &AnthropicOptions{}
		}
		if profile.Anthropic.DefaultMaxTokens == 0 {
			profile.Anthropic.DefaultMaxTokens = defaultAnthropicMaxTokens
		}
	}

	return profile
}

func validateProviderProfile(profileKey string, profile ProviderProfile) error {
	if strings.TrimSpace(profileKey) == "" {
		return fmt.Errorf("empty provider key")
	}
	if strings.TrimSpace(profile.APIKey) == "" {
		return fmt.Errorf("missing api_key")
	}

	switch profile.Type {
	case "":
		return fmt.Errorf("missing type")
	case ProviderTypeOpenAI:
		if profile.Gemini != nil || profile.Anthropic != nil {
			return fmt.Errorf("only openai options are supported for openai providers")
		}
		if profile.OpenAI != nil && profile.OpenAI.MaxRetries != nil && *profile.OpenAI.MaxRetries < 0 {
			return fmt.Errorf("invalid openai options: max_retries must be >= 0")
		}
	case ProviderTypeGemini:
		if profile.OpenAI != nil || profile.Anthropic != nil {
			return fmt.Errorf("only gemini options are supported for gemini providers")
		}
		if profile.Gemini != nil {
			if !isValidAPIVersion(profile.Gemini.APIVersion) {
				return fmt.Errorf("invalid gemini options: invalid api_version %q", profile.Gemini.APIVersion)
			}
			if profile.Gemini.ThinkingBudget != nil && *profile.Gemini.ThinkingBudget < 0 {
				return fmt.Errorf("invalid gemini options: thinking_budget must be >= 0")
			}
		}
	case ProviderTypeAnthropic:
		if profile.OpenAI != nil || profile.Gemini != nil {
			return fmt.Errorf("only anthropic options are supported for anthropic providers")
		}
		if profile.Anthropic != nil && profile.Anthropic.DefaultMaxTokens < 0 {
			return fmt.Errorf("invalid anthropic options: default_max_tokens must be >= 0")
		}
	default:
		return fmt.Errorf("unsupported type %q", profile.Type)
	}

	if rawBaseURL := strings.TrimSpace(profile.BaseURL); rawBaseURL != "" {
		parsed, err := url.Parse(rawBaseURL)
		if err != nil {
			return fmt.Errorf("invalid base_url: %w", err)
		}
		if parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("invalid base_url: must include scheme and host")
		}
	}

	return nil
}

func validateAgent(agent Agent) error {
	if strings.TrimSpace(agent.Provider) == "" {
		return fmt.Errorf("missing provider")
	}
	if strings.TrimSpace(agent.Model) == "" {
		return fmt.Errorf("missing model")
	}
	if strings.TrimSpace(agent.SystemPromptTemplate) == "" {
		return fmt.Errorf("missing system_prompt_template")
	}
	if agent.MaxOutputTokens < 0 {
		return fmt.Errorf("max_output_tokens must be >= 0")
	}
	if agent.Temperature < 0 {
		return fmt.Errorf("temperature must be >= 0")
	}
	if agent.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be > 0")
	}
	if _, err := template.New("system-prompt").Option("missingkey=error").Parse(agent.SystemPromptTemplate); err != nil {
		return fmt.Errorf("invalid system_prompt_template: %w", err)
	}

	return nil
}

func parsePositiveDuration(raw string) (time.Duration, error) {
	duration, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if duration <= 0 {
		return 0, fmt.Errorf("must be > 0")
	}

	return duration, nil
}

// validateDuplicateProviderKeys catches keys that collide once trimmed,
// which encoding/json would silently merge.
func validateDuplicateProviderKeys(data []byte) error {
	var raw rootRaw
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode root json: %w", err)
	}
	if len(raw.Providers) == 0 {
		return nil
	}

	seen := make(map[string]struct{})
	decoder := json.NewDecoder(bytes.NewReader(raw.Providers))
	token, err := decoder.Token()
	if err != nil {
		return fmt.Errorf("providers: %w", err)
	}
	delim, ok := token.(json.Delim)
	if !ok || delim != '{' {
		return fmt.Errorf("providers: expected object")
	}

	for decoder.More() {
		rawKey, err := decoder.Token()
		if err != nil {
			return fmt.Errorf("providers: %w", err)
		}
		key, ok := rawKey.(string)
		if !ok {
			return fmt.Errorf("providers: expected string key")
		}
		trimmedKey := strings.TrimSpace(key)
		if _, exists := seen[trimmedKey]; exists {
			return fmt.Errorf("providers: duplicate provider key %s", trimmedKey)
		}
		seen[trimmedKey] = struct{}{}

		var discard json.RawMessage
		if err := decoder.Decode(&discard); err != nil {
			return fmt.Errorf("providers[%s]: %w", trimmedKey, err)
		}
	}
	if _, err := decoder.Token(); err != nil {
		return fmt.Errorf("providers: %w", err)
	}

	return nil
}

func decodeStrictJSON(data []byte, target any) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return fmt.Errorf("unexpected trailing content")
		}
		return fmt.Errorf("decode trailing json: %w", err)
	}

	return nil
}

func isValidAPIVersion(raw string) bool {
	if strings.TrimSpace(raw) == "" {
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

func cloneIntPointer(value *int) *int {
	if value == nil {
		return nil
	}
	cloned := *value
	return &cloned
}
