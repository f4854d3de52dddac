package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeLLMConfigFile(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "llm.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write llm config file failed: %v", err)
	}

	return path
}

const validAsk = `"ask":{
	"provider":"gemini-main",
	"model":"gemini-2.5-flash",
	"system_prompt_template":"You are Paimon. Answer {{.ActorName}}.",
	"request_timeout":"30s"
}`

func TestLoadFile(t *testing.T) {
	tests := []struct {
		name             string
		fileBody         string
		wantErrSubstring string
		assert           func(*testing.T, Config)
	}{
		{
			name: "valid providers of every type",
			fileBody: `{
				"request_timeout":"45s",
				"providers":{
					"openai-main":{
						"type":"openai",
						"api_key":"sk-test",
						"base_url":"https://api.openai.com/v1",
						"openai":{"organization":"org-test","project":"project-test","max_retries":3}
					},
					"gemini-main":{
						"type":"gemini",
						"api_key":"gm-test",
						"gemini":{"google_search":true,"thinking_budget":128}
					},
					"claude":{"type":"Anthropic","api_key":"ak-test"}
				},
				` + validAsk + `
			}`,
			assert: func(t *testing.T, cfg Config) {
				t.Helper()

				if cfg.RequestTimeout != 45*time.Second {
					t.Fatalf("request timeout = %s, want 45s", cfg.RequestTimeout)
				}
				if len(cfg.Providers) != 3 {
					t.Fatalf("providers len = %d, want 3", len(cfg.Providers))
				}

				openaiProfile := cfg.Providers["openai-main"]
				if openaiProfile.OpenAI == nil || openaiProfile.OpenAI.MaxRetries == nil || *openaiProfile.OpenAI.MaxRetries != 3 {
					t.Fatalf("openai options = %+v, want max retries 3", openaiProfile.OpenAI)
				}

				geminiProfile := cfg.Providers["gemini-main"]
				if geminiProfile.Gemini == nil || geminiProfile.Gemini.APIVersion != defaultGeminiAPIVersion {
					t.Fatalf("gemini options = %+v, want default api version", geminiProfile.Gemini)
				}
				if !geminiProfile.Gemini.GoogleSearch {
					t.Fatal("expected google search enabled")
				}

				anthropicProfile := cfg.Providers["claude"]
				if anthropicProfile.Type != ProviderTypeAnthropic {
					t.Fatalf("anthropic type = %q, want %q", anthropicProfile.Type, ProviderTypeAnthropic)
				}
				if anthropicProfile.Anthropic == nil || anthropicProfile.Anthropic.DefaultMaxTokens != defaultAnthropicMaxTokens {
					t.Fatalf("anthropic options = %+v, want default max tokens", anthropicProfile.Anthropic)
				}

				if cfg.Ask.Provider != "gemini-main" || cfg.Ask.RequestTimeout != 30*time.Second {
					t.Fatalf("ask = %+v", cfg.Ask)
				}
			},
		},
		{
			name: "ask timeout defaults to global",
			fileBody: `{
				"providers":{"gemini-main":{"type":"gemini","api_key":"gm"}},
				"ask":{"provider":"gemini-main","model":"m","system_prompt_template":"hi"}
			}`,
			assert: func(t *testing.T, cfg Config) {
				t.Helper()

				if cfg.Ask.RequestTimeout != defaultRequestTimeout {
					t.Fatalf("ask timeout = %s, want %s", cfg.Ask.RequestTimeout, defaultRequestTimeout)
				}
			},
		},
		{
			name:             "unknown field",
			fileBody:         `{"providers":{"gemini-main":{"type":"gemini","api_key":"gm","timeout":"1s"}},` + validAsk + `}`,
			wantErrSubstring: "unknown field",
		},
		{
			name:             "duplicate trimmed provider key",
			fileBody:         `{"providers":{"a":{"type":"gemini","api_key":"x"}," a ":{"type":"gemini","api_key":"y"}},` + validAsk + `}`,
			wantErrSubstring: "duplicate provider key a",
		},
		{
			name:             "unsupported provider type",
			fileBody:         `{"providers":{"gemini-main":{"type":"mistral","api_key":"x"}},` + validAsk + `}`,
			wantErrSubstring: "unsupported type",
		},
		{
			name:             "mismatched options",
			fileBody:         `{"providers":{"gemini-main":{"type":"gemini","api_key":"x","openai":{}}},` + validAsk + `}`,
			wantErrSubstring: "only gemini options",
		},
		{
			name:             "missing api key",
			fileBody:         `{"providers":{"gemini-main":{"type":"gemini"}},` + validAsk + `}`,
			wantErrSubstring: "missing api_key",
		},
		{
			name:             "invalid base url",
			fileBody:         `{"providers":{"gemini-main":{"type":"gemini","api_key":"x","base_url":"localhost"}},` + validAsk + `}`,
			wantErrSubstring: "invalid base_url",
		},
		{
			name: "ask provider not configured",
			fileBody: `{
				"providers":{"openai-main":{"type":"openai","api_key":"x"}},
				` + validAsk + `
			}`,
			wantErrSubstring: "provider gemini-main is not configured",
		},
		{
			name: "ask timeout exceeds global",
			fileBody: `{
				"request_timeout":"10s",
				"providers":{"gemini-main":{"type":"gemini","api_key":"x"}},
				` + validAsk + `
			}`,
			wantErrSubstring: "exceeds global request_timeout",
		},
		{
			name: "broken template",
			fileBody: `{
				"providers":{"gemini-main":{"type":"gemini","api_key":"x"}},
				"ask":{"provider":"gemini-main","model":"m","system_prompt_template":"{{.Broken"}
			}`,
			wantErrSubstring: "invalid system_prompt_template",
		},
		{
			name:             "no providers",
			fileBody:         `{` + validAsk + `}`,
			wantErrSubstring: "providers is required",
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			cfg, err := LoadFile(writeLLMConfigFile(t, testCase.fileBody))
			if testCase.wantErrSubstring != "" {
				if err == nil {
					t.Fatalf("expected error containing %q", testCase.wantErrSubstring)
				}
				if !strings.Contains(err.Error(), testCase.wantErrSubstring) {
					t.Fatalf("error = %v, want substring %q", err, testCase.wantErrSubstring)
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadFile failed: %v", err)
			}
			if testCase.assert != nil {
				testCase.assert(t, cfg)
			}
		})
	}
}

func TestLoadFileEmptyPath(t *testing.T) {
	if _, err := LoadFile("  "); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestAgentSystemPrompt(t *testing.T) {
	t.Parallel()

	agent := Agent{SystemPromptTemplate: "You are Paimon. Answer {{.ActorName}} in {{.ConversationTitle}}."}

	prompt, err := agent.SystemPrompt(map[string]string{"ActorName": "Lumine", "ConversationTitle": "Mondstadt"})
	if err != nil {
		t.Fatalf("SystemPrompt failed: %v", err)
	}
	if prompt != "You are Paimon. Answer Lumine in Mondstadt." {
		t.Fatalf("prompt = %q", prompt)
	}

	if _, err := agent.SystemPrompt(map[string]string{"ActorName": "Lumine"}); err == nil {
		t.Fatal("expected missing key error")
	}
}
