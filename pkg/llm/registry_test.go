package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"ex-paimon/pkg/paimon"
)

type stubProvider struct{ reply string }

func (p stubProvider) Generate(context.Context, paimon.LLMGenerateRequest) (string, error) {
	return p.reply, nil
}

func TestNewRegistry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		providers map[string]paimon.LLMProvider
		wantErr   string
	}{
		{name: "empty", wantErr: "no provider profiles"},
		{name: "blank name", providers: map[string]paimon.LLMProvider{" ": stubProvider{}}, wantErr: "blank profile name"},
		{name: "nil provider", providers: map[string]paimon.LLMProvider{"openai": nil}, wantErr: "profile openai has no provider"},
		{
			name:      "trimmed duplicate",
			providers: map[string]paimon.LLMProvider{"openai": stubProvider{}, " openai ": stubProvider{}},
			wantErr:   "profile openai configured twice",
		},
		{name: "valid", providers: map[string]paimon.LLMProvider{"gemini": stubProvider{}}},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewRegistry(testCase.providers)
			if testCase.wantErr == "" {
				if err != nil {
					t.Fatalf("NewRegistry failed: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), testCase.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, testCase.wantErr)
			}
		})
	}
}

func TestRegistryResolve(t *testing.T) {
	t.Parallel()

	registry, err := NewRegistry(map[string]paimon.LLMProvider{
		"gemini": stubProvider{reply: "ehe"},
		"claude": stubProvider{reply: "hmm"},
	})
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	provider, err := registry.Resolve(" gemini ")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	reply, _ := provider.Generate(context.Background(), paimon.LLMGenerateRequest{})
	if reply != "ehe" {
		t.Fatalf("reply = %q, want ehe", reply)
	}

	_, err = registry.Resolve("openai")
	if !errors.Is(err, ErrUnknownProfile) || !strings.Contains(err.Error(), "configured: claude, gemini") {
		t.Fatalf("error = %v, want unknown profile listing the configured ones", err)
	}

	var nilRegistry *Registry
	if _, err := nilRegistry.Resolve("gemini"); !errors.Is(err, ErrUnknownProfile) {
		t.Fatalf("nil registry error = %v, want ErrUnknownProfile", err)
	}
}
