// Package llm holds the provider profiles /ask answers with.
package llm

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"ex-paimon/pkg/paimon"
)

// ErrUnknownProfile indicates a lookup for a profile nobody configured.
var ErrUnknownProfile = errors.New("llm: unknown provider profile")

// Registry maps profile names from the llm.providers config section to
// their clients. It is read-only after NewRegistry.
type Registry struct {
	profiles map[string]paimon.LLMProvider
	names    []string
}

// NewRegistry indexes providers by trimmed profile name.
func NewRegistry(providers map[string]paimon.LLMProvider) (*Registry, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("llm registry: no provider profiles")
	}

	registry := &Registry{profiles: make(map[string]paimon.LLMProvider, len(providers))}
	for name, provider := range providers {
		profile := strings.TrimSpace(name)
		switch {
		case profile == "":
			return nil, fmt.Errorf("llm registry: blank profile name")
		case provider == nil:
			return nil, fmt.Errorf("llm registry: profile %s has no provider", profile)
		}
		if _, taken := registry.profiles[profile]; taken {
			return nil, fmt.Errorf("llm registry: profile %s configured twice", profile)
		}
		registry.profiles[profile] = provider
		registry.names = append(registry.names, profile)
	}
	slices.Sort(registry.names)

	return registry, nil
}

// Resolve returns the provider of profile.
func (r *Registry) Resolve(profile string) (paimon.LLMProvider, error) {
	if r == nil {
		return nil, fmt.Errorf("resolve %q: %w", profile, ErrUnknownProfile)
	}

	provider, ok := r.profiles[strings.TrimSpace(profile)]
	if !ok {
		return nil, fmt.Errorf("resolve %q: %w (configured: %s)",
			profile, ErrUnknownProfile, strings.Join(r.names, ", "))
	}

	return provider, nil
}

var _ paimon.LLMProviderRegistry = (*Registry)(nil)
