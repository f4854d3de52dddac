package paimon

import (
	"fmt"
	"strings"
)

// CommandPrefix introduces a command invocation.
const CommandPrefix = "/"

// CommandCandidate is a command-looking message before it is bound to a
// registered CommandSpec.
type CommandCandidate struct {
	// Name is the lowercase command name without prefix or mention.
	Name string
	// Mention is the optional bot username from "/name@bot".
	Mention string
	// RawInput is the untouched message text.
	RawInput string
	// Tokens are the whitespace-separated words after the header.
	Tokens []string
}

// CommandOption is one option parsed from an invocation.
type CommandOption struct {
	Name     string
	Alias    string
	Value    string
	HasValue bool
}

// CommandInvocation is the payload of a command.received event.
type CommandInvocation struct {
	Name    string
	Mention string
	// Value joins every token that is neither an option nor an option value.
	Value   string
	Options []CommandOption
	// SourceEventID identifies the message event the command came from.
	SourceEventID   string
	SourceEventKind EventKind
	RawInput        string
}

// Validate checks the invocation envelope.
func (c *CommandInvocation) Validate() error {
	if c == nil {
		return fmt.Errorf("validate command invocation: nil invocation")
	}
	if normalizeCommandToken(c.Name) == "" {
		return fmt.Errorf("validate command invocation: missing name")
	}
	if c.SourceEventID == "" {
		return fmt.Errorf("validate command invocation: missing source_event_id")
	}
	if c.SourceEventKind == "" {
		return fmt.Errorf("validate command invocation: missing source_event_kind")
	}

	return nil
}

// HasOption reports whether the option with the given long name was passed.
func (c *CommandInvocation) HasOption(name string) bool {
	_, ok := c.option(name)
	return ok
}

// OptionValue returns the value of a value-carrying option.
func (c *CommandInvocation) OptionValue(name string) (string, bool) {
	option, ok := c.option(name)
	if !ok || !option.HasValue {
		return "", false
	}

	return option.Value, true
}

func (c *CommandInvocation) option(name string) (CommandOption, bool) {
	if c == nil {
		return CommandOption{}, false
	}
	name = normalizeCommandToken(name)
	for _, option := range c.Options {
		if option.Name == name {
			return option, true
		}
	}

	return CommandOption{}, false
}

// CommandOptionSpec declares one option accepted by a command.
type CommandOptionSpec struct {
	// Name is used as "--name".
	Name string
	// Alias is a single character used as "-a".
	Alias       string
	HasValue    bool
	Required    bool
	Description string
}

// Validate checks option coherence.
func (s CommandOptionSpec) Validate() error {
	name := normalizeCommandToken(s.Name)
	alias := normalizeCommandToken(s.Alias)
	switch {
	case name == "" && alias == "":
		return fmt.Errorf("validate command option spec: missing name and alias")
	case alias != "" && len([]rune(alias)) != 1:
		return fmt.Errorf("validate command option spec: alias %q must be one character", s.Alias)
	case strings.ContainsAny(name, " \t\r\n"):
		return fmt.Errorf("validate command option spec: name %q contains whitespace", s.Name)
	}

	return nil
}

// Usage renders the option as it would be typed.
func (s CommandOptionSpec) Usage() string {
	var builder strings.Builder
	if name := normalizeCommandToken(s.Name); name != "" {
		builder.WriteString("--" + name)
	}
	if alias := normalizeCommandToken(s.Alias); alias != "" {
		if builder.Len() > 0 {
			builder.WriteString(", ")
		}
		builder.WriteString("-" + alias)
	}
	if s.HasValue {
		builder.WriteString(" <value>")
	}

	return builder.String()
}

// CommandSpec declares a command owned by a module.
type CommandSpec struct {
	Name        string
	Description string
	Options     []CommandOptionSpec
}

// Validate checks command coherence, including option uniqueness.
func (s CommandSpec) Validate() error {
	if normalizeCommandToken(s.Name) == "" {
		return fmt.Errorf("validate command spec: missing name")
	}

	names := make(map[string]struct{}, len(s.Options))
	aliases := make(map[string]struct{}, len(s.Options))
	for index, option := range s.Options {
		if err := option.Validate(); err != nil {
			return fmt.Errorf("validate command spec %s option[%d]: %w", s.Name, index, err)
		}
		if name := normalizeCommandToken(option.Name); name != "" {
			if _, exists := names[name]; exists {
				return fmt.Errorf("validate command spec %s: duplicate option name %q", s.Name, option.Name)
			}
			names[name] = struct{}{}
		}
		if alias := normalizeCommandToken(option.Alias); alias != "" {
			if _, exists := aliases[alias]; exists {
				return fmt.Errorf("validate command spec %s: duplicate option alias %q", s.Name, option.Alias)
			}
			aliases[alias] = struct{}{}
		}
	}

	return nil
}

// ParseCommandCandidate parses text into a command candidate.
//
// matched is false when text does not start with CommandPrefix. When matched
// is true, err reports syntax problems such as a missing name.
func ParseCommandCandidate(text string) (candidate CommandCandidate, matched bool, err error) {
	candidate.RawInput = text

	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], CommandPrefix) {
		return candidate, false, nil
	}

	name, mention, _ := strings.Cut(strings.TrimPrefix(fields[0], CommandPrefix), "@")
	candidate.Name = normalizeCommandToken(name)
	candidate.Mention = strings.TrimSpace(mention)
	if candidate.Name == "" {
		return candidate, true, fmt.Errorf("parse command candidate: missing command name")
	}
	if len(fields) > 1 {
		candidate.Tokens = append([]string(nil), fields[1:]...)
	}
	for _, token := range candidate.Tokens {
		if strings.HasPrefix(token, "--") && strings.Contains(token, "=") {
			return candidate, true, fmt.Errorf("parse command candidate: unsupported option format %q", token)
		}
	}

	return candidate, true, nil
}

// BindCommand binds a parsed candidate to spec, producing the invocation
// carried by a command.received event derived from sourceEvent.
func BindCommand(candidate CommandCandidate, spec CommandSpec, sourceEvent *Event) (CommandInvocation, error) {
	if sourceEvent == nil {
		return CommandInvocation{}, fmt.Errorf("bind command: nil source event")
	}
	if err := spec.Validate(); err != nil {
		return CommandInvocation{}, fmt.Errorf("bind command %s: %w", spec.Name, err)
	}
	specName := normalizeCommandToken(spec.Name)
	if normalizeCommandToken(candidate.Name) != specName {
		return CommandInvocation{}, fmt.Errorf("bind command %s: name mismatch, got %q", spec.Name, candidate.Name)
	}

	byName := make(map[string]CommandOptionSpec, len(spec.Options))
	byAlias := make(map[string]CommandOptionSpec, len(spec.Options))
	for _, option := range spec.Options {
		if name := normalizeCommandToken(option.Name); name != "" {
			byName[name] = option
		}
		if alias := normalizeCommandToken(option.Alias); alias != "" {
			byAlias[alias] = option
		}
	}

	var (
		options []CommandOption
		values  []string
		seen    = make(map[string]struct{}, len(spec.Options))
	)
	for index := 0; index < len(candidate.Tokens); index++ {
		token := candidate.Tokens[index]

		var (
			optionSpec CommandOptionSpec
			exists     bool
		)
		if name, ok := longOptionName(token); ok {
			optionSpec, exists = byName[name]
		} else if alias, ok := shortOptionAlias(token); ok {
			optionSpec, exists = byAlias[alias]
		} else {
			values = append(values, token)
			continue
		}
		if !exists {
			return CommandInvocation{}, fmt.Errorf("bind command %s: unknown option %s", spec.Name, token)
		}

		option := CommandOption{
			Name:  normalizeCommandToken(optionSpec.Name),
			Alias: normalizeCommandToken(optionSpec.Alias),
		}
		if optionSpec.HasValue {
			if index+1 >= len(candidate.Tokens) || isOptionToken(candidate.Tokens[index+1]) {
				return CommandInvocation{}, fmt.Errorf("bind command %s: option %s requires a value", spec.Name, token)
			}
			index++
			option.Value = candidate.Tokens[index]
			option.HasValue = true
		}
		options = append(options, option)
		seen[optionKey(optionSpec)] = struct{}{}
	}

	for _, option := range spec.Options {
		if _, ok := seen[optionKey(option)]; option.Required && !ok {
			return CommandInvocation{}, fmt.Errorf("bind command %s: missing required option %s", spec.Name, option.Usage())
		}
	}

	invocation := CommandInvocation{
		Name:            specName,
		Mention:         candidate.Mention,
		Value:           strings.Join(values, " "),
		Options:         options,
		SourceEventID:   sourceEvent.ID,
		SourceEventKind: sourceEvent.Kind,
		RawInput:        candidate.RawInput,
	}
	if err := invocation.Validate(); err != nil {
		return CommandInvocation{}, fmt.Errorf("bind command %s: %w", spec.Name, err)
	}

	return invocation, nil
}

func longOptionName(token string) (string, bool) {
	if len(token) <= 2 || !strings.HasPrefix(token, "--") || strings.Contains(token, "=") {
		return "", false
	}

	return normalizeCommandToken(token[2:]), true
}

func shortOptionAlias(token string) (string, bool) {
	runes := []rune(token)
	if len(runes) != 2 || runes[0] != '-' || runes[1] == '-' {
		return "", false
	}

	return normalizeCommandToken(string(runes[1])), true
}

func isOptionToken(token string) bool {
	if _, ok := longOptionName(token); ok {
		return true
	}
	_, ok := shortOptionAlias(token)
	return ok
}

func optionKey(option CommandOptionSpec) string {
	if name := normalizeCommandToken(option.Name); name != "" {
		return "name:" + name
	}

	return "alias:" + normalizeCommandToken(option.Alias)
}

func normalizeCommandToken(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
